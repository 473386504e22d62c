package oauth2

import "strconv"

// Configuration es la vista inmutable de configuración de UN proveedor:
// claves con puntos -> valores string. Se construye una vez en el primer
// build del handler y vive lo que vive el proceso (cacheada junto al
// handler). No se muta después de construida.
type Configuration struct {
	provider string
	values   map[string]string
}

// NewConfiguration copia values para garantizar inmutabilidad.
func NewConfiguration(provider string, values map[string]string) *Configuration {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &Configuration{provider: provider, values: cp}
}

// Provider retorna el provider id al que está acotada la vista.
func (c *Configuration) Provider() string { return c.provider }

// GetString retorna el valor de key, o "" si no existe.
func (c *Configuration) GetString(key string) string {
	return c.values[key]
}

// GetDefault retorna el valor de key, o def si no existe o está vacío.
func (c *Configuration) GetDefault(key, def string) string {
	if v, ok := c.values[key]; ok && v != "" {
		return v
	}
	return def
}

// GetBool interpreta el valor de key como booleano ("true", "1", ...).
func (c *Configuration) GetBool(key string) bool {
	v, err := strconv.ParseBool(c.values[key])
	return err == nil && v
}

// Has reporta si key está presente (aunque sea vacía).
func (c *Configuration) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// ConfigResolver produce la vista de configuración de un proveedor.
// Implementado por la capa de config del servicio.
type ConfigResolver interface {
	// Resolve falla envolviendo ErrInvalidClient si el proveedor no está
	// configurado, o ErrConfiguration si la sección es inválida.
	Resolve(provider string) (*Configuration, error)
}
