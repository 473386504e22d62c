package oauth2

// AuthInfo es el bundle transitorio de un request: los params extraídos del
// callback más la credencial de sesión host, y opcionalmente provider y
// username explícitos (los usa refresh, que no pasa por el callback).
// Se crea por llamada y se descarta al terminar.
type AuthInfo struct {
	Params       map[string]string
	Provider     string
	Username     string
	SessionToken string
}

// NewAuthInfo arma un AuthInfo a partir de los params del callback.
func NewAuthInfo(params map[string]string) *AuthInfo {
	if params == nil {
		params = map[string]string{}
	}
	return &AuthInfo{Params: params}
}

// Param retorna el valor de un param extraído, o "".
func (a *AuthInfo) Param(key string) string {
	if a == nil || a.Params == nil {
		return ""
	}
	return a.Params[key]
}
