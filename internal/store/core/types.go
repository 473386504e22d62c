package core

import "time"

// Credential es el registro persistido de una cuenta externa vinculada:
// los tokens OAuth2 que un proveedor social emitió para una cuenta local.
// RefreshToken viaja en claro por esta capa; el adapter lo cifra en reposo.
type Credential struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	Provider     string     `json:"provider"`
	RemoteID     string     `json:"remote_id"` // subject estable del proveedor (sub / xoauth_yahoo_guid)
	Username     string     `json:"username"`  // identidad legible (email remoto)
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	Scopes       []string   `json:"scopes"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastAuthAt   *time.Time `json:"last_auth_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Expired reporta si el access token venció respecto de now.
// Sin ExpiresAt se asume vigente (hay proveedores que no informan expiry).
func (c *Credential) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return now.After(*c.ExpiresAt)
}
