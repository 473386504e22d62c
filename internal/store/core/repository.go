package core

import (
	"context"
	"time"
)

// CredentialStore persiste credenciales OAuth2 de proveedores externos.
// Las implementaciones deben ser seguras para uso concurrente.
type CredentialStore interface {
	Ping(ctx context.Context) error

	// Upsert inserta o reemplaza la credencial identificada por
	// (account_id, provider, remote_id) y rellena ID/CreatedAt/UpdatedAt.
	Upsert(ctx context.Context, c *Credential) error

	// GetByAccountProvider devuelve la credencial más reciente para la
	// identidad remota username bajo (account, provider). ErrNotFound si no hay.
	GetByAccountProvider(ctx context.Context, accountID, provider, username string) (*Credential, error)

	// ListByAccount devuelve todas las credenciales vinculadas a la cuenta,
	// más recientes primero.
	ListByAccount(ctx context.Context, accountID string) ([]Credential, error)

	// Touch actualiza tokens tras un refresh exitoso. refreshToken vacío
	// conserva el almacenado (no todos los proveedores rotan el refresh).
	Touch(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error

	// Delete desvincula la identidad remota. ErrNotFound si no existía.
	Delete(ctx context.Context, accountID, provider, username string) error

	Close()
}
