// Package pg implementa core.CredentialStore sobre PostgreSQL usando pgxpool.
// Los refresh tokens se cifran con secretbox antes de escribir y se descifran
// al leer; en la tabla nunca hay material en claro.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/security/secretbox"
	"github.com/dropDatabas3/hellojohn/internal/store/core"
)

type Store struct{ pool *pgxpool.Pool }

// Tuning controla el pool. Campos en cero usan defaults conservadores.
type Tuning struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

func New(ctx context.Context, dsn string, t Tuning) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}

	if t.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(t.MaxOpenConns)
	}
	// pgxpool no distingue idle conns; MinConns es lo más cercano.
	if t.MaxIdleConns > 0 {
		pcfg.MinConns = int32(t.MaxIdleConns)
	}
	if t.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(t.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	// Arranque no bloqueante: si la DB está caída igual levantamos el proceso.
	if err := pool.Ping(ctx); err != nil {
		logger.L().Warn("pg pool startup ping failed", logger.Component("store.pg"), logger.Err(err))
	} else {
		logger.L().Info("pg pool ready", logger.Component("store.pg"), logger.Int("max_conns", int(pcfg.MaxConns)))
	}

	return &Store{pool: pool}, nil
}

// Pool expone el pool interno para usos avanzados (migraciones, métricas).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Upsert(ctx context.Context, c *core.Credential) error {
	if c == nil || c.AccountID == "" || c.Provider == "" || c.RemoteID == "" {
		return core.ErrInvalid
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	sealed, err := sealRefresh(c.RefreshToken)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO oauth_credential
(id, account_id, provider, remote_id, username, access_token, refresh_token, scopes, expires_at, last_auth_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (account_id, provider, remote_id) DO UPDATE SET
    username      = EXCLUDED.username,
    access_token  = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    scopes        = EXCLUDED.scopes,
    expires_at    = EXCLUDED.expires_at,
    last_auth_at  = now(),
    updated_at    = now()
RETURNING id, last_auth_at, created_at, updated_at`
	if err := s.pool.QueryRow(ctx, q,
		c.ID, c.AccountID, c.Provider, c.RemoteID, c.Username,
		c.AccessToken, sealed, c.Scopes, c.ExpiresAt).
		Scan(&c.ID, &c.LastAuthAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		logger.L().Error("pg upsert credential failed",
			logger.Provider(c.Provider), logger.Account(c.AccountID), logger.Err(err))
		return err
	}
	return nil
}

func (s *Store) GetByAccountProvider(ctx context.Context, accountID, provider, username string) (*core.Credential, error) {
	const q = `
SELECT id, account_id, provider, remote_id, username, access_token, refresh_token, scopes, expires_at, last_auth_at, created_at, updated_at
FROM oauth_credential
WHERE account_id = $1 AND provider = $2 AND username = $3
ORDER BY updated_at DESC
LIMIT 1`
	c, err := scanCredential(s.pool.QueryRow(ctx, q, accountID, provider, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		logger.L().Error("pg get credential failed",
			logger.Provider(provider), logger.Account(accountID), logger.Err(err))
		return nil, err
	}
	return c, nil
}

func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]core.Credential, error) {
	const q = `
SELECT id, account_id, provider, remote_id, username, access_token, refresh_token, scopes, expires_at, last_auth_at, created_at, updated_at
FROM oauth_credential
WHERE account_id = $1
ORDER BY updated_at DESC`
	rows, err := s.pool.Query(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) Touch(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	sealed, err := sealRefresh(refreshToken)
	if err != nil {
		return err
	}

	// NULLIF conserva el refresh almacenado cuando el proveedor no rota.
	const q = `
UPDATE oauth_credential
SET access_token  = $2,
    refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
    expires_at    = $4,
    last_auth_at  = now(),
    updated_at    = now()
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, accessToken, sealed, expiresAt)
	if err != nil {
		logger.L().Error("pg touch credential failed", logger.String("credential_id", id), logger.Err(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, accountID, provider, username string) error {
	const q = `DELETE FROM oauth_credential WHERE account_id = $1 AND provider = $2 AND username = $3`
	tag, err := s.pool.Exec(ctx, q, accountID, provider, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// rowScanner cubre pgx.Row y pgx.Rows.
type rowScanner interface{ Scan(dest ...any) error }

func scanCredential(row rowScanner) (*core.Credential, error) {
	var c core.Credential
	var sealed string
	if err := row.Scan(
		&c.ID, &c.AccountID, &c.Provider, &c.RemoteID, &c.Username,
		&c.AccessToken, &sealed, &c.Scopes, &c.ExpiresAt, &c.LastAuthAt,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if sealed != "" {
		plain, err := secretbox.Decrypt(sealed)
		if err != nil {
			return nil, fmt.Errorf("pg: unseal refresh token: %w", err)
		}
		c.RefreshToken = plain
	}
	return &c, nil
}

func sealRefresh(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	sealed, err := secretbox.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("pg: seal refresh token: %w", err)
	}
	return sealed, nil
}
