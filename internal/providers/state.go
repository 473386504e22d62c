package providers

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/cache"
	tokens "github.com/dropDatabas3/hellojohn/internal/security/token"
)

// El state ata un authorize a su callback: "<nonce>;<relay url-encoded>".
// El nonce es single-use y vive en el cache con TTL; el relay viaja dentro
// del propio state para sobrevivir el round-trip por el proveedor.
const stateSeparator = ";"

var (
	// ErrStateMalformed: el state no tiene la forma nonce;relay.
	ErrStateMalformed = errors.New("malformed state parameter")

	// ErrStateUnknown: nonce desconocido, vencido o ya consumido.
	ErrStateUnknown = errors.New("state nonce unknown or already used")
)

// StateCodec emite y consume state nonces contra el cache compartido.
type StateCodec struct {
	cache cache.Client
	ttl   time.Duration
}

// NewStateCodec construye el codec. ttl <= 0 usa 10 minutos.
func NewStateCodec(c cache.Client, ttl time.Duration) *StateCodec {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateCodec{cache: c, ttl: ttl}
}

// Issue minta un nonce single-use, lo guarda con TTL y arma el state.
func (s *StateCodec) Issue(ctx context.Context, relay string) (string, error) {
	nonce, err := tokens.GenerateOpaqueToken(18)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, stateKey(nonce), "1", s.ttl); err != nil {
		return "", err
	}
	return nonce + stateSeparator + url.QueryEscape(relay), nil
}

// Consume valida y quema el nonce del state. La segunda llamada con el mismo
// state falla con ErrStateUnknown.
func (s *StateCodec) Consume(ctx context.Context, state string) error {
	nonce := NonceFromState(state)
	if nonce == "" {
		return ErrStateMalformed
	}
	if _, err := s.cache.Get(ctx, stateKey(nonce)); err != nil {
		if cache.IsNotFound(err) {
			return ErrStateUnknown
		}
		return err
	}
	return s.cache.Delete(ctx, stateKey(nonce))
}

// NonceFromState extrae el nonce; "" si el state está malformado.
func NonceFromState(state string) string {
	nonce, _, ok := strings.Cut(state, stateSeparator)
	if !ok || nonce == "" {
		return ""
	}
	return nonce
}

// RelayFromState extrae el relay embebido TODAVÍA url-encoded, tal como lo
// espera la validación de relay aguas arriba. "" si no hay.
func RelayFromState(state string) string {
	_, relay, ok := strings.Cut(state, stateSeparator)
	if !ok {
		return ""
	}
	return relay
}

func stateKey(nonce string) string {
	return "oauth2:state:" + nonce
}
