// Package session valida el credencial de sesión del host: el JWT propio de
// la aplicación webmail que identifica a qué cuenta local colgar las
// credenciales externas. El broker solo lo verifica, nunca lo emite.
package session

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession indica firma inválida, token vencido o claims inservibles.
var ErrInvalidSession = errors.New("invalid session token")

// Claims es la identidad mínima extraída del token de sesión.
type Claims struct {
	AccountID string // claim sub
	Email     string // claim email, puede faltar
}

// Verifier valida tokens de sesión HS256 firmados con el secreto compartido
// con el host.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier construye el verifier. issuer vacío omite el chequeo de iss.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify valida firma, exp/nbf (con tolerancia) e iss, y extrae las claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	tok, err := jwtv5.Parse(token,
		func(t *jwtv5.Token) (any, error) { return v.secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithLeeway(30*time.Second),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidSession
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidSession
	}

	if v.issuer != "" {
		if iss, _ := claims["iss"].(string); iss != v.issuer {
			return nil, ErrInvalidSession
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidSession
	}
	email, _ := claims["email"].(string)

	return &Claims{AccountID: sub, Email: email}, nil
}

// SelfCheck firma y verifica un token efímero en memoria. Lo usa el health
// endpoint para detectar un secreto ausente o inservible antes del primer
// callback real.
func (v *Verifier) SelfCheck() error {
	if len(v.secret) == 0 {
		return errors.New("session secret not configured")
	}

	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"sub": "selfcheck",
		"iat": now.Unix(),
		"exp": now.Add(60 * time.Second).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return err
	}

	got, err := v.Verify(signed)
	if err != nil {
		return err
	}
	if got.AccountID != "selfcheck" {
		return ErrInvalidSession
	}
	return nil
}
