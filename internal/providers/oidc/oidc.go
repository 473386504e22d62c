// Package oidc verifica id_tokens contra el discovery y el JWKS del emisor.
// Lo comparten los proveedores OIDC (google, outlook); cada handler arma su
// Verifier con su discovery URL y su audiencia.
package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

type discoveryDoc struct {
	Issuer        string `json:"issuer"`
	AuthEndpoint  string `json:"authorization_endpoint"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// IDClaims son las claims normalizadas de un id_token verificado.
type IDClaims struct {
	Sub               string
	Iss               string
	Email             string
	EmailVerified     bool
	Name              string
	GivenName         string
	FamilyName        string
	Picture           string
	Locale            string
	Nonce             string
	PreferredUsername string
	Raw               jwtv5.MapClaims
}

// Verifier cachea discovery y JWKS del emisor y valida id_tokens RS256.
type Verifier struct {
	DiscoveryURL string
	Audience     string

	// ValidIssuer acepta o rechaza la claim iss. Nil omite el chequeo (hay
	// emisores multi-tenant cuyo iss varía por token).
	ValidIssuer func(iss string) bool

	http *http.Client

	mu       sync.RWMutex
	disc     *discoveryDoc
	discAt   time.Time
	keys     *jwks
	keysAt   time.Time
	keysETag string
}

// NewVerifier construye el verifier. hc nil usa un cliente con timeout de 10s.
func NewVerifier(hc *http.Client, discoveryURL, audience string) *Verifier {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Verifier{DiscoveryURL: discoveryURL, Audience: audience, http: hc}
}

// Endpoints retorna (authorization_endpoint, token_endpoint) del discovery.
func (v *Verifier) Endpoints(ctx context.Context) (string, string, error) {
	disc, err := v.discovery(ctx)
	if err != nil {
		return "", "", err
	}
	return disc.AuthEndpoint, disc.TokenEndpoint, nil
}

func (v *Verifier) discovery(ctx context.Context) (*discoveryDoc, error) {
	v.mu.RLock()
	disc := v.disc
	stale := time.Since(v.discAt) > 24*time.Hour
	v.mu.RUnlock()
	if disc != nil && !stale {
		return disc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.DiscoveryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("discovery http %d", resp.StatusCode)
	}
	var dd discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&dd); err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.disc = &dd
	v.discAt = time.Now()
	v.mu.Unlock()
	return &dd, nil
}

func (v *Verifier) getJWKS(ctx context.Context, uri string) (*jwks, error) {
	v.mu.RLock()
	j := v.keys
	age := time.Since(v.keysAt)
	etag := v.keysETag
	v.mu.RUnlock()
	if j != nil && age < time.Hour {
		return j, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		v.mu.Lock()
		out := v.keys
		v.keysAt = time.Now()
		v.mu.Unlock()
		return out, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
	}
	var jj jwks
	if err := json.NewDecoder(resp.Body).Decode(&jj); err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.keys = &jj
	v.keysAt = time.Now()
	v.keysETag = resp.Header.Get("ETag")
	v.mu.Unlock()
	return &jj, nil
}

func (v *Verifier) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	disc, err := v.discovery(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := v.getJWKS(ctx, disc.JWKSURI)
	if err != nil {
		return nil, err
	}
	for _, k := range keys.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			nb, err := base64.RawURLEncoding.DecodeString(k.N)
			if err != nil {
				return nil, err
			}
			eb, err := base64.RawURLEncoding.DecodeString(k.E)
			if err != nil {
				return nil, err
			}
			n := new(big.Int).SetBytes(nb)
			e := 65537
			if len(eb) > 0 {
				e = 0
				for _, b := range eb {
					e = (e << 8) | int(b)
				}
			}
			return &rsa.PublicKey{N: n, E: e}, nil
		}
	}
	return nil, errors.New("kid not found")
}

// Verify valida firma RS256, aud, iss (si hay chequeo), exp y nonce.
// expectedNonce vacío omite el chequeo de nonce.
func (v *Verifier) Verify(ctx context.Context, idToken, expectedNonce string) (*IDClaims, error) {
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, errors.New("bad jwt format")
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return nil, err
	}
	if header.Alg != "RS256" {
		return nil, fmt.Errorf("unexpected alg: %s", header.Alg)
	}

	key, err := v.rsaKeyForKid(ctx, header.Kid)
	if err != nil {
		return nil, err
	}
	tok, err := jwtv5.Parse(idToken,
		func(t *jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithLeeway(30*time.Second),
	)
	if err != nil || !tok.Valid {
		return nil, errors.New("invalid id_token")
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, errors.New("claims type")
	}

	iss, _ := claims["iss"].(string)
	if v.ValidIssuer != nil && !v.ValidIssuer(iss) {
		return nil, fmt.Errorf("bad iss: %s", iss)
	}

	audOK := false
	switch a := claims["aud"].(type) {
	case string:
		audOK = a == v.Audience
	case []any:
		for _, x := range a {
			if s, _ := x.(string); s == v.Audience {
				audOK = true
				break
			}
		}
	}
	if !audOK {
		return nil, errors.New("bad aud")
	}

	if expectedNonce != "" {
		if got, _ := claims["nonce"].(string); got != expectedNonce {
			return nil, errors.New("bad nonce")
		}
	}

	return &IDClaims{
		Raw:               claims,
		Sub:               strClaim(claims, "sub"),
		Iss:               iss,
		Email:             strClaim(claims, "email"),
		EmailVerified:     boolClaim(claims, "email_verified"),
		Name:              strClaim(claims, "name"),
		GivenName:         strClaim(claims, "given_name"),
		FamilyName:        strClaim(claims, "family_name"),
		Picture:           strClaim(claims, "picture"),
		Locale:            strClaim(claims, "locale"),
		Nonce:             strClaim(claims, "nonce"),
		PreferredUsername: strClaim(claims, "preferred_username"),
	}, nil
}

func strClaim(m jwtv5.MapClaims, k string) string {
	s, _ := m[k].(string)
	return s
}

func boolClaim(m jwtv5.MapClaims, k string) bool {
	b, _ := m[k].(bool)
	return b
}
