package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// issuerServer simula discovery + JWKS de un emisor OIDC.
type issuerServer struct {
	srv      *httptest.Server
	key      *rsa.PrivateKey
	kid      string
	jwksHits int
}

func newIssuerServer(t *testing.T) *issuerServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	is := &issuerServer{key: key, kid: "test-kid-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 is.srv.URL,
			"authorization_endpoint": is.srv.URL + "/auth",
			"token_endpoint":         is.srv.URL + "/token",
			"jwks_uri":               is.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		is.jwksHits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"alg": "RS256",
				"kid": is.kid,
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	is.srv = httptest.NewServer(mux)
	t.Cleanup(is.srv.Close)
	return is
}

func (is *issuerServer) mint(t *testing.T, claims jwtv5.MapClaims) string {
	t.Helper()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = is.srv.URL
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = is.kid
	s, err := tok.SignedString(is.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func (is *issuerServer) verifier() *Verifier {
	return NewVerifier(nil, is.srv.URL+"/.well-known/openid-configuration", "client-123")
}

func TestVerifyOK(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	idt := is.mint(t, jwtv5.MapClaims{
		"sub":   "sub-99",
		"aud":   "client-123",
		"nonce": "n-1",
		"email": "ana@example.com",
	})
	claims, err := v.Verify(context.Background(), idt, "n-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Sub != "sub-99" || claims.Email != "ana@example.com" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Iss != is.srv.URL {
		t.Fatalf("iss = %q", claims.Iss)
	}
}

func TestVerifyAudienceList(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	idt := is.mint(t, jwtv5.MapClaims{
		"sub": "s",
		"aud": []string{"other", "client-123"},
	})
	if _, err := v.Verify(context.Background(), idt, ""); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyBadAudience(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	idt := is.mint(t, jwtv5.MapClaims{"sub": "s", "aud": "somebody-else"})
	if _, err := v.Verify(context.Background(), idt, ""); err == nil {
		t.Fatal("expected aud error")
	}
}

func TestVerifyBadNonce(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	idt := is.mint(t, jwtv5.MapClaims{"sub": "s", "aud": "client-123", "nonce": "real"})
	if _, err := v.Verify(context.Background(), idt, "otro"); err == nil {
		t.Fatal("expected nonce error")
	}
}

func TestVerifyExpired(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	idt := is.mint(t, jwtv5.MapClaims{
		"sub": "s",
		"aud": "client-123",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := v.Verify(context.Background(), idt, ""); err == nil {
		t.Fatal("expected exp error")
	}
}

func TestVerifyRejectsHS256(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"sub": "s", "aud": "client-123", "exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = is.kid
	s, err := tok.SignedString([]byte("whatever"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(context.Background(), s, ""); err == nil {
		t.Fatal("expected alg rejection")
	}
}

func TestVerifyIssuerCheck(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	v.ValidIssuer = func(iss string) bool { return iss == "https://trusted.example" }
	idt := is.mint(t, jwtv5.MapClaims{"sub": "s", "aud": "client-123"})
	if _, err := v.Verify(context.Background(), idt, ""); err == nil {
		t.Fatal("expected iss rejection")
	}
}

func TestVerifyUnknownKid(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, jwtv5.MapClaims{
		"iss": is.srv.URL, "sub": "s", "aud": "client-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = "no-such-kid"
	s, err := tok.SignedString(is.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(context.Background(), s, ""); err == nil {
		t.Fatal("expected kid lookup failure")
	}
}

func TestJWKSCachedAcrossVerifies(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	for i := 0; i < 3; i++ {
		idt := is.mint(t, jwtv5.MapClaims{"sub": "s", "aud": "client-123"})
		if _, err := v.Verify(context.Background(), idt, ""); err != nil {
			t.Fatalf("Verify #%d: %v", i, err)
		}
	}
	if is.jwksHits != 1 {
		t.Fatalf("jwks hits = %d, want 1", is.jwksHits)
	}
}

func TestEndpointsFromDiscovery(t *testing.T) {
	is := newIssuerServer(t)
	v := is.verifier()
	auth, token, err := v.Endpoints(context.Background())
	if err != nil {
		t.Fatalf("Endpoints: %v", err)
	}
	if auth != is.srv.URL+"/auth" || token != is.srv.URL+"/token" {
		t.Fatalf("endpoints = %q %q", auth, token)
	}
	// Segunda llamada sale del cache de discovery.
	if _, _, err := v.Endpoints(context.Background()); err != nil {
		t.Fatalf("cached Endpoints: %v", err)
	}
}
