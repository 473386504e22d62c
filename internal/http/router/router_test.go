package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropDatabas3/hellojohn/internal/http/controllers/credentials"
	"github.com/dropDatabas3/hellojohn/internal/http/controllers/flow"
	"github.com/dropDatabas3/hellojohn/internal/http/controllers/health"
	"github.com/dropDatabas3/hellojohn/internal/oauth2"
	"github.com/dropDatabas3/hellojohn/internal/security/session"
)

type emptyResolver struct{}

func (emptyResolver) GetHandler(ctx context.Context, provider string) (oauth2.Handler, error) {
	return nil, fmt.Errorf("provider %q: %w", provider, oauth2.ErrInvalidClient)
}

func testRouter() http.Handler {
	svc := oauth2.NewService(oauth2.Deps{Resolver: emptyResolver{}})
	return New(Deps{
		Flow:        flow.New(svc, flow.Options{}),
		Credentials: credentials.New(nil, session.NewVerifier("router-test", ""), credentials.Options{}),
		Health:      health.New(nil, nil, nil),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
}

func TestChainOnHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if rid := w.Header().Get("X-Request-ID"); len(rid) != 32 {
		t.Fatalf("X-Request-ID = %q", rid)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("faltan security headers")
	}
	// healthz está fuera del grupo no-store
	if w.Header().Get("Cache-Control") != "" {
		t.Fatalf("Cache-Control = %q en healthz", w.Header().Get("Cache-Control"))
	}
}

func TestFlowGroupIsNoStore(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth2/credentials", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
}

func TestUnknownProviderRoute(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth2/authorize/nadie", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK || w.Body.String() != "# metrics" {
		t.Fatalf("metrics: %d %q", w.Code, w.Body.String())
	}
}
