package yahoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/hellojohn/internal/cache"
	"github.com/dropDatabas3/hellojohn/internal/oauth2"
	"github.com/dropDatabas3/hellojohn/internal/providers"
	"github.com/dropDatabas3/hellojohn/internal/security/session"
	"github.com/dropDatabas3/hellojohn/internal/store/core"
)

const testSecret = "super-secreto-de-test"

// fakeStore es un CredentialStore en memoria para tests.
type fakeStore struct {
	creds   map[string]*core.Credential
	upserts int
	touches int
}

func newFakeStore() *fakeStore {
	return &fakeStore{creds: map[string]*core.Credential{}}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Upsert(ctx context.Context, c *core.Credential) error {
	f.upserts++
	if c.ID == "" {
		c.ID = "cred-1"
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	f.creds[c.ID] = &cp
	return nil
}

func (f *fakeStore) GetByAccountProvider(ctx context.Context, accountID, provider, username string) (*core.Credential, error) {
	for _, c := range f.creds {
		if c.AccountID == accountID && c.Provider == provider && c.Username == username {
			cp := *c
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) ListByAccount(ctx context.Context, accountID string) ([]core.Credential, error) {
	var out []core.Credential
	for _, c := range f.creds {
		if c.AccountID == accountID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) Touch(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	f.touches++
	c, ok := f.creds[id]
	if !ok {
		return core.ErrNotFound
	}
	c.AccessToken = accessToken
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	c.ExpiresAt = expiresAt
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, accountID, provider, username string) error {
	for id, c := range f.creds {
		if c.AccountID == accountID && c.Provider == provider && c.Username == username {
			delete(f.creds, id)
			return nil
		}
	}
	return core.ErrNotFound
}

func (f *fakeStore) Close() {}

func mintSession(t *testing.T, accountID, email string) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"sub":   accountID,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	return s
}

// fixture arma un handler contra endpoints httptest.
type fixture struct {
	h       *Handler
	store   *fakeStore
	codec   *providers.StateCodec
	tokenFn func(w http.ResponseWriter, r *http.Request)
	userFn  func(w http.ResponseWriter, r *http.Request)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{store: newFakeStore()}

	mux := http.NewServeMux()
	mux.HandleFunc("/get_token", func(w http.ResponseWriter, r *http.Request) { fx.tokenFn(w, r) })
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) { fx.userFn(w, r) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mem := cache.NewMemory("t")
	t.Cleanup(func() { mem.Close() })
	fx.codec = providers.NewStateCodec(mem, time.Minute)

	cfg := oauth2.NewConfiguration(ProviderName, map[string]string{
		"client_id":         "yh-client",
		"client_secret":     "yh-secret",
		"redirect_uri":      "https://broker.example/oauth2/authenticate/yahoo",
		"token_endpoint":    srv.URL + "/get_token",
		"userinfo_endpoint": srv.URL + "/userinfo",
	})
	deps := providers.Deps{
		Store:    fx.store,
		States:   fx.codec,
		Sessions: session.NewVerifier(testSecret, ""),
		HTTP:     srv.Client(),
	}
	h, err := Factory(cfg, deps)
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}
	fx.h = h.(*Handler)

	// Defaults felices; cada test los pisa según necesite.
	fx.tokenFn = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"scope":         "openid email",
		})
	}
	fx.userFn = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"sub":   "yh-sub-7",
			"email": "ana@yahoo.com",
			"name":  "Ana",
		})
	}
	return fx
}

func (fx *fixture) callbackParams(t *testing.T, relay string) map[string]string {
	t.Helper()
	state, err := fx.codec.Issue(context.Background(), relay)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return map[string]string{"code": "the-code", "state": state}
}

func TestFactoryValidation(t *testing.T) {
	deps := providers.Deps{}
	for _, missing := range []string{"client_id", "client_secret", "redirect_uri"} {
		values := map[string]string{
			"client_id":     "a",
			"client_secret": "b",
			"redirect_uri":  "c",
		}
		delete(values, missing)
		if _, err := Factory(oauth2.NewConfiguration(ProviderName, values), deps); err == nil {
			t.Fatalf("expected error without %s", missing)
		}
	}
}

func TestAuthorizeURL(t *testing.T) {
	fx := newFixture(t)
	loc, err := fx.h.Authorize(context.Background(), "/mail?app=calendar")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	u, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if !strings.HasPrefix(loc, authEndpoint) {
		t.Fatalf("location = %q", loc)
	}
	q := u.Query()
	if q.Get("client_id") != "yh-client" || q.Get("response_type") != "code" {
		t.Fatalf("query = %v", q)
	}
	if q.Get("scope") != defaultScopes {
		t.Fatalf("scope = %q", q.Get("scope"))
	}
	state := q.Get("state")
	if providers.NonceFromState(state) == "" {
		t.Fatalf("state without nonce: %q", state)
	}
	if got := providers.RelayFromState(state); got != url.QueryEscape("/mail?app=calendar") {
		t.Fatalf("relay = %q", got)
	}
	// El nonce emitido tiene que ser consumible.
	if err := fx.codec.Consume(context.Background(), state); err != nil {
		t.Fatalf("Consume: %v", err)
	}
}

func TestAuthenticateLinksCredential(t *testing.T) {
	fx := newFixture(t)
	var sawBasic, sawForm bool
	fx.tokenFn = func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		sawBasic = ok && user == "yh-client" && pass == "yh-secret"
		r.ParseForm()
		sawForm = r.PostForm.Get("grant_type") == "authorization_code" &&
			r.PostForm.Get("code") == "the-code" &&
			r.PostForm.Get("client_secret") == ""
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"expires_in":    3600,
			"scope":         "openid email",
		})
	}

	params := fx.callbackParams(t, "/mail")
	if err := fx.h.VerifyAuthenticateParams(context.Background(), params); err != nil {
		t.Fatalf("VerifyAuthenticateParams: %v", err)
	}

	info := oauth2.NewAuthInfo(params)
	info.Provider = ProviderName
	info.SessionToken = mintSession(t, "acct-42", "ana@host.example")
	if err := fx.h.Authenticate(context.Background(), info); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if !sawBasic {
		t.Fatal("token endpoint did not see Basic auth")
	}
	if !sawForm {
		t.Fatal("token endpoint saw wrong form")
	}
	if info.Username != "ana@yahoo.com" {
		t.Fatalf("info.Username = %q", info.Username)
	}
	cred, err := fx.store.GetByAccountProvider(context.Background(), "acct-42", ProviderName, "ana@yahoo.com")
	if err != nil {
		t.Fatalf("stored credential: %v", err)
	}
	if cred.RemoteID != "yh-sub-7" || cred.AccessToken != "at-1" || cred.RefreshToken != "rt-1" {
		t.Fatalf("cred = %+v", cred)
	}
	if cred.ExpiresAt == nil || time.Until(*cred.ExpiresAt) <= 0 {
		t.Fatalf("ExpiresAt = %v", cred.ExpiresAt)
	}
	if len(cred.Scopes) != 2 {
		t.Fatalf("Scopes = %v", cred.Scopes)
	}
}

func TestAuthenticateInvalidSession(t *testing.T) {
	fx := newFixture(t)
	info := oauth2.NewAuthInfo(fx.callbackParams(t, ""))
	info.SessionToken = "no-es-un-jwt"
	err := fx.h.Authenticate(context.Background(), info)
	fe, ok := oauth2.AsFlow(err)
	if !ok || !fe.PermDenied {
		t.Fatalf("err = %v", err)
	}
	if fx.store.upserts != 0 {
		t.Fatal("store touched with invalid session")
	}
}

func TestAuthenticateGrantDenied(t *testing.T) {
	fx := newFixture(t)
	fx.tokenFn = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "code expired",
		})
	}
	info := oauth2.NewAuthInfo(fx.callbackParams(t, ""))
	info.SessionToken = mintSession(t, "acct-42", "")
	err := fx.h.Authenticate(context.Background(), info)
	fe, ok := oauth2.AsFlow(err)
	if !ok || !fe.PermDenied {
		t.Fatalf("err = %v", err)
	}
	if fe.Message != "code expired" {
		t.Fatalf("Message = %q", fe.Message)
	}
	if fx.store.upserts != 0 {
		t.Fatal("store touched after denied grant")
	}
}

func TestAuthenticateUserinfoDown(t *testing.T) {
	fx := newFixture(t)
	fx.userFn = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	info := oauth2.NewAuthInfo(fx.callbackParams(t, ""))
	info.SessionToken = mintSession(t, "acct-42", "")
	err := fx.h.Authenticate(context.Background(), info)
	fe, ok := oauth2.AsFlow(err)
	if !ok || fe.PermDenied || fe.Code != oauth2.CodeAuthFailed {
		t.Fatalf("err = %v", err)
	}
}

func TestRefresh(t *testing.T) {
	fx := newFixture(t)
	fx.store.creds["cred-9"] = &core.Credential{
		ID: "cred-9", AccountID: "acct-42", Provider: ProviderName,
		RemoteID: "yh-sub-7", Username: "ana@yahoo.com",
		AccessToken: "at-old", RefreshToken: "rt-old",
	}
	fx.tokenFn = func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "rt-old" {
			t.Errorf("form = %v", r.PostForm)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-new",
			"refresh_token": "rt-new",
			"expires_in":    3600,
		})
	}

	info := oauth2.NewAuthInfo(nil)
	info.Provider = ProviderName
	info.Username = "ana@yahoo.com"
	info.SessionToken = mintSession(t, "acct-42", "")

	ok, err := fx.h.Refresh(context.Background(), info)
	if err != nil || !ok {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}
	c := fx.store.creds["cred-9"]
	if c.AccessToken != "at-new" || c.RefreshToken != "rt-new" {
		t.Fatalf("cred after refresh = %+v", c)
	}
	if fx.store.touches != 1 {
		t.Fatalf("touches = %d", fx.store.touches)
	}
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	fx := newFixture(t)
	fx.store.creds["cred-9"] = &core.Credential{
		ID: "cred-9", AccountID: "acct-42", Provider: ProviderName,
		Username: "ana@yahoo.com", RefreshToken: "rt-old",
	}
	fx.tokenFn = func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "at-new"})
	}
	info := oauth2.NewAuthInfo(nil)
	info.Username = "ana@yahoo.com"
	info.SessionToken = mintSession(t, "acct-42", "")
	if ok, err := fx.h.Refresh(context.Background(), info); err != nil || !ok {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}
	if c := fx.store.creds["cred-9"]; c.RefreshToken != "rt-old" {
		t.Fatalf("refresh token lost: %+v", c)
	}
}

func TestRefreshWithoutCredential(t *testing.T) {
	fx := newFixture(t)
	info := oauth2.NewAuthInfo(nil)
	info.Username = "nadie@yahoo.com"
	info.SessionToken = mintSession(t, "acct-42", "")
	ok, err := fx.h.Refresh(context.Background(), info)
	if ok || err == nil {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}
	fe, _ := oauth2.AsFlow(err)
	if fe == nil || fe.PermDenied {
		t.Fatalf("err = %v", err)
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	fx := newFixture(t)
	fx.store.creds["cred-9"] = &core.Credential{
		ID: "cred-9", AccountID: "acct-42", Provider: ProviderName,
		Username: "ana@yahoo.com", AccessToken: "at-old",
	}
	info := oauth2.NewAuthInfo(nil)
	info.Username = "ana@yahoo.com"
	info.SessionToken = mintSession(t, "acct-42", "")
	if ok, err := fx.h.Refresh(context.Background(), info); ok || err == nil {
		t.Fatalf("Refresh = %v, %v", ok, err)
	}
}
