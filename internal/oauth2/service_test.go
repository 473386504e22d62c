package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

type fakeHandler struct {
	keys  []string
	relay string

	authorizeURL string
	authorizeErr error
	verifyErr    error
	authErr      error
	refreshOK    bool
	refreshErr   error

	gotParams  map[string]string
	gotInfo    *AuthInfo
	authCalled bool
}

func (f *fakeHandler) Authorize(ctx context.Context, relay string) (string, error) {
	return f.authorizeURL, f.authorizeErr
}

func (f *fakeHandler) AuthenticateParamKeys() []string { return f.keys }

func (f *fakeHandler) VerifyAuthenticateParams(ctx context.Context, params map[string]string) error {
	f.gotParams = params
	return f.verifyErr
}

func (f *fakeHandler) Authenticate(ctx context.Context, info *AuthInfo) error {
	f.authCalled = true
	f.gotInfo = info
	return f.authErr
}

func (f *fakeHandler) Refresh(ctx context.Context, info *AuthInfo) (bool, error) {
	f.gotInfo = info
	return f.refreshOK, f.refreshErr
}

func (f *fakeHandler) Relay(params map[string]string) string { return f.relay }

type fakeResolver struct {
	h     Handler
	err   error
	calls int
}

func (r *fakeResolver) GetHandler(ctx context.Context, provider string) (Handler, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.h, nil
}

func newTestService(h Handler, resolveErr error) (*Service, *fakeResolver) {
	r := &fakeResolver{h: h, err: resolveErr}
	return NewService(Deps{Resolver: r}), r
}

func mustQuery(t *testing.T, redirect string) url.Values {
	t.Helper()
	u, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("redirect does not parse: %q: %v", redirect, err)
	}
	return u.Query()
}

func TestAuthenticate_MissingSessionYieldsInvalidSessionCode(t *testing.T) {
	h := &fakeHandler{keys: []string{"code", "state", "error"}, relay: "/mail"}
	s, _ := newTestService(h, nil)

	query := url.Values{"code": {"abc"}, "state": {"n;x"}}
	redirect, err := s.Authenticate(context.Background(), "yahoo", query, "")
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}

	q := mustQuery(t, redirect)
	if q.Get(QueryError) != CodeInvalidSession {
		t.Fatalf("error code: got %q want %q (redirect %q)", q.Get(QueryError), CodeInvalidSession, redirect)
	}
	if q.Get(QueryErrorMsg) == "" {
		t.Fatalf("expected fixed message, redirect %q", redirect)
	}
	if h.authCalled {
		t.Fatalf("authenticate must not run without host session")
	}
}

func TestAuthenticate_PermDeniedVerifyWinsOverMissingSession(t *testing.T) {
	h := &fakeHandler{
		keys:      []string{"code", "state", "error"},
		relay:     "/mail",
		verifyErr: PermDenied("user denied access", nil),
	}
	s, _ := newTestService(h, nil)

	// sesión ausente Y params inválidos: gana el error de params
	redirect, err := s.Authenticate(context.Background(), "yahoo", url.Values{"error": {"access_denied"}}, "")
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}

	q := mustQuery(t, redirect)
	if q.Get(QueryError) != CodeAccessDenied {
		t.Fatalf("error code: got %q want %q", q.Get(QueryError), CodeAccessDenied)
	}
	if q.Get(QueryErrorMsg) != "user denied access" {
		t.Fatalf("error msg: got %q", q.Get(QueryErrorMsg))
	}
	if h.authCalled {
		t.Fatalf("authenticate must not run after verify failure")
	}
}

func TestAuthenticate_NonPermVerifyCarriesOwnCodeNoMessage(t *testing.T) {
	h := &fakeHandler{
		keys:      []string{"code", "state", "error"},
		relay:     "/mail",
		verifyErr: Failure(CodeInvalidRequest, "missing authorization code", nil),
	}
	s, _ := newTestService(h, nil)

	redirect, err := s.Authenticate(context.Background(), "yahoo", url.Values{}, "session-token")
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}

	q := mustQuery(t, redirect)
	if q.Get(QueryError) != CodeInvalidRequest {
		t.Fatalf("error code: got %q want %q", q.Get(QueryError), CodeInvalidRequest)
	}
	if _, present := q[QueryErrorMsg]; present {
		t.Fatalf("non-perm verify failure must not carry a message: %q", redirect)
	}
}

func TestAuthenticate_AuthPermDeniedHasNoMessage(t *testing.T) {
	h := &fakeHandler{
		keys:    []string{"code", "state", "error"},
		relay:   "/mail",
		authErr: PermDenied("provider rejected grant", errors.New("invalid_grant")),
	}
	s, _ := newTestService(h, nil)

	redirect, err := s.Authenticate(context.Background(), "yahoo", url.Values{"code": {"abc"}}, "session-token")
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}

	q := mustQuery(t, redirect)
	if q.Get(QueryError) != CodeAccessDenied {
		t.Fatalf("error code: got %q want %q", q.Get(QueryError), CodeAccessDenied)
	}
	if _, present := q[QueryErrorMsg]; present {
		t.Fatalf("perm-denied authenticate must not echo detail: %q", redirect)
	}
}

func TestAuthenticate_AuthFailureIsAuthenticationError(t *testing.T) {
	h := &fakeHandler{
		keys:    []string{"code", "state", "error"},
		relay:   "/mail",
		authErr: Failure("token_endpoint", "token endpoint returned 500", nil),
	}
	s, _ := newTestService(h, nil)

	redirect, err := s.Authenticate(context.Background(), "yahoo", url.Values{"code": {"abc"}}, "session-token")
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}

	q := mustQuery(t, redirect)
	if q.Get(QueryError) != CodeAuthFailed {
		t.Fatalf("error code: got %q want %q", q.Get(QueryError), CodeAuthFailed)
	}
	if q.Get(QueryErrorMsg) != "token endpoint returned 500" {
		t.Fatalf("error msg: got %q", q.Get(QueryErrorMsg))
	}
}

func TestAuthenticate_SuccessRedirectsToRelayClean(t *testing.T) {
	h := &fakeHandler{keys: []string{"code", "state", "error"}, relay: "/mail/settings"}
	s, _ := newTestService(h, nil)

	redirect, err := s.Authenticate(context.Background(), "yahoo", url.Values{"code": {"abc"}, "state": {"n;%2Fmail%2Fsettings"}}, "session-token")
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}
	if redirect != "/mail/settings" {
		t.Fatalf("redirect: got %q want %q", redirect, "/mail/settings")
	}
	if !h.authCalled {
		t.Fatalf("authenticate was not invoked")
	}
	if h.gotInfo.SessionToken != "session-token" || h.gotInfo.Provider != "yahoo" {
		t.Fatalf("authinfo not populated: %+v", h.gotInfo)
	}
}

func TestAuthenticate_ExtractsFirstValueAndOmitsAbsent(t *testing.T) {
	h := &fakeHandler{keys: []string{"code", "state", "error"}, relay: "/"}
	s, _ := newTestService(h, nil)

	query := url.Values{
		"code":    {"first", "second"},
		"ignored": {"zzz"},
	}
	if _, err := s.Authenticate(context.Background(), "yahoo", query, "session-token"); err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}

	if h.gotParams["code"] != "first" {
		t.Fatalf("first value not taken: %+v", h.gotParams)
	}
	if _, ok := h.gotParams["state"]; ok {
		t.Fatalf("absent key must be omitted, got %+v", h.gotParams)
	}
	if _, ok := h.gotParams["ignored"]; ok {
		t.Fatalf("unexpected key extracted: %+v", h.gotParams)
	}
}

func TestAuthenticate_RelayResolvedOnErrorPath(t *testing.T) {
	h := &fakeHandler{
		keys:      []string{"code", "state", "error"},
		relay:     "/box",
		verifyErr: Failure(CodeInvalidRequest, "missing authorization code", nil),
	}
	s, _ := newTestService(h, nil)

	redirect, err := s.Authenticate(context.Background(), "yahoo", url.Values{}, "session-token")
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}
	u, _ := url.Parse(redirect)
	if u.Path != "/box" {
		t.Fatalf("relay ignored on error path: %q", redirect)
	}
}

func TestAuthenticate_UnknownProviderFailsBeforeExtraction(t *testing.T) {
	resolveErr := fmt.Errorf("%w: nope", ErrInvalidClient)
	s, r := newTestService(nil, resolveErr)

	_, err := s.Authenticate(context.Background(), "nope", url.Values{"code": {"x"}}, "session-token")
	if !IsInvalidClient(err) {
		t.Fatalf("want invalid client error, got %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("resolver calls: %d", r.calls)
	}
}

func TestAuthorize_DelegatesAndPropagates(t *testing.T) {
	h := &fakeHandler{authorizeURL: "https://provider.example/auth?state=n"}
	s, _ := newTestService(h, nil)

	loc, err := s.Authorize(context.Background(), "yahoo", "/mail")
	if err != nil {
		t.Fatalf("Authorize err: %v", err)
	}
	if loc != h.authorizeURL {
		t.Fatalf("got %q want %q", loc, h.authorizeURL)
	}

	s2, _ := newTestService(nil, fmt.Errorf("%w: nope", ErrInvalidClient))
	if _, err := s2.Authorize(context.Background(), "nope", ""); !IsInvalidClient(err) {
		t.Fatalf("want invalid client error, got %v", err)
	}
}

func TestRefresh_StructuredResultNeverRedirect(t *testing.T) {
	h := &fakeHandler{refreshOK: true}
	s, _ := newTestService(h, nil)

	res, err := s.Refresh(context.Background(), "yahoo", "user@yahoo.com", "session-token")
	if err != nil {
		t.Fatalf("Refresh err: %v", err)
	}
	if !res.Refreshed || res.Provider != "yahoo" || res.Username != "user@yahoo.com" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if h.gotInfo.Provider != "yahoo" || h.gotInfo.Username != "user@yahoo.com" || h.gotInfo.SessionToken != "session-token" {
		t.Fatalf("authinfo not populated: %+v", h.gotInfo)
	}
}

func TestRefresh_HandlerFailurePropagatesAsError(t *testing.T) {
	h := &fakeHandler{refreshErr: Failure("refresh", "no stored credential", nil)}
	s, _ := newTestService(h, nil)

	res, err := s.Refresh(context.Background(), "yahoo", "user@yahoo.com", "session-token")
	if err == nil {
		t.Fatalf("expected error, got result %+v", res)
	}
	if res != nil {
		t.Fatalf("failure must not produce a result: %+v", res)
	}

	s2, _ := newTestService(nil, fmt.Errorf("%w: nope", ErrInvalidClient))
	if _, err := s2.Refresh(context.Background(), "nope", "u", "s"); !IsInvalidClient(err) {
		t.Fatalf("want invalid client error, got %v", err)
	}
}
