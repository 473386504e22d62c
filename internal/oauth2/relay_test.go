package oauth2

import (
	"net/url"
	"strings"
	"testing"
)

func TestValidateRelay_EmptyUsesDefault(t *testing.T) {
	if got := ValidateRelay("", "/home"); got != "/home" {
		t.Fatalf("got %q want %q", got, "/home")
	}
	// sin default configurado cae al default del paquete
	if got := ValidateRelay("", ""); got != DefaultSuccessRedirect {
		t.Fatalf("got %q want %q", got, DefaultSuccessRedirect)
	}
}

func TestValidateRelay_RelativeUnchanged(t *testing.T) {
	relatives := []string{
		"/mail",
		"/mail/inbox?folder=2",
		"mail/inbox",
		"/",
	}
	for _, r := range relatives {
		got := ValidateRelay(r, "/home")
		if got != r {
			t.Fatalf("relative relay changed: got %q want %q", got, r)
		}
		// idempotente: validar lo ya validado no cambia nada
		if again := ValidateRelay(got, "/home"); again != got {
			t.Fatalf("not idempotent: %q -> %q", got, again)
		}
	}
}

func TestValidateRelay_AbsoluteRejected(t *testing.T) {
	absolutes := []string{
		"http://evil.example/x",
		"https://evil.example",
		"ftp://evil.example/y",
		"//evil.example/x", // protocol-relative: tiene authority
	}
	for _, a := range absolutes {
		if got := ValidateRelay(a, "/home"); got != "/home" {
			t.Fatalf("absolute relay accepted: %q -> %q", a, got)
		}
	}
}

func TestValidateRelay_DecodesPercentEncoding(t *testing.T) {
	got := ValidateRelay("%2Fmail%3Ffolder%3D2", "/home")
	if got != "/mail?folder=2" {
		t.Fatalf("got %q want %q", got, "/mail?folder=2")
	}
	// absoluto codificado también se rechaza
	got = ValidateRelay("http%3A%2F%2Fevil.example%2Fx", "/home")
	if got != "/home" {
		t.Fatalf("encoded absolute accepted: %q", got)
	}
}

func TestValidateRelay_BadInputFallsBack(t *testing.T) {
	cases := []string{
		"%zz",   // escape inválido, no decodifica
		"%00ab", // decodifica a control char, no parsea como URI
	}
	for _, c := range cases {
		if got := ValidateRelay(c, "/home"); got != "/home" {
			t.Fatalf("bad relay %q accepted as %q", c, got)
		}
	}
}

func TestAddQueryParams_NoOps(t *testing.T) {
	if got := AddQueryParams("/app", nil); got != "/app" {
		t.Fatalf("got %q want %q", got, "/app")
	}
	if got := AddQueryParams("/app", []Param{}); got != "/app" {
		t.Fatalf("got %q want %q", got, "/app")
	}
	if got := AddQueryParams("", []Param{{"a", "b"}}); got != "" {
		t.Fatalf("got %q want empty", got)
	}
}

func TestAddQueryParams_PreservesExisting(t *testing.T) {
	got := AddQueryParams("/app?x=1", []Param{{QueryError, CodeAccessDenied}})
	if !strings.Contains(got, "x=1") || !strings.Contains(got, "error=access_denied") {
		t.Fatalf("missing params in %q", got)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("result does not parse: %v", err)
	}
	if u.Path != "/app" {
		t.Fatalf("path corrupted: %q", u.Path)
	}
}

func TestAddQueryParams_SkipsEmptyKeyOrValue(t *testing.T) {
	got := AddQueryParams("/app", []Param{
		{"", "oops"},
		{"empty", ""},
		{"ok", "1"},
	})
	if got != "/app?ok=1" {
		t.Fatalf("got %q want %q", got, "/app?ok=1")
	}
}

func TestAddQueryParams_BadPathFailOpen(t *testing.T) {
	// path imparseable: se retorna tal cual, sin error
	bad := "/app%zz"
	if got := AddQueryParams(bad, []Param{{"a", "b"}}); got != bad {
		t.Fatalf("got %q want original %q", got, bad)
	}
}
