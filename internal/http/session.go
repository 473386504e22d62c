package http

import (
	"net/http"
	"strings"
)

// DefaultSessionCookie es la cookie donde el host webmail deja el token de
// sesión del usuario.
const DefaultSessionCookie = "LINKJOHN_SESSION"

// SessionFromRequest extrae el token de sesión host: cookie primero, después
// Authorization: Bearer si está habilitado. "" si no hay.
func SessionFromRequest(r *http.Request, cookieName string, allowBearer bool) string {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if allowBearer {
		h := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return ""
}
