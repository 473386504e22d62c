package util

import "strings"

// MaskEmail reduce un email a una forma apta para logs: primera letra del
// usuario y del dominio, resto elidido. jdoe@example.com -> j…@e….com.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	i := strings.IndexByte(s, '@')
	if i <= 0 {
		return maskOpaque(s)
	}
	user, dom := s[:i], s[i+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	dparts := strings.Split(dom, ".")
	if len(dparts) > 0 && len(dparts[0]) > 1 {
		dparts[0] = dparts[0][:1] + "…"
	}
	return user + "@" + strings.Join(dparts, ".")
}

// MaskIdentity enmascara el username de una credencial externa. La mayoría
// son emails, pero hay proveedores que devuelven subjects opacos (GUIDs,
// sub de OIDC); esos conservan prefijo y sufijo cortos.
func MaskIdentity(s string) string {
	if strings.IndexByte(s, '@') > 0 {
		return MaskEmail(s)
	}
	return maskOpaque(strings.TrimSpace(s))
}

func maskOpaque(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 3:
		return "***"
	case len(s) <= 8:
		return s[:1] + "…" + s[len(s)-1:]
	default:
		return s[:2] + "…" + s[len(s)-2:]
	}
}
