package httpx

import (
	"net/http"
	"strings"
)

// BearerToken extracts an access token from the Authorization header or,
// failing that, the access_token request parameter (RFC 6750 section 2).
// The header scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	}

	if err := r.ParseForm(); err != nil {
		return "", false
	}
	token := strings.TrimSpace(r.Form.Get("access_token"))
	return token, token != ""
}

// SetBearerChallenge writes an RFC 6750 WWW-Authenticate header.
func SetBearerChallenge(w http.ResponseWriter, code, desc string) {
	v := `Bearer error="` + code + `"`
	if desc != "" {
		v += `, error_description="` + strings.ReplaceAll(desc, `"`, `'`) + `"`
	}
	w.Header().Set("WWW-Authenticate", v)
}
