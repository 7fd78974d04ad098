package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ContentTypeJWT is the media type for signed JWT responses (RFC 7519).
const ContentTypeJWT = "application/jwt"

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJWT writes a compact JWT as the whole response body.
func WriteJWT(w http.ResponseWriter, code int, token string) {
	NoCache(w)
	w.Header().Set("Content-Type", ContentTypeJWT)
	w.WriteHeader(code)
	_, _ = w.Write([]byte(token))
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// ParseSpaceDelimitedFields splits a space-delimited string into fields.
// Returns nil if the input string is empty or contains only whitespace.
func ParseSpaceDelimitedFields(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// Accepts reports whether the Accept header lists mediaType. Parameters
// such as q-values are ignored.
func Accepts(r *http.Request, mediaType string) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, _ := strings.Cut(part, ";")
		if strings.EqualFold(strings.TrimSpace(mt), mediaType) {
			return true
		}
	}
	return false
}
