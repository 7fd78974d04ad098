package httpx

import (
	"net/http"
	"runtime/debug"

	"github.com/aussiebroadwan/authz/pkg/slogx"
)

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first one listed is the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Recover turns a panicking handler into a 500 and logs the stack.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slogx.FromContext(r.Context()).Error("handler panic",
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				WriteJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "server_error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
