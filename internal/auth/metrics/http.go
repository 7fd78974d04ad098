package metrics

import (
	"net/http"
	"time"
)

// HTTPMiddleware records a count and a latency sample per request, labelled
// with the ServeMux pattern that matched rather than the raw path.
func HTTPMiddleware(r Recorder) func(http.Handler) http.Handler {
	if _, ok := r.(Noop); ok || r == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path == "/metrics" {
				next.ServeHTTP(w, req)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, req)

			route := req.Pattern
			if route == "" {
				route = "unmatched"
			}
			r.RecordHTTPRequest(req.Method, route, rec.status, time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
