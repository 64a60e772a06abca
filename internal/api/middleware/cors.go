package middleware

import (
	"net/http"
)

// CORS adds the headers browsers need to call the API from origin and
// answers preflight requests directly.
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Device-ID, X-Request-ID")
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
			next.ServeHTTP(w, r)
		})
	}
}
