package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/hafedapp/entitlement/internal/api/response"
)

// Recovery is middleware that recovers from panics and returns a 500 error.
// http.ErrAbortHandler is re-raised so the server can drop the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}
			Logger(r.Context()).Error("panic recovered", "error", err, "stack", string(debug.Stack()))
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", GetRequestID(r.Context()))
		}()
		next.ServeHTTP(w, r)
	})
}
