package handler

import (
	"net/http"

	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/api/response"
)

// Preflight answers CORS preflight requests. The CORS middleware has already
// set the allow headers.
func Preflight(w http.ResponseWriter, _ *http.Request) {
	response.Text(w, http.StatusOK, "ok")
}

// MethodNotAllowed replaces chi's empty 405 body with an error envelope.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response.Err(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method "+r.Method+" is not supported", middleware.GetRequestID(r.Context()))
}
