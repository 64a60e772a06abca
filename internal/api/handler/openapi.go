package handler

import (
	"net/http"
	"sync"

	"sigs.k8s.io/yaml"

	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/api/response"
)

// OpenAPIHandler serves the API description as YAML or JSON.
type OpenAPIHandler struct {
	rawYAML  []byte
	jsonOnce sync.Once
	jsonSpec []byte
	jsonErr  error
}

// NewOpenAPIHandler creates a handler for the given YAML document.
func NewOpenAPIHandler(yamlSpec []byte) *OpenAPIHandler {
	return &OpenAPIHandler{rawYAML: yamlSpec}
}

// JSON converts the document on first use and serves the cached result.
func (h *OpenAPIHandler) JSON(w http.ResponseWriter, r *http.Request) {
	h.jsonOnce.Do(func() {
		h.jsonSpec, h.jsonErr = yaml.YAMLToJSON(h.rawYAML)
	})

	if h.jsonErr != nil {
		middleware.Logger(r.Context()).Error("failed to convert OpenAPI document to JSON", "error", h.jsonErr)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to convert OpenAPI document", middleware.GetRequestID(r.Context()))
		return
	}
	write(w, r, "application/json", h.jsonSpec)
}

// YAML serves the document unchanged.
func (h *OpenAPIHandler) YAML(w http.ResponseWriter, r *http.Request) {
	write(w, r, "application/yaml", h.rawYAML)
}

func write(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		middleware.Logger(r.Context()).Error("failed to write OpenAPI response", "error", err)
	}
}
