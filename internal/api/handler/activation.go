package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hafedapp/entitlement/internal/activation"
	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/api/response"
	"github.com/hafedapp/entitlement/internal/api/validation"
	"github.com/hafedapp/entitlement/internal/license"
	"github.com/hafedapp/entitlement/internal/metrics"
)

type activateRequest struct {
	LicenseKey string `json:"license_key"`
}

type activateResponse struct {
	Success          bool   `json:"success"`
	PremiumExpiresAt string `json:"premium_expires_at"`
}

// ActivationHandler handles POST /license/activate.
type ActivationHandler struct {
	svc     *activation.Service
	metrics *metrics.Metrics
}

// NewActivationHandler creates a new ActivationHandler.
func NewActivationHandler(svc *activation.Service, m *metrics.Metrics) *ActivationHandler {
	return &ActivationHandler{svc: svc, metrics: m}
}

// ServeHTTP activates a license key on the caller's own profile.
func (h *ActivationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id := middleware.GetIdentity(r.Context())
	if id == nil {
		response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization", requestID)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	fieldErrors := validation.ValidateActivationRequest(validation.ActivationRequest{LicenseKey: req.LicenseKey})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	res, err := h.svc.Activate(r.Context(), id, req.LicenseKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.metrics.Activation("activated")
	response.JSON(w, http.StatusOK, activateResponse{
		Success:          true,
		PremiumExpiresAt: res.PremiumExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *ActivationHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	switch {
	case errors.Is(err, activation.ErrMissingKey):
		h.metrics.Activation("missing_key")
		response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", "license_key is required", requestID)
	case errors.Is(err, activation.ErrInvalidLicense):
		h.metrics.Activation("invalid")
		response.Err(w, http.StatusPaymentRequired, "LICENSE_INVALID", "Invalid or expired license key", requestID)
	case errors.Is(err, activation.ErrLicenseRevoked):
		h.metrics.Activation("revoked")
		response.Err(w, http.StatusPaymentRequired, "LICENSE_REVOKED", "License has been refunded or disputed", requestID)
	case errors.Is(err, license.ErrAuthorityUnavailable):
		h.metrics.Activation("authority_unavailable")
		middleware.Logger(r.Context()).Warn("license authority unavailable", "error", err)
		w.Header().Set("Retry-After", "30")
		response.Err(w, http.StatusServiceUnavailable, "AUTHORITY_UNAVAILABLE", "License verification is temporarily unavailable, try again", requestID)
	case errors.Is(err, activation.ErrNoProfile):
		h.metrics.Activation("no_profile")
		response.Err(w, http.StatusNotFound, "PROFILE_NOT_FOUND", "No profile exists for this account", requestID)
	default:
		h.metrics.Activation("error")
		middleware.Logger(r.Context()).Error("failed to activate license", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to activate license", requestID)
	}
}
