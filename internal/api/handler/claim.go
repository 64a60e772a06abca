package handler

import (
	"errors"
	"net/http"

	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/api/response"
	"github.com/hafedapp/entitlement/internal/reconcile"
)

type claimResponse struct {
	Success bool `json:"success"`
	Claimed bool `json:"claimed"`
}

// ClaimHandler handles POST /profile/claim.
type ClaimHandler struct {
	reconciler *reconcile.Service
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(reconciler *reconcile.Service) *ClaimHandler {
	return &ClaimHandler{reconciler: reconciler}
}

// ServeHTTP links the shadow profile for the caller's verified email, if any.
func (h *ClaimHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id := middleware.GetIdentity(r.Context())
	if id == nil {
		response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization", requestID)
		return
	}

	claimed, err := h.reconciler.ClaimShadow(r.Context(), id)
	if err != nil {
		if errors.Is(err, reconcile.ErrNoEmail) {
			response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated or missing email", requestID)
			return
		}
		middleware.Logger(r.Context()).Error("failed to claim shadow profile", "authUserId", id.UserID, "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to claim shadow profile", requestID)
		return
	}

	response.JSON(w, http.StatusOK, claimResponse{Success: true, Claimed: claimed})
}
