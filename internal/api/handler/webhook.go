package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/api/response"
	"github.com/hafedapp/entitlement/internal/metrics"
	"github.com/hafedapp/entitlement/internal/purchase"
)

const maxPingBytes = 64 << 10

var outcomeText = map[purchase.Outcome]string{
	purchase.OutcomeIgnoredProduct: "Ignoring ping for different product",
	purchase.OutcomeIgnoredRefund:  "Ignoring refund ping",
	purchase.OutcomeUpgraded:       "Success - profile upgraded to premium",
	purchase.OutcomeShadowCreated:  "Success - premium reserved for buyer",
}

// PurchaseHandler handles POST /webhooks/purchase. The payment platform
// posts a form and only looks at the status code.
type PurchaseHandler struct {
	svc     *purchase.Service
	tokens  *purchase.TokenChecker
	metrics *metrics.Metrics
}

// NewPurchaseHandler creates a new PurchaseHandler.
func NewPurchaseHandler(svc *purchase.Service, tokens *purchase.TokenChecker, m *metrics.Metrics) *PurchaseHandler {
	return &PurchaseHandler{svc: svc, tokens: tokens, metrics: m}
}

// ServeHTTP applies one purchase ping.
func (h *PurchaseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	log := middleware.Logger(r.Context())

	if !h.tokens.Check(r.URL.Query().Get("token")) {
		log.Warn("purchase ping with bad token", "remoteAddr", r.RemoteAddr)
		h.metrics.WebhookPing("unauthorized")
		response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook token", requestID)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPingBytes)
	if err := r.ParseForm(); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_FORM", "Request body must be a URL-encoded form", requestID)
		return
	}

	refunded, _ := strconv.ParseBool(r.PostForm.Get("refunded"))
	ping := purchase.Ping{
		Email:      r.PostForm.Get("email"),
		ProductID:  r.PostForm.Get("product_id"),
		LicenseKey: r.PostForm.Get("license_key"),
		SaleID:     r.PostForm.Get("sale_id"),
		Refunded:   refunded,
	}

	outcome, err := h.svc.Handle(r.Context(), ping)
	if err != nil {
		if errors.Is(err, purchase.ErrMissingEmail) {
			h.metrics.WebhookPing("missing_email")
			response.Err(w, http.StatusBadRequest, "MISSING_EMAIL", "No email provided in ping", requestID)
			return
		}
		log.Error("failed to apply purchase ping", "saleId", ping.SaleID, "error", err)
		h.metrics.WebhookPing("error")
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to apply purchase", requestID)
		return
	}

	h.metrics.WebhookPing(string(outcome))
	response.Text(w, http.StatusOK, outcomeText[outcome])
}
