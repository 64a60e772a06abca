package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/api/response"
	"github.com/hafedapp/entitlement/internal/identity"
	"github.com/hafedapp/entitlement/internal/metrics"
	"github.com/hafedapp/entitlement/internal/trial"
)

// DeviceHeader identifies anonymous callers to the trial gate.
const DeviceHeader = "X-Device-ID"

const maxSubjectLen = 128

type trialStatusResponse struct {
	Entitled  bool                 `json:"entitled"`
	Remaining map[trial.Action]int `json:"remaining"`
}

type trialStartResponse struct {
	Allowed   bool `json:"allowed"`
	Entitled  bool `json:"entitled"`
	Remaining int  `json:"remaining"`
}

type trialDenied struct {
	Reason trial.Action `json:"reason"`
	Limit  int          `json:"limit"`
}

// TrialHandler handles the trial gate endpoints. Entitled callers bypass the
// gate entirely.
type TrialHandler struct {
	gate    *trial.Gate
	status  *StatusResolver
	metrics *metrics.Metrics
}

// NewTrialHandler creates a new TrialHandler.
func NewTrialHandler(gate *trial.Gate, status *StatusResolver, m *metrics.Metrics) *TrialHandler {
	return &TrialHandler{gate: gate, status: status, metrics: m}
}

// subject keys the counters: the user id when signed in, else the device.
func subject(r *http.Request, id *identity.Identity) string {
	if id != nil {
		return "user:" + id.UserID
	}
	device := strings.TrimSpace(r.Header.Get(DeviceHeader))
	if device == "" || len(device) > maxSubjectLen {
		return ""
	}
	return "device:" + device
}

// Status handles GET /trial.
func (h *TrialHandler) Status(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := middleware.GetIdentity(r.Context())

	sub := subject(r, id)
	if sub == "" {
		response.Err(w, http.StatusBadRequest, "MISSING_SUBJECT", "Sign in or send an X-Device-ID header", requestID)
		return
	}

	resp := trialStatusResponse{Remaining: make(map[trial.Action]int)}
	if h.status.Resolve(r.Context(), id).Entitled {
		resp.Entitled = true
		for _, a := range h.gate.Actions() {
			resp.Remaining[a] = trial.Unlimited
		}
		response.Success(w, http.StatusOK, resp, requestID)
		return
	}

	for _, a := range h.gate.Actions() {
		left, err := h.gate.Remaining(r.Context(), sub, a)
		if err != nil {
			middleware.Logger(r.Context()).Error("failed to read trial usage", "action", a, "error", err)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read trial usage", requestID)
			return
		}
		resp.Remaining[a] = left
	}
	response.Success(w, http.StatusOK, resp, requestID)
}

// Start handles POST /trial/{action}: it checks the quota and records a use.
func (h *TrialHandler) Start(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := middleware.GetIdentity(r.Context())

	action, err := trial.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		response.Err(w, http.StatusNotFound, "UNKNOWN_ACTION", "Unknown trial action", requestID)
		return
	}

	sub := subject(r, id)
	if sub == "" {
		response.Err(w, http.StatusBadRequest, "MISSING_SUBJECT", "Sign in or send an X-Device-ID header", requestID)
		return
	}

	if h.status.Resolve(r.Context(), id).Entitled {
		h.metrics.TrialDecision(string(action), true)
		response.Success(w, http.StatusOK, trialStartResponse{Allowed: true, Entitled: true, Remaining: trial.Unlimited}, requestID)
		return
	}

	if err := h.gate.Start(r.Context(), sub, action); err != nil {
		if denied, ok := trial.IsDenied(err); ok {
			h.metrics.TrialDecision(string(action), false)
			response.ErrWithDetails(w, http.StatusPaymentRequired, "TRIAL_EXHAUSTED", denied.Error(),
				trialDenied{Reason: denied.Reason, Limit: denied.Limit}, requestID)
			return
		}
		middleware.Logger(r.Context()).Error("trial gate failed", "action", action, "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record trial usage", requestID)
		return
	}

	left, err := h.gate.Remaining(r.Context(), sub, action)
	if err != nil {
		middleware.Logger(r.Context()).Warn("failed to read trial usage after start", "action", action, "error", err)
		left = 0
	}
	h.metrics.TrialDecision(string(action), true)
	response.Success(w, http.StatusOK, trialStartResponse{Allowed: true, Remaining: left}, requestID)
}
