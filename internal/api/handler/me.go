package handler

import (
	"net/http"
	"time"

	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/api/response"
	"github.com/hafedapp/entitlement/internal/profile"
)

type profileResponse struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	FullName         string   `json:"fullName"`
	IsPremium        bool     `json:"isPremium"`
	IsAdmin          bool     `json:"isAdmin"`
	PremiumExpiresAt *string  `json:"premiumExpiresAt"`
	Level            int      `json:"level"`
	XP               int      `json:"xp"`
	Streak           int      `json:"streak"`
	Badges           []string `json:"badges"`
}

type meResponse struct {
	Authenticated    bool             `json:"authenticated"`
	Entitled         bool             `json:"entitled"`
	Reason           string           `json:"reason"`
	PremiumExpiresAt *string          `json:"premiumExpiresAt"`
	Degraded         bool             `json:"degraded,omitempty"`
	Profile          *profileResponse `json:"profile"`
}

// MeHandler handles GET /me.
type MeHandler struct {
	status *StatusResolver
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(status *StatusResolver) *MeHandler {
	return &MeHandler{status: status}
}

// ServeHTTP reports the caller's entitlement. It always answers; a slow or
// failing store yields a non-premium response flagged as degraded.
func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := middleware.GetIdentity(r.Context())

	st := h.status.Resolve(r.Context(), id)

	resp := meResponse{
		Authenticated:    id != nil,
		Entitled:         st.Entitled,
		Reason:           string(st.Reason),
		PremiumExpiresAt: formatTime(st.ExpiresAt),
		Degraded:         st.Degraded,
	}
	if st.Profile != nil {
		resp.Profile = toProfileResponse(st.Profile)
	}

	response.Success(w, http.StatusOK, resp, requestID)
}

func toProfileResponse(p *profile.Profile) *profileResponse {
	badges := p.Badges
	if badges == nil {
		badges = []string{}
	}
	return &profileResponse{
		ID:               p.ID.String(),
		Email:            p.Email,
		FullName:         p.FullName,
		IsPremium:        p.IsPremium,
		IsAdmin:          p.IsAdmin,
		PremiumExpiresAt: formatTime(p.PremiumExpiresAt),
		Level:            p.Level,
		XP:               p.XP,
		Streak:           p.Streak,
		Badges:           badges,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
