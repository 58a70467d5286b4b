package api

import (
	"net/http"
	"time"

	"github.com/example/ec-stock-reservation/internal/api/middleware"
)

// MemberResponse describes the caller as the service sees it
type MemberResponse struct {
	MemberID  string     `json:"member_id"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Me returns the identity attached to the current request
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetMemberFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	resp := MemberResponse{
		MemberID: claims.MemberID,
		Email:    claims.Email,
		Role:     claims.Role,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	respondJSON(w, http.StatusOK, resp)
}
