package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/commerce-core/api/middleware"
	"github.com/angelmondragon/commerce-core/api/responses"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
)

type whoAmIResponse struct {
	ActorRef  string     `json:"actor_ref"`
	Role      string     `json:"role"`
	Staff     bool       `json:"staff"`
	TokenID   string     `json:"token_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// WhoAmI echoes the authenticated principal so clients can check a token.
func WhoAmI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		resp := whoAmIResponse{
			ActorRef: p.ActorRef,
			Role:     string(p.Role),
			Staff:    p.IsStaff(),
			TokenID:  p.TokenID,
		}
		if !p.ExpiresAt.IsZero() {
			exp := p.ExpiresAt.UTC()
			resp.ExpiresAt = &exp
		}
		responses.WriteSuccess(w, resp)
	}
}
