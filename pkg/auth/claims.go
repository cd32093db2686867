// Package auth signs and verifies the HS256 access tokens the API accepts.
// Tokens are minted by the identity provider; the signer here exists for
// tooling and tests.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/commerce-core/pkg/enums"
)

// Principal is the authenticated caller. ActorRef scopes what a customer or
// seller may see; Role gates staff routes.
type Principal struct {
	ActorRef  string
	Role      enums.ActorRole
	TokenID   string
	ExpiresAt time.Time
}

// IsStaff reports whether the principal may use the admin API.
func (p Principal) IsStaff() bool {
	return p.Role == enums.ActorRoleAdmin || p.Role == enums.ActorRoleWarehouseManager
}

type accessClaims struct {
	ActorRef string          `json:"actor_ref"`
	Role     enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

func (c *accessClaims) principal() Principal {
	p := Principal{ActorRef: c.ActorRef, Role: c.Role, TokenID: c.ID}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p
}
