package middleware

import (
	"context"

	"github.com/angelmondragon/commerce-core/pkg/auth"
	"github.com/angelmondragon/commerce-core/pkg/enums"
)

type principalKey struct{}

// WithPrincipal stores the authenticated caller on ctx.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller and whether one was authenticated.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	if ctx == nil {
		return auth.Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// WithActor is shorthand for a principal that only carries ref and role.
func WithActor(ctx context.Context, ref string, role enums.ActorRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return WithPrincipal(ctx, auth.Principal{ActorRef: ref, Role: role})
}

func ActorRefFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.ActorRef
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}
