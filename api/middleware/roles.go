package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/commerce-core/api/responses"
	"github.com/angelmondragon/commerce-core/pkg/auth"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

func requirePrincipal(logg *logger.Logger, allowed func(auth.Principal) bool, detail any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !allowed(p) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted").
					WithDetails(map[string]any{"required": detail}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits only principals holding one of roles.
func RequireRole(logg *logger.Logger, roles ...enums.ActorRole) func(http.Handler) http.Handler {
	return requirePrincipal(logg, func(p auth.Principal) bool {
		return slices.Contains(roles, p.Role)
	}, roles)
}

// RequireStaff admits admins and warehouse managers.
func RequireStaff(logg *logger.Logger) func(http.Handler) http.Handler {
	return requirePrincipal(logg, auth.Principal.IsStaff, "staff")
}
