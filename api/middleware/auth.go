package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/commerce-core/api/responses"
	"github.com/angelmondragon/commerce-core/pkg/auth"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

// TokenVerifier turns a bearer token into the calling principal.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Auth rejects requests without a valid bearer token and stores the caller
// on the request context for controllers and the idempotency guard.
func Auth(verifier TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"), "")
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				msg, challenge := "invalid token", `error="invalid_token"`
				if errors.Is(err, auth.ErrTokenExpired) {
					msg, challenge = "token expired", `error="invalid_token", error_description="token expired"`
				}
				unauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg), challenge)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithActor(ctx, principal.ActorRef, string(principal.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error, challenge string) {
	value := "Bearer"
	if challenge != "" {
		value += " " + challenge
	}
	w.Header().Set("WWW-Authenticate", value)
	responses.WriteError(r.Context(), logg, w, err)
}
