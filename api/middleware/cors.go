package middleware

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/commerce-core/pkg/config"
)

// CORS applies the allowed origin policy. Outside production any localhost
// origin is accepted so dev frontends on arbitrary ports work.
func CORS(app config.AppConfig) func(http.Handler) http.Handler {
	allowed := append([]string(nil), app.CORSOrigins...)
	localOK := !app.IsProd()
	return cors.New(cors.Options{
		// An empty AllowedOrigins means "allow all" to the cors package, so
		// origins are always checked here instead.
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return (localOK && isLocalOrigin(origin)) || containsOrigin(allowed, origin)
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, "X-Request-Id"},
		// Clients read these to detect replays and back off on in-flight keys.
		ExposedHeaders:   []string{"X-Request-Id", ReplayedHeader, "Retry-After", "WWW-Authenticate"},
		AllowCredentials: true,
		MaxAge:           int(max(app.CORSMaxAge, 0) / time.Second),
	}).Handler
}

func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		return u.Scheme == "http" || u.Scheme == "https"
	}
	return false
}

func containsOrigin(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
