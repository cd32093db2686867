// Package stripe is the payment gateway adapter: a configured stripe-go client
// plus the capture and refund calls the commerce core depends on.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	testEnv Mode = "test"
	liveEnv Mode = "live"
)

// keyPrefixes lists the secret and restricted key prefixes each mode accepts.
var keyPrefixes = map[Mode][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client holds a per-instance stripe-go client. The package-level stripe.Key is
// never set, so tests and multiple clients cannot leak credentials into each other.
type Client struct {
	api            *stripe.Client
	mode           Mode
	signingSecrets []string
}

// NewClient validates the key against the configured environment and builds a
// client whose HTTP transport is bounded by the gateway timeout.
func NewClient(ctx context.Context, cfg config.StripeConfig, gateway config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	signingSecrets := splitSecrets(cfg.WebhookSecret)
	if len(signingSecrets) == 0 {
		return nil, errSecretRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	timeout := gateway.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout + time.Second},
		MaxNetworkRetries: stripe.Int64(int64(cfg.MaxNetworkRetries)),
	}
	if logg != nil {
		backendCfg.LeveledLogger = &leveledLogger{ctx: logg.WithField(context.WithoutCancel(ctx), "component", "stripe"), logg: logg}
	}
	api := stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendCfg)))

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env":          env,
			"max_network_retries": cfg.MaxNetworkRetries,
		}), "stripe client initialized")
	}
	return &Client{
		api:            api,
		mode:           env,
		signingSecrets: signingSecrets,
	}, nil
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

// SigningSecrets returns every accepted webhook secret, newest first. Stripe
// signs with both while an endpoint secret is being rolled.
func (c *Client) SigningSecrets() []string {
	if c == nil {
		return nil
	}
	return c.signingSecrets
}

func splitSecrets(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if secret := strings.TrimSpace(part); secret != "" {
			out = append(out, secret)
		}
	}
	return out
}

// leveledLogger routes stripe-go diagnostics through zerolog. Info and debug
// chatter is demoted to debug.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l *leveledLogger) Debugf(format string, v ...any) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Infof(format string, v ...any) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.ctx, fmt.Sprintf(format, v...))
}

func (l *leveledLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.ctx, "stripe client error", fmt.Errorf(format, v...))
}

// normalizeEnv defaults a blank mode to test.
func normalizeEnv(raw string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		return testEnv, nil
	}
	if _, ok := keyPrefixes[mode]; !ok {
		return "", errInvalidStripeEnv
	}
	return mode, nil
}

// validateAPIKey rejects keys minted for the other mode.
func validateAPIKey(env Mode, key string) error {
	allowed, ok := keyPrefixes[env]
	if !ok {
		return errInvalidStripeEnv
	}
	if slices.ContainsFunc(allowed, func(prefix string) bool { return strings.HasPrefix(key, prefix) }) {
		return nil
	}
	return fmt.Errorf("stripe environment %q requires a %s secret key (%s)", env, env, strings.Join(allowed, "/"))
}
