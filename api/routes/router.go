package routes

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/commerce-core/api/controllers"
	inventorycontrollers "github.com/angelmondragon/commerce-core/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/commerce-core/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/commerce-core/api/controllers/webhooks"
	"github.com/angelmondragon/commerce-core/api/middleware"
	"github.com/angelmondragon/commerce-core/internal/ledger"
	"github.com/angelmondragon/commerce-core/internal/orders"
	"github.com/angelmondragon/commerce-core/internal/refunds"
	"github.com/angelmondragon/commerce-core/internal/transfers"
	"github.com/angelmondragon/commerce-core/pkg/auth"
	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	pkgredis "github.com/angelmondragon/commerce-core/pkg/redis"
)

// Services are the domain entry points exposed over HTTP.
type Services struct {
	Orders         orders.Service
	Refunds        refunds.Service
	Transfers      transfers.Service
	Ledger         ledger.Service
	StripeWebhooks webhookcontrollers.StripeWebhookService
	StripeSigner   webhookcontrollers.SecretSource
}

// Infra carries health probes and cross-cutting stores. Nil members disable
// the feature they back.
type Infra struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Metrics     http.Handler
	Requests    middleware.RequestObserver
}

// NewRouter fails only when the JWT settings cannot build a verifier.
func NewRouter(cfg *config.Config, logg *logger.Logger, svc Services, infra Infra) (http.Handler, error) {
	verifier, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("jwt verifier: %w", err)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, infra.Requests),
		middleware.CORS(cfg.App),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessChecks(infra)))
	})
	if infra.Metrics != nil {
		r.Handle("/metrics", infra.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(svc.StripeWebhooks, svc.StripeSigner, cfg.Webhooks.SignatureTolerance, logg))
	})

	idem := middleware.NewIdempotencyGuard(infra.Idempotency, logg)
	money := idem.Require(middleware.MoneyIdempotencyTTL)
	standard := idem.Require(middleware.StandardIdempotencyTTL)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(verifier, logg))

		r.Get("/me", controllers.WhoAmI())
		r.Route("/orders", func(r chi.Router) {
			r.With(money).Post("/", ordercontrollers.Create(svc.Orders, logg))
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
			r.With(standard).Post("/{orderId}/payment-intent", ordercontrollers.AttachPaymentIntent(svc.Orders, logg))
			r.With(money).Post("/{orderId}/capture", ordercontrollers.Capture(svc.Orders, logg))
			r.Post("/{orderId}/transitions", ordercontrollers.Transition(svc.Orders, logg))
			r.With(money).Post("/{orderId}/refunds", ordercontrollers.CreateRefund(svc.Refunds, logg))
			r.Get("/{orderId}/refunds", ordercontrollers.ListRefunds(svc.Refunds, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(verifier, logg))
		r.Use(middleware.RequireStaff(logg))

		r.Route("/transfers", func(r chi.Router) {
			r.With(standard).Post("/", inventorycontrollers.CreateTransfer(svc.Transfers, logg))
			r.Get("/", inventorycontrollers.ListTransfers(svc.Transfers, logg))
			r.Get("/{transferId}", inventorycontrollers.GetTransfer(svc.Transfers, logg))
			r.Post("/{transferId}/approve", inventorycontrollers.ApproveTransfer(svc.Transfers, logg))
			r.Post("/{transferId}/complete", inventorycontrollers.CompleteTransfer(svc.Transfers, logg))
			r.Post("/{transferId}/cancel", inventorycontrollers.CancelTransfer(svc.Transfers, logg))
		})
		r.Route("/stock", func(r chi.Router) {
			r.Get("/", inventorycontrollers.ListStock(svc.Ledger, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleAdmin), standard).
				Post("/adjustments", inventorycontrollers.AdjustStock(svc.Ledger, logg))
		})
	})

	return r, nil
}

func readinessChecks(infra Infra) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{"db": infra.DB}
	if infra.Redis != nil {
		checks["redis"] = infra.Redis
	}
	return checks
}
