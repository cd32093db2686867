// Package app assembles the transactional core so every binary and the
// integration tests share one dependency graph.
package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/internal/ledger"
	"github.com/angelmondragon/commerce-core/internal/orders"
	"github.com/angelmondragon/commerce-core/internal/refunds"
	"github.com/angelmondragon/commerce-core/internal/returns"
	"github.com/angelmondragon/commerce-core/internal/storecredit"
	"github.com/angelmondragon/commerce-core/internal/transfers"
	"github.com/angelmondragon/commerce-core/internal/warehouses"
	paymentwebhook "github.com/angelmondragon/commerce-core/internal/webhooks/payments"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/metrics"
	"github.com/angelmondragon/commerce-core/pkg/outbox"
)

// Gateway is the payment provider surface used by orders and refunds.
type Gateway interface {
	refunds.Gateway
	orders.PaymentCapturer
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type CoreParams struct {
	DB      *gorm.DB
	Tx      txRunner
	Gateway Gateway
	// WebhookCache is optional; nil leaves dedup to the database alone.
	WebhookCache paymentwebhook.ProcessedCache
	Logger       *logger.Logger
	Metrics      *metrics.CommerceMetrics
}

// Core holds every domain service plus the repositories background jobs need.
type Core struct {
	Outbox      *outbox.Service
	OutboxRepo  *outbox.Repository
	Ledger      ledger.Service
	Warehouses  warehouses.Service
	StoreCredit storecredit.Service
	Returns     returns.Service
	OrderRepo   orders.Repository
	Orders      orders.Service
	Refunds     refunds.Service
	Transfers   transfers.Service
	WebhookRepo paymentwebhook.Repository
	Webhooks    paymentwebhook.Reconciler
}

func NewCore(params CoreParams) (*Core, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}

	conn := params.DB
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, params.Logger)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(conn),
		Tx:      params.Tx,
		Logger:  params.Logger,
		Metrics: params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	warehouseSvc, err := warehouses.NewService(warehouses.NewRepository(conn), params.Tx)
	if err != nil {
		return nil, fmt.Errorf("warehouses: %w", err)
	}
	credit, err := storecredit.NewService(conn)
	if err != nil {
		return nil, fmt.Errorf("store credit: %w", err)
	}
	returnSvc, err := returns.NewService(conn)
	if err != nil {
		return nil, fmt.Errorf("returns: %w", err)
	}

	orderRepo := orders.NewRepository(conn)
	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Repo:        refunds.NewRepository(conn),
		Orders:      orderRepo,
		Tx:          params.Tx,
		Gateway:     params.Gateway,
		StoreCredit: credit,
		Returns:     returnSvc,
		Outbox:      emitter,
		Logger:      params.Logger,
		Metrics:     params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("refunds: %w", err)
	}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:       orderRepo,
		Tx:         params.Tx,
		Ledger:     ledgerSvc,
		Warehouses: warehouseSvc,
		Refunds:    refundSvc,
		Gateway:    params.Gateway,
		Outbox:     emitter,
		Logger:     params.Logger,
		Metrics:    params.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	transferSvc, err := transfers.NewService(transfers.ServiceParams{
		Repo:   transfers.NewRepository(conn),
		Ledger: ledgerSvc,
		Tx:     params.Tx,
		Outbox: emitter,
		Logger: params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("transfers: %w", err)
	}

	webhookRepo := paymentwebhook.NewRepository(conn)
	webhookParams := paymentwebhook.ServiceParams{
		Repo:    webhookRepo,
		Orders:  orderSvc,
		Tx:      params.Tx,
		Logger:  params.Logger,
		Metrics: params.Metrics,
	}
	if params.WebhookCache != nil {
		webhookParams.Cache = params.WebhookCache
	}
	reconciler, err := paymentwebhook.NewService(webhookParams)
	if err != nil {
		return nil, fmt.Errorf("payment webhooks: %w", err)
	}

	return &Core{
		Outbox:      emitter,
		OutboxRepo:  outboxRepo,
		Ledger:      ledgerSvc,
		Warehouses:  warehouseSvc,
		StoreCredit: credit,
		Returns:     returnSvc,
		OrderRepo:   orderRepo,
		Orders:      orderSvc,
		Refunds:     refundSvc,
		Transfers:   transferSvc,
		WebhookRepo: webhookRepo,
		Webhooks:    reconciler,
	}, nil
}
