// Package commercetest wires the order, ledger and refund services over an
// in-memory database for cross-package tests.
package commercetest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commerce-core/internal/app"
	"github.com/angelmondragon/commerce-core/internal/ledger"
	"github.com/angelmondragon/commerce-core/internal/orders"
	"github.com/angelmondragon/commerce-core/internal/refunds"
	"github.com/angelmondragon/commerce-core/internal/returns"
	"github.com/angelmondragon/commerce-core/internal/storecredit"
	"github.com/angelmondragon/commerce-core/internal/transfers"
	"github.com/angelmondragon/commerce-core/internal/warehouses"
	paymentwebhook "github.com/angelmondragon/commerce-core/internal/webhooks/payments"
	dbpkg "github.com/angelmondragon/commerce-core/pkg/db"
	"github.com/angelmondragon/commerce-core/pkg/db/dbtest"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/stripe"
)

const (
	Seller    = "seller-1"
	Customer  = "cust-1"
	Warehouse = "wh-main"
)

// Stack is the full transactional core bound to one test database.
type Stack struct {
	DB          *gorm.DB
	Client      *dbpkg.Client
	Ledger      ledger.Service
	Warehouses  warehouses.Service
	OrderRepo   orders.Repository
	Orders      orders.Service
	Refunds     refunds.Service
	StoreCredit storecredit.Service
	Returns     returns.Service
	Transfers   transfers.Service
	Webhooks    paymentwebhook.Reconciler
	Gateway     *FakeGateway
}

func New(t testing.TB) *Stack {
	t.Helper()
	conn := dbtest.Open(t)
	client := dbpkg.NewFromGorm(conn)
	gateway := &FakeGateway{}

	core, err := app.NewCore(app.CoreParams{DB: conn, Tx: client, Gateway: gateway})
	must(t, err)

	_, err = core.Warehouses.Assign(context.Background(), warehouses.AssignInput{SellerRef: Seller, WarehouseRef: Warehouse, IsDefault: true})
	must(t, err)

	return &Stack{
		DB:          conn,
		Client:      client,
		Ledger:      core.Ledger,
		Warehouses:  core.Warehouses,
		OrderRepo:   core.OrderRepo,
		Orders:      core.Orders,
		Refunds:     core.Refunds,
		StoreCredit: core.StoreCredit,
		Returns:     core.Returns,
		Transfers:   core.Transfers,
		Webhooks:    core.Webhooks,
		Gateway:     gateway,
	}
}

// Stock adds qty units of product to the seller's warehouse.
func (s *Stack) Stock(t testing.TB, product string, qty int64) {
	t.Helper()
	must(t, s.Ledger.Increment(context.Background(), nil, ledger.Movement{
		ProductRef: product, WarehouseRef: Warehouse, Quantity: qty,
		Reason: enums.StockMovementAdjustment, ReferenceType: "seed",
	}))
}

// Quantity reads the seller warehouse's stock, zero when no row exists.
func (s *Stack) Quantity(t testing.TB, product string) int64 {
	t.Helper()
	entry, err := s.Ledger.Get(context.Background(), product, Warehouse)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return 0
	}
	must(t, err)
	return entry.Quantity
}

// PlaceOrder creates a PENDING order with a payment intent attached.
func (s *Stack) PlaceOrder(t testing.TB, items ...orders.ItemInput) *models.Order {
	t.Helper()
	ctx := context.Background()
	order, err := s.Orders.Create(ctx, orders.CreateInput{CustomerRef: Customer, SellerRef: Seller, Items: items})
	must(t, err)
	order, err = s.Orders.AttachPaymentIntent(ctx, order.ID, "pi_"+order.ID.String(), orders.SystemActor)
	must(t, err)
	return order
}

// CapturedOrder places an order for qty units of product priced at unitCents
// and drives it to CONFIRMED.
func (s *Stack) CapturedOrder(t testing.TB, product string, qty, unitCents int64) *models.Order {
	t.Helper()
	order := s.PlaceOrder(t, orders.ItemInput{ProductRef: product, Quantity: qty, UnitPriceCents: unitCents})
	confirmed, err := s.Orders.Transition(context.Background(), order.ID, orders.Event{Kind: orders.EventPaymentCaptured}, orders.SystemActor)
	must(t, err)
	return confirmed
}

// Order reloads an order.
func (s *Stack) Order(t testing.TB, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := s.Orders.Get(context.Background(), id)
	must(t, err)
	return order
}

// Count returns the number of rows of model matching the optional condition.
func (s *Stack) Count(t testing.TB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := s.DB.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	must(t, q.Count(&n).Error)
	return n
}

// FakeGateway records refund and capture calls. Err, when set, is returned
// by RefundPayment and RefundStatus until cleared. Status is the provider
// refund status reported back; empty means succeeded.
type FakeGateway struct {
	mu       sync.Mutex
	Err      error
	Status   string
	Refunds  []stripe.RefundRequest
	Lookups  []string
	Captures []string
}

func (g *FakeGateway) RefundPayment(_ context.Context, req stripe.RefundRequest) (stripe.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Refunds = append(g.Refunds, req)
	return g.result("re_" + req.IdempotencyKey)
}

func (g *FakeGateway) RefundStatus(_ context.Context, providerRefundRef string) (stripe.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Lookups = append(g.Lookups, providerRefundRef)
	return g.result(providerRefundRef)
}

func (g *FakeGateway) result(ref string) (stripe.RefundResult, error) {
	if g.Err != nil {
		return stripe.RefundResult{}, g.Err
	}
	status := g.Status
	switch status {
	case "":
		status = "succeeded"
	case "failed", "canceled":
		return stripe.RefundResult{}, pkgerrors.New(pkgerrors.CodeGatewayError, "refund rejected by provider").
			WithDetails(map[string]any{"provider_refund_ref": ref, "status": status})
	}
	return stripe.RefundResult{ProviderRefundRef: ref, Status: status}, nil
}

func (g *FakeGateway) CapturePayment(_ context.Context, paymentRef, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Captures = append(g.Captures, paymentRef)
	return nil
}

// SetErr swaps the error returned by RefundPayment.
func (g *FakeGateway) SetErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Err = err
}

// SetStatus swaps the provider refund status reported back.
func (g *FakeGateway) SetStatus(status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Status = status
}

// RefundCalls reports how many refund calls were made.
func (g *FakeGateway) RefundCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Refunds)
}

func must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("commercetest: %v", err)
	}
}
