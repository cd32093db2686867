package routes

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/commerce-core/internal/commercetest"
	"github.com/angelmondragon/commerce-core/internal/orders"
	stripewebhook "github.com/angelmondragon/commerce-core/internal/webhooks/stripe"
	"github.com/angelmondragon/commerce-core/pkg/auth"
	"github.com/angelmondragon/commerce-core/pkg/config"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
)

const webhookSecret = "whsec_router"

type harness struct {
	t      *testing.T
	stack  *commercetest.Stack
	cfg    *config.Config
	router http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	stack := commercetest.New(t)
	stripeSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Reconciler: stack.Webhooks})
	require.NoError(t, err)

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "commerce-core", ExpirationMinutes: 60},
	}
	router, err := NewRouter(cfg, nil, Services{
		Orders:         stack.Orders,
		Refunds:        stack.Refunds,
		Transfers:      stack.Transfers,
		Ledger:         stack.Ledger,
		StripeWebhooks: stripeSvc,
		StripeSigner:   signer{},
	}, Infra{
		DB:          stack.Client,
		Idempotency: newMemoryStore(),
	})
	require.NoError(t, err)
	return &harness{t: t, stack: stack, cfg: cfg, router: router}
}

func (h *harness) token(ref string, role enums.ActorRole) string {
	h.t.Helper()
	signer, err := auth.NewSigner(h.cfg.JWT)
	require.NoError(h.t, err)
	token, err := signer.Mint(time.Now(), auth.Principal{ActorRef: ref, Role: role})
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) deliver(eventType stripe.EventType, paymentIntentRef string) *httptest.ResponseRecorder {
	h.t.Helper()
	object, err := json.Marshal(map[string]any{"id": paymentIntentRef, "object": "payment_intent"})
	require.NoError(h.t, err)
	payload, err := json.Marshal(&stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       eventType,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: object},
	})
	require.NoError(h.t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Data
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.stack.Stock(t, "sku-1", 10)
	customer := h.token(commercetest.Customer, enums.ActorRoleCustomer)
	seller := h.token(commercetest.Seller, enums.ActorRoleSeller)

	rec := h.do(http.MethodPost, "/api/v1/orders", customer, map[string]any{
		"seller_ref": commercetest.Seller,
		"items":      []map[string]any{{"product_ref": "sku-1", "quantity": 3, "unit_price": "12.50"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData(t, rec)
	require.Equal(t, "37.50", created["total"])
	orderID := created["id"].(string)

	rec = h.do(http.MethodPost, "/api/v1/orders/"+orderID+"/payment-intent", customer, map[string]any{"payment_intent_ref": "pi_http"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.deliver(stripe.EventTypePaymentIntentSucceeded, "pi_http")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, string(enums.WebhookOutcomeApplied), decodeData(t, rec)["outcome"])

	rec = h.do(http.MethodGet, "/api/v1/orders/"+orderID, customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decodeData(t, rec)
	require.Equal(t, string(enums.OrderStatusConfirmed), order["status"])
	require.Equal(t, string(enums.PaymentStatusPaid), order["payment_status"])
	require.Equal(t, int64(7), h.stack.Quantity(t, "sku-1"))

	rec = h.do(http.MethodPost, "/api/v1/orders/"+orderID+"/refunds", customer, map[string]any{"amount": "10.00", "method": "original_payment"})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/v1/orders/"+orderID+"/refunds", seller, map[string]any{"amount": "40.00", "method": "original_payment"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/v1/orders/"+orderID+"/refunds", seller, map[string]any{"amount": "10.00", "method": "original_payment"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, string(enums.RefundStatusCompleted), decodeData(t, rec)["status"])

	rec = h.do(http.MethodGet, "/api/v1/orders/"+orderID+"/refunds", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decodeData(t, rec)["refunds"], 1)
}

func TestDuplicateWebhookOverHTTPAppliesOnce(t *testing.T) {
	h := newHarness(t)
	h.stack.Stock(t, "sku-1", 10)
	order := h.stack.PlaceOrder(t, orderItem("sku-1", 2))

	first := h.deliver(stripe.EventTypePaymentIntentSucceeded, *order.PaymentIntentRef)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := h.deliver(stripe.EventTypePaymentIntentSucceeded, *order.PaymentIntentRef)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	require.Equal(t, string(enums.WebhookOutcomeNoop), decodeData(t, second)["outcome"])

	require.Equal(t, int64(8), h.stack.Quantity(t, "sku-1"))
}

func TestUnknownPaymentIntentIsRetryable(t *testing.T) {
	h := newHarness(t)
	rec := h.deliver(stripe.EventTypePaymentIntentSucceeded, "pi_nobody")
	require.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
	require.Zero(t, h.stack.Count(t, &models.PaymentWebhookEvent{}, ""))
}

func TestForeignOrdersLookAbsent(t *testing.T) {
	h := newHarness(t)
	order := h.stack.PlaceOrder(t, orderItem("sku-1", 1))

	rec := h.do(http.MethodGet, "/api/v1/orders/"+order.ID.String(), h.token("cust-other", enums.ActorRoleCustomer), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/orders/"+order.ID.String(), h.token("ops-1", enums.ActorRoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestManualTransitionsRejectPaymentEvents(t *testing.T) {
	h := newHarness(t)
	order := h.stack.PlaceOrder(t, orderItem("sku-1", 1))
	admin := h.token("ops-1", enums.ActorRoleAdmin)

	rec := h.do(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/transitions", admin, map[string]any{"event": "payment_captured"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/transitions", admin, map[string]any{"event": "ship", "courier_ref": "ups"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/transitions", h.token(commercetest.Customer, enums.ActorRoleCustomer), map[string]any{"event": "cancel"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, string(enums.OrderStatusCancelled), decodeData(t, rec)["status"])
}

func TestTransferFinalizationIsRetrySafe(t *testing.T) {
	h := newHarness(t)
	h.stack.Stock(t, "sku-t", 10)
	manager := h.token("wm-1", enums.ActorRoleWarehouseManager)

	rec := h.do(http.MethodPost, "/api/admin/v1/transfers", manager, map[string]any{
		"product_ref":        "sku-t",
		"from_warehouse_ref": commercetest.Warehouse,
		"to_warehouse_ref":   "wh-east",
		"quantity":           4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeData(t, rec)["id"].(string)

	base := "/api/admin/v1/transfers/" + id
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, base+"/approve", manager, nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, base+"/complete", manager, nil).Code)

	again := h.do(http.MethodPost, base+"/complete", manager, nil)
	require.Equal(t, http.StatusOK, again.Code, again.Body.String())
	require.Equal(t, string(enums.TransferStatusCompleted), decodeData(t, again)["status"])

	require.Equal(t, http.StatusConflict, h.do(http.MethodPost, base+"/cancel", manager, nil).Code)

	total, err := h.stack.Ledger.Total(context.Background(), "sku-t")
	require.NoError(t, err)
	require.Equal(t, int64(10), total)
	east, err := h.stack.Ledger.Get(context.Background(), "sku-t", "wh-east")
	require.NoError(t, err)
	require.Equal(t, int64(4), east.Quantity)
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/admin/v1/stock", "", nil).Code)
	require.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/admin/v1/stock", h.token("cust-1", enums.ActorRoleCustomer), nil).Code)

	adjust := map[string]any{"product_ref": "sku-a", "warehouse_ref": commercetest.Warehouse, "delta": 5}
	require.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/admin/v1/stock/adjustments", h.token("wm-1", enums.ActorRoleWarehouseManager), adjust).Code)

	rec := h.do(http.MethodPost, "/api/admin/v1/stock/adjustments", h.token("ops-1", enums.ActorRoleAdmin), adjust)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/admin/v1/stock?product_ref=sku-a", h.token("wm-1", enums.ActorRoleWarehouseManager), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 5, decodeData(t, rec)["total"])
}

func TestHealthLiveIsPublic(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/live", "", nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/ready", "", nil).Code)
}

type signer struct{}

func (signer) SigningSecrets() []string { return []string{webhookSecret} }

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprintf("%v", value)
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func orderItem(product string, qty int64) orders.ItemInput {
	return orders.ItemInput{ProductRef: product, Quantity: qty, UnitPriceCents: 1000}
}

func TestWhoAmIEchoesPrincipal(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/me", h.token("wm-3", enums.ActorRoleWarehouseManager), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decodeData(t, rec)
	require.Equal(t, "wm-3", me["actor_ref"])
	require.Equal(t, true, me["staff"])
	require.NotEmpty(t, me["expires_at"])

	rec = h.do(http.MethodGet, "/api/v1/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderCreateReplaysOnSameIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	h.stack.Stock(t, "sku-1", 10)
	customer := h.token(commercetest.Customer, enums.ActorRoleCustomer)
	body, err := json.Marshal(map[string]any{
		"seller_ref": commercetest.Seller,
		"items":      []map[string]any{{"product_ref": "sku-1", "quantity": 1, "unit_price": "5.00"}},
	})
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "order-once")
		req.Header.Set("Authorization", "Bearer "+customer)
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.Equal(t, decodeData(t, first)["id"], decodeData(t, second)["id"])
	require.Equal(t, int64(1), h.stack.Count(t, &models.Order{}, ""))
}

func TestOrderListPagesByCursor(t *testing.T) {
	h := newHarness(t)
	h.stack.Stock(t, "sku-1", 10)
	for range 3 {
		h.stack.PlaceOrder(t, orderItem("sku-1", 1))
	}
	customer := h.token(commercetest.Customer, enums.ActorRoleCustomer)

	type listBody struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Count      int    `json:"count"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		} `json:"meta"`
	}
	page := func(path string) listBody {
		rec := h.do(http.MethodGet, path, customer, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body listBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	first := page("/api/v1/orders?limit=2")
	require.Len(t, first.Data, 2)
	require.True(t, first.Meta.HasMore)

	second := page("/api/v1/orders?limit=2&cursor=" + first.Meta.NextCursor)
	require.Len(t, second.Data, 1)
	require.False(t, second.Meta.HasMore)
	require.NotEqual(t, first.Data[0]["id"], second.Data[0]["id"])

	rec := h.do(http.MethodGet, "/api/v1/orders?cursor=garbage", customer, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodGet, "/api/v1/orders?limit=500", customer, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
