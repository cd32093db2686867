package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCommerceMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCommerceMetrics(reg)
	m.WebhookEvent("succeeded", "applied")
	m.WebhookEvent("succeeded", "applied")
	m.LedgerConflict("")
	m.Refund("store_credit", "COMPLETED")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := counterWithLabels(mfs, "commerce_webhook_events_total", map[string]string{"outcome": "applied"}); err != nil || got != 2 {
		t.Fatalf("expected 2 applied webhooks, got %f (%v)", got, err)
	}
	if got, err := counterWithLabels(mfs, "commerce_stock_ledger_conflicts_total", map[string]string{"operation": "unknown"}); err != nil || got != 1 {
		t.Fatalf("expected empty label normalized to unknown, got %f (%v)", got, err)
	}
	if got, err := counterWithLabels(mfs, "commerce_refunds_total", map[string]string{"method": "store_credit"}); err != nil || got != 1 {
		t.Fatalf("expected 1 refund, got %f (%v)", got, err)
	}
}

func TestCommerceMetricsNilSafe(t *testing.T) {
	var m *CommerceMetrics
	m.WebhookEvent("a", "b")
	NewCommerceMetrics(nil).Refund("a", "b")
}

func TestHTTPMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.ObserveRequest("POST", "/api/v1/orders/{orderId}/capture", 200, 20*time.Millisecond)
	m.ObserveRequest("POST", "/api/v1/orders/{orderId}/capture", 200, 20*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := counterWithLabels(mfs, "commerce_http_requests_total", map[string]string{"route": "/api/v1/orders/{orderId}/capture", "code": "200"})
	if err != nil || got != 2 {
		t.Fatalf("expected 2 capture requests, got %f (%v)", got, err)
	}
	if got, err := counterWithLabels(mfs, "commerce_http_requests_total", map[string]string{"route": "unknown", "code": "404"}); err != nil || got != 1 {
		t.Fatalf("expected unmatched route labelled unknown, got %f (%v)", got, err)
	}
}
