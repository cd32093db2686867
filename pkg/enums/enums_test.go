package enums

import "testing"

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusPending:       false,
		OrderStatusConfirmed:     false,
		OrderStatusProcessing:    false,
		OrderStatusShipped:       false,
		OrderStatusDelivered:     true,
		OrderStatusCancelled:     true,
		OrderStatusPaymentFailed: true,
		OrderStatusStockConflict: true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s: expected terminal=%v", status, want)
		}
	}
}

func TestPaymentStatusCaptured(t *testing.T) {
	for _, status := range []PaymentStatus{PaymentStatusPaid, PaymentStatusPartiallyRefunded, PaymentStatusRefunded} {
		if !status.IsCaptured() {
			t.Errorf("%s should count as captured", status)
		}
	}
	for _, status := range []PaymentStatus{PaymentStatusUnpaid, PaymentStatusFailed} {
		if status.IsCaptured() {
			t.Errorf("%s should not count as captured", status)
		}
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	if _, err := ParseOrderStatus("LOST"); err == nil {
		t.Fatal("expected unknown order status to fail")
	}
	if _, err := ParseTransferStatus("requested"); err == nil {
		t.Fatal("transfer statuses are case sensitive")
	}
	if _, err := ParseCurrency("BTC"); err == nil {
		t.Fatal("expected unsupported currency to fail")
	}
	if got, err := ParseRefundMethod("store_credit"); err != nil || got != RefundMethodStoreCredit {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
}

func TestActorRoleStaff(t *testing.T) {
	if ActorRoleCustomer.IsStaff() || ActorRoleSeller.IsStaff() {
		t.Fatal("customers and sellers are not staff")
	}
	if !ActorRoleAdmin.IsStaff() || !ActorRoleWarehouseManager.IsStaff() {
		t.Fatal("admins and warehouse managers are staff")
	}
}

func TestTransferStatusFinal(t *testing.T) {
	if TransferStatusRequested.IsFinal() || TransferStatusApproved.IsFinal() {
		t.Fatal("open transfers are not final")
	}
	if !TransferStatusCompleted.IsFinal() || !TransferStatusCancelled.IsFinal() {
		t.Fatal("completed and cancelled transfers are final")
	}
}

func TestNormalizeCurrency(t *testing.T) {
	cases := map[string]Currency{
		"":      DefaultCurrency,
		" cad ": CurrencyCAD,
		"Eur":   CurrencyEUR,
	}
	for raw, want := range cases {
		got, err := NormalizeCurrency(raw)
		if err != nil || got != want {
			t.Errorf("NormalizeCurrency(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := NormalizeCurrency("btc"); err == nil {
		t.Fatal("expected unsupported currency to fail")
	}
	if CurrencyGBP.GatewayCode() != "gbp" {
		t.Fatalf("unexpected gateway code %q", CurrencyGBP.GatewayCode())
	}
	if len(SupportedCurrencies()) != 4 {
		t.Fatalf("unexpected supported list %v", SupportedCurrencies())
	}
}

func TestParseErrorNamesTheKind(t *testing.T) {
	_, err := ParseRefundReason("whim")
	if err == nil || err.Error() != `invalid refund reason "whim"` {
		t.Fatalf("unexpected error %v", err)
	}
}
