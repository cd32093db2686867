package enums

// RefundStatus tracks a single refund attempt. FAILED rows are never reused.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusCompleted RefundStatus = "COMPLETED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

var refundStatuses = newSet("refund status",
	RefundStatusPending,
	RefundStatusCompleted,
	RefundStatusFailed,
)

// String implements fmt.Stringer.
func (r RefundStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundStatus.
func (r RefundStatus) IsValid() bool {
	return refundStatuses.has(r)
}

// ParseRefundStatus converts raw input into a RefundStatus.
func ParseRefundStatus(value string) (RefundStatus, error) {
	return refundStatuses.parse(value)
}

// RefundMethod selects where refunded money goes.
type RefundMethod string

const (
	RefundMethodOriginalPayment RefundMethod = "original_payment"
	RefundMethodStoreCredit     RefundMethod = "store_credit"
)

var refundMethods = newSet("refund method",
	RefundMethodOriginalPayment,
	RefundMethodStoreCredit,
)

func (m RefundMethod) String() string {
	return string(m)
}

func (m RefundMethod) IsValid() bool {
	return refundMethods.has(m)
}

func ParseRefundMethod(value string) (RefundMethod, error) {
	return refundMethods.parse(value)
}

// RefundReason explains why a refund was created.
type RefundReason string

const (
	RefundReasonCustomerRequest   RefundReason = "customer_request"
	RefundReasonOrderCancellation RefundReason = "order_cancellation"
	RefundReasonStockConflict     RefundReason = "stock_conflict"
)

var refundReasons = newSet("refund reason",
	RefundReasonCustomerRequest,
	RefundReasonOrderCancellation,
	RefundReasonStockConflict,
)

func (r RefundReason) String() string {
	return string(r)
}

func (r RefundReason) IsValid() bool {
	return refundReasons.has(r)
}

func ParseRefundReason(value string) (RefundReason, error) {
	return refundReasons.parse(value)
}
