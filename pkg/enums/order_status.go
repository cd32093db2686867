package enums

// OrderStatus is the commercial lifecycle axis of an order.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusConfirmed     OrderStatus = "CONFIRMED"
	OrderStatusProcessing    OrderStatus = "PROCESSING"
	OrderStatusShipped       OrderStatus = "SHIPPED"
	OrderStatusDelivered     OrderStatus = "DELIVERED"
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusStockConflict OrderStatus = "STOCK_CONFLICT"
)

var orderStatuses = newSet("order status",
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusPaymentFailed,
	OrderStatusCancelled,
	OrderStatusStockConflict,
)

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	return orderStatuses.has(s)
}

// IsTerminal reports whether no further shipment-state mutation is defined.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusPaymentFailed, OrderStatusStockConflict:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse(value)
}
