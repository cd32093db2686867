package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregateRefund        OutboxAggregateType = "refund"
	AggregateStockTransfer OutboxAggregateType = "stock_transfer"
)

var aggregateTypes = newSet("aggregate type",
	AggregateOrder,
	AggregateRefund,
	AggregateStockTransfer,
)

// IsValid reports whether the value matches a known aggregate.
func (a OutboxAggregateType) IsValid() bool {
	return aggregateTypes.has(a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderConfirmed     OutboxEventType = "order_confirmed"
	EventOrderPaymentFailed OutboxEventType = "order_payment_failed"
	EventOrderStockConflict OutboxEventType = "order_stock_conflict"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderProcessing    OutboxEventType = "order_processing"
	EventOrderShipped       OutboxEventType = "order_shipped"
	EventOrderDelivered     OutboxEventType = "order_delivered"
	EventRefundScheduled    OutboxEventType = "refund_scheduled"
	EventRefundCompleted    OutboxEventType = "refund_completed"
	EventRefundFailed       OutboxEventType = "refund_failed"
	EventTransferRequested  OutboxEventType = "transfer_requested"
	EventTransferApproved   OutboxEventType = "transfer_approved"
	EventTransferCompleted  OutboxEventType = "transfer_completed"
	EventTransferCancelled  OutboxEventType = "transfer_cancelled"
)

var outboxEventTypes = newSet("event type",
	EventOrderCreated,
	EventOrderConfirmed,
	EventOrderPaymentFailed,
	EventOrderStockConflict,
	EventOrderCancelled,
	EventOrderProcessing,
	EventOrderShipped,
	EventOrderDelivered,
	EventRefundScheduled,
	EventRefundCompleted,
	EventRefundFailed,
	EventTransferRequested,
	EventTransferApproved,
	EventTransferCompleted,
	EventTransferCancelled,
)

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return outboxEventTypes.has(e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse(value)
}
