package orders

import (
	"fmt"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
)

// EventKind names an input to the order state machine.
type EventKind string

const (
	EventPaymentCaptured EventKind = "payment_captured"
	EventPaymentFailed   EventKind = "payment_failed"
	EventCancel          EventKind = "cancel"
	EventStartProcessing EventKind = "start_processing"
	EventShip            EventKind = "ship"
	EventDeliver         EventKind = "deliver"
	EventRefundApplied   EventKind = "refund_applied"
)

var validEventKinds = []EventKind{
	EventPaymentCaptured,
	EventPaymentFailed,
	EventCancel,
	EventStartProcessing,
	EventShip,
	EventDeliver,
	EventRefundApplied,
}

func (k EventKind) IsValid() bool {
	for _, candidate := range validEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseEventKind(value string) (EventKind, error) {
	for _, candidate := range validEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order event %q", value)
}

// Event is a transition request. CourierRef is required by Ship and
// AmountCents by RefundApplied.
type Event struct {
	Kind        EventKind
	CourierRef  string
	AmountCents int64
}

// Step is the target state computed for an event plus the side effects the
// transition authorizes.
type Step struct {
	Status        enums.OrderStatus
	PaymentStatus enums.PaymentStatus
	CommitStock   bool
	ReleaseStock  bool
	RefundCents   int64
	Outbox        enums.OutboxEventType
}

// rule lists the statuses an event is accepted from.
type rule struct {
	from   []enums.OrderStatus
	target enums.OrderStatus
}

var rules = map[EventKind]rule{
	EventPaymentCaptured: {from: []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusConfirmed}, target: enums.OrderStatusConfirmed},
	EventPaymentFailed:   {from: []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusConfirmed}, target: enums.OrderStatusPaymentFailed},
	EventCancel:          {from: []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusConfirmed, enums.OrderStatusProcessing}, target: enums.OrderStatusCancelled},
	EventStartProcessing: {from: []enums.OrderStatus{enums.OrderStatusConfirmed}, target: enums.OrderStatusProcessing},
	EventShip:            {from: []enums.OrderStatus{enums.OrderStatusProcessing}, target: enums.OrderStatusShipped},
	EventDeliver:         {from: []enums.OrderStatus{enums.OrderStatusShipped}, target: enums.OrderStatusDelivered},
}

var outboxByStatus = map[enums.OrderStatus]enums.OutboxEventType{
	enums.OrderStatusConfirmed:     enums.EventOrderConfirmed,
	enums.OrderStatusPaymentFailed: enums.EventOrderPaymentFailed,
	enums.OrderStatusCancelled:     enums.EventOrderCancelled,
	enums.OrderStatusProcessing:    enums.EventOrderProcessing,
	enums.OrderStatusShipped:       enums.EventOrderShipped,
	enums.OrderStatusDelivered:     enums.EventOrderDelivered,
	enums.OrderStatusStockConflict: enums.EventOrderStockConflict,
}

// Next is the pure transition function. It never mutates order and returns
// INVALID_TRANSITION for any event the current state does not accept.
func Next(order models.Order, event Event) (Step, error) {
	if !event.Kind.IsValid() {
		return Step{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order event %q", event.Kind))
	}
	if event.Kind == EventRefundApplied {
		return nextRefund(order, event)
	}

	r := rules[event.Kind]
	if !statusIn(order.Status, r.from) {
		return Step{}, invalidTransition(order, event)
	}

	step := Step{Status: r.target, PaymentStatus: order.PaymentStatus}
	switch event.Kind {
	case EventPaymentCaptured:
		// A capture after funds were already secured is a replay, not a second payment.
		if order.PaymentStatus != enums.PaymentStatusUnpaid || order.StockCommitted {
			return Step{}, invalidTransition(order, event)
		}
		step.PaymentStatus = enums.PaymentStatusPaid
		step.CommitStock = true
	case EventPaymentFailed:
		if order.PaymentStatus.IsCaptured() {
			return Step{}, invalidTransition(order, event)
		}
		step.PaymentStatus = enums.PaymentStatusFailed
	case EventCancel:
		step.ReleaseStock = order.StockCommitted
		if order.PaymentStatus.IsCaptured() {
			step.RefundCents = order.RefundableCents()
		}
	case EventShip:
		if event.CourierRef == "" {
			return Step{}, pkgerrors.New(pkgerrors.CodeValidation, "courier ref is required to ship")
		}
	}
	step.Outbox = outboxByStatus[step.Status]
	if err := ValidateJoint(step.Status, step.PaymentStatus); err != nil {
		return Step{}, err
	}
	return step, nil
}

// StockConflictStep is the failure sub-state entered when a capture cannot
// commit stock. Funds stay captured until the compensating refund lands.
func StockConflictStep(order models.Order) Step {
	return Step{
		Status:        enums.OrderStatusStockConflict,
		PaymentStatus: enums.PaymentStatusPaid,
		RefundCents:   order.TotalCents,
		Outbox:        enums.EventOrderStockConflict,
	}
}

// nextRefund moves only the payment axis. It is accepted in any status once
// funds were captured, including terminal ones, up to the captured amount.
func nextRefund(order models.Order, event Event) (Step, error) {
	if event.AmountCents <= 0 {
		return Step{}, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	switch order.PaymentStatus {
	case enums.PaymentStatusPaid, enums.PaymentStatusPartiallyRefunded:
	default:
		return Step{}, invalidTransition(order, event)
	}
	refunded := order.RefundedCents + event.AmountCents
	if refunded > order.CapturedCents {
		return Step{}, pkgerrors.New(pkgerrors.CodeOverRefund, "refund exceeds captured amount").WithDetails(map[string]any{
			"captured_cents": order.CapturedCents,
			"refunded_cents": order.RefundedCents,
			"amount_cents":   event.AmountCents,
		})
	}
	step := Step{Status: order.Status, PaymentStatus: enums.PaymentStatusPartiallyRefunded}
	if refunded == order.CapturedCents {
		step.PaymentStatus = enums.PaymentStatusRefunded
	}
	return step, nil
}

// ValidateJoint enforces the constraints tying the status axis to the payment axis.
func ValidateJoint(status enums.OrderStatus, payment enums.PaymentStatus) error {
	ok := true
	switch status {
	case enums.OrderStatusPending:
		ok = payment == enums.PaymentStatusUnpaid
	case enums.OrderStatusConfirmed, enums.OrderStatusProcessing, enums.OrderStatusShipped,
		enums.OrderStatusDelivered, enums.OrderStatusStockConflict:
		ok = payment.IsCaptured()
	case enums.OrderStatusPaymentFailed:
		ok = payment == enums.PaymentStatusFailed
	case enums.OrderStatusCancelled:
		ok = payment == enums.PaymentStatusUnpaid || payment.IsCaptured()
	default:
		ok = false
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("status %s cannot carry payment status %s", status, payment))
	}
	return nil
}

func invalidTransition(order models.Order, event Event) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("event %s not allowed from %s", event.Kind, order.Status)).
		WithDetails(map[string]any{
			"order_id":       order.ID.String(),
			"status":         order.Status,
			"payment_status": order.PaymentStatus,
			"event":          event.Kind,
		})
}

func statusIn(status enums.OrderStatus, set []enums.OrderStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}
