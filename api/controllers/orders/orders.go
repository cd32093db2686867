package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/commerce-core/api/middleware"
	"github.com/angelmondragon/commerce-core/api/responses"
	"github.com/angelmondragon/commerce-core/api/validators"
	internalorders "github.com/angelmondragon/commerce-core/internal/orders"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/money"
	"github.com/angelmondragon/commerce-core/pkg/pagination"
)

// Create initiates checkout for the calling customer. Staff may create on a
// customer's behalf by naming customer_ref.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerRef := actor.Ref
		switch {
		case actor.Role.IsStaff():
			customerRef = strings.TrimSpace(req.CustomerRef)
			if customerRef == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "customer_ref is required"))
				return
			}
		case actor.Role != enums.ActorRoleCustomer:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only customers can place orders"))
			return
		}

		input := internalorders.CreateInput{
			CustomerRef: customerRef,
			SellerRef:   req.SellerRef,
			Currency:    strings.ToUpper(req.Currency),
		}
		if req.Total != nil {
			total, err := money.ParseCents(*req.Total)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid total"))
				return
			}
			input.TotalCents = &total
		}
		for i, item := range req.Items {
			price, err := money.ParseCents(item.UnitPrice)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit price").
					WithDetails(map[string]any{"item": i}))
				return
			}
			input.Items = append(input.Items, internalorders.ItemInput{
				ProductRef:     item.ProductRef,
				Quantity:       item.Quantity,
				UnitPriceCents: price,
			})
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderResponse(order))
	}
}

// List returns a cursor page scoped to the caller: customers and sellers see
// their own orders, staff may filter freely.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r)

		params, err := validators.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filter internalorders.ListFilter
		switch {
		case actor.Role == enums.ActorRoleCustomer:
			filter.CustomerRef = actor.Ref
		case actor.Role == enums.ActorRoleSeller:
			filter.SellerRef = actor.Ref
		case actor.Role.IsStaff():
			filter.CustomerRef = validators.QueryRef(r, "customer_ref")
			filter.SellerRef = validators.QueryRef(r, "seller_ref")
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders"))
			return
		}
		filter.Status, err = validators.ParseQueryEnum(r, "status", enums.ParseOrderStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, pagination.Map(page, toOrderResponse))
	}
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, ok := loadVisible(w, r, svc, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// AttachPaymentIntent links the provider payment intent to a pending order.
func AttachPaymentIntent(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req paymentIntentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.AttachPaymentIntent(r.Context(), orderID, req.PaymentIntentRef, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// Capture asks the gateway to capture; the provider webhook confirms the order.
func Capture(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RequestCapture(r.Context(), orderID, actorFrom(r)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "capture_requested"})
	}
}

// Transition applies a manual lifecycle event. Payment events only arrive
// through provider webhooks and are rejected here.
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := internalorders.ParseEventKind(strings.ToLower(strings.TrimSpace(req.Event)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event"))
			return
		}
		switch kind {
		case internalorders.EventPaymentCaptured, internalorders.EventPaymentFailed, internalorders.EventRefundApplied:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event is driven by the payment provider").
				WithDetails(map[string]any{"event": kind}))
			return
		}

		event := internalorders.Event{Kind: kind, CourierRef: strings.TrimSpace(req.CourierRef)}
		order, err := svc.Transition(r.Context(), orderID, event, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

func loadVisible(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (*models.Order, bool) {
	orderID, err := parseOrderID(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	order, err := svc.Get(r.Context(), orderID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	if !canView(order, actorFrom(r)) {
		// Foreign orders look absent rather than forbidden.
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
		return nil, false
	}
	return order, true
}

func canView(order *models.Order, actor internalorders.Actor) bool {
	switch {
	case actor.Role.IsStaff():
		return true
	case actor.Role == enums.ActorRoleCustomer:
		return order.CustomerRef == actor.Ref
	case actor.Role == enums.ActorRoleSeller:
		return order.SellerRef == actor.Ref
	}
	return false
}

func actorFrom(r *http.Request) internalorders.Actor {
	return internalorders.Actor{
		Ref:  middleware.ActorRefFromContext(r.Context()),
		Role: middleware.RoleFromContext(r.Context()),
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return id, nil
}
