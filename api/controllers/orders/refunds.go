package orders

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/commerce-core/api/responses"
	"github.com/angelmondragon/commerce-core/api/validators"
	"github.com/angelmondragon/commerce-core/internal/refunds"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/money"
)

// CreateRefund requests a refund against the order's captured funds. A refund
// left PENDING by a gateway timeout answers 202; the worker finishes it.
func CreateRefund(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createRefundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := money.ParseCents(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}
		method, err := enums.ParseRefundMethod(strings.ToLower(strings.TrimSpace(req.Method)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund method"))
			return
		}
		var reason enums.RefundReason
		if raw := strings.TrimSpace(req.Reason); raw != "" {
			reason, err = enums.ParseRefundReason(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund reason"))
				return
			}
		}

		refund, err := svc.Create(r.Context(), refunds.CreateInput{
			OrderID:         orderID,
			AmountCents:     amount,
			Method:          method,
			Reason:          reason,
			ReturnRequestID: req.ReturnRequestID,
			Actor:           actorFrom(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if refund.Status == enums.RefundStatusPending {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, toRefundResponse(refund))
	}
}

func ListRefunds(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListByOrder(r.Context(), orderID, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]refundResponse, 0, len(rows))
		for i := range rows {
			out = append(out, toRefundResponse(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"refunds": out})
	}
}
