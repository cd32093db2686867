package inventory

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/commerce-core/api/middleware"
	"github.com/angelmondragon/commerce-core/api/responses"
	"github.com/angelmondragon/commerce-core/api/validators"
	"github.com/angelmondragon/commerce-core/internal/transfers"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/angelmondragon/commerce-core/pkg/logger"
	"github.com/angelmondragon/commerce-core/pkg/pagination"
)

func CreateTransfer(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTransferRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notes := validators.SanitizeOptional(req.Notes, 1000)
		transfer, err := svc.Create(r.Context(), transfers.CreateInput{
			ProductRef:       req.ProductRef,
			FromWarehouseRef: req.FromWarehouseRef,
			ToWarehouseRef:   req.ToWarehouseRef,
			Quantity:         req.Quantity,
			Notes:            notes,
			Actor:            actorFrom(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toTransferResponse(transfer))
	}
}

func ListTransfers(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := validators.ParseQueryEnum(r, "status", enums.ParseTransferStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := transfers.ListFilter{
			ProductRef:   validators.QueryRef(r, "product_ref"),
			WarehouseRef: validators.QueryRef(r, "warehouse_ref"),
			Status:       status,
		}
		page, err := svc.List(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, pagination.Map(page, toTransferResponse))
	}
}

func GetTransfer(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseTransferID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transfer, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransferResponse(transfer))
	}
}

type transferAction func(ctx context.Context, id uuid.UUID, actor transfers.Actor) (*models.StockTransfer, error)

// ApproveTransfer, CompleteTransfer and CancelTransfer share finalizeHandler.
func ApproveTransfer(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return finalizeHandler(svc, svc.Approve, enums.TransferStatusApproved, logg)
}

func CompleteTransfer(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return finalizeHandler(svc, svc.Complete, enums.TransferStatusCompleted, logg)
}

func CancelTransfer(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return finalizeHandler(svc, svc.Cancel, enums.TransferStatusCancelled, logg)
}

// finalizeHandler answers a retried action that already reached target with
// the current transfer; only the opposite outcome is a conflict.
func finalizeHandler(svc transfers.Service, action transferAction, target enums.TransferStatus, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseTransferID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transfer, err := action(r.Context(), id, actorFrom(r))
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeAlreadyFinalized) || pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
				if current, getErr := svc.Get(r.Context(), id); getErr == nil && current.Status == target {
					responses.WriteSuccess(w, toTransferResponse(current))
					return
				}
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toTransferResponse(transfer))
	}
}

func actorFrom(r *http.Request) transfers.Actor {
	return transfers.Actor{
		Ref:  middleware.ActorRefFromContext(r.Context()),
		Role: middleware.RoleFromContext(r.Context()),
	}
}

func parseTransferID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "transferId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transfer id")
	}
	return id, nil
}
