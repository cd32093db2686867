package inventory

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/commerce-core/api/middleware"
	"github.com/angelmondragon/commerce-core/api/responses"
	"github.com/angelmondragon/commerce-core/api/validators"
	"github.com/angelmondragon/commerce-core/internal/ledger"
	"github.com/angelmondragon/commerce-core/pkg/logger"
)

// ListStock returns ledger rows filtered by product and warehouse. When a
// product is named the cross-warehouse total is included.
func ListStock(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := ledger.ListFilter{
			ProductRef:   strings.TrimSpace(r.URL.Query().Get("product_ref")),
			WarehouseRef: strings.TrimSpace(r.URL.Query().Get("warehouse_ref")),
		}
		rows, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := stockListResponse{Entries: make([]stockResponse, 0, len(rows))}
		for i := range rows {
			resp.Entries = append(resp.Entries, toStockResponse(&rows[i]))
		}
		if filter.ProductRef != "" {
			total, err := svc.Total(r.Context(), filter.ProductRef)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			resp.Total = &total
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdjustStock applies an admin correction; the ledger refuses to go negative.
func AdjustStock(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adjustmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.Adjust(r.Context(), ledger.AdjustInput{
			ProductRef:   req.ProductRef,
			WarehouseRef: req.WarehouseRef,
			Delta:        req.Delta,
			ActorRef:     middleware.ActorRefFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toStockResponse(entry))
	}
}
