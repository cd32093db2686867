// Package returns tracks customer return requests that a cancellation refund may finalize.
package returns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service interface {
	Open(ctx context.Context, orderID uuid.UUID, reason *string) (*models.ReturnRequest, error)
	Decide(ctx context.Context, id uuid.UUID, approve bool) (*models.ReturnRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	FinalizeForRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, returnRequestID *uuid.UUID, refundID uuid.UUID) (int64, error)
}

var openStatuses = []enums.ReturnRequestStatus{enums.ReturnRequestStatusRequested, enums.ReturnRequestStatusApproved}

type service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	return &service{db: db, now: time.Now}, nil
}

func (s *service) Open(ctx context.Context, orderID uuid.UUID, reason *string) (*models.ReturnRequest, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	request := &models.ReturnRequest{OrderID: orderID, Status: enums.ReturnRequestStatusRequested, Reason: reason}
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open return request")
	}
	return request, nil
}

func (s *service) Decide(ctx context.Context, id uuid.UUID, approve bool) (*models.ReturnRequest, error) {
	target := enums.ReturnRequestStatusRejected
	if approve {
		target = enums.ReturnRequestStatusApproved
	}
	result := s.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, enums.ReturnRequestStatusRequested).
		Update("status", target)
	if result.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "decide return request")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "return request already decided").
			WithDetails(map[string]any{"status": current.Status})
	}
	return current, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	if err := s.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return &request, nil
}

// FinalizeForRefund completes the linked return request, or every open request
// on the order when the refund names none.
func (s *service) FinalizeForRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, returnRequestID *uuid.UUID, refundID uuid.UUID) (int64, error) {
	if tx == nil {
		tx = s.db
	}
	query := tx.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("order_id = ? AND status IN ?", orderID, openStatuses)
	if returnRequestID != nil {
		query = query.Where("id = ?", *returnRequestID)
	}
	result := query.Updates(map[string]any{
		"status":       enums.ReturnRequestStatusCompleted,
		"refund_id":    refundID,
		"completed_at": s.now().UTC(),
	})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "finalize return requests")
	}
	return result.RowsAffected, nil
}
