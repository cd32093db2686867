// Package storecredit keeps the internal balance credited by store_credit refunds.
package storecredit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/angelmondragon/commerce-core/pkg/db"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const entryConstraint = "idx_store_credit_entries_refund"

// Service credits and reads customer balances.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, customerRef string, refundID uuid.UUID, amountCents int64) error
	Balance(ctx context.Context, customerRef string) (int64, error)
}

type service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	return &service{db: db}, nil
}

// Credit is idempotent per refund: the entry row is keyed by refund id and a
// repeated credit for the same refund leaves the balance untouched.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, customerRef string, refundID uuid.UUID, amountCents int64) error {
	if strings.TrimSpace(customerRef) == "" || refundID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer ref and refund id are required")
	}
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	var existing models.StoreCreditEntry
	err := tx.WithContext(ctx).Where("refund_id = ?", refundID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check store credit entry")
	}
	entry := &models.StoreCreditEntry{CustomerRef: customerRef, RefundID: refundID, AmountCents: amountCents}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, entryConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "refund already credited concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record store credit entry")
	}
	balance := models.StoreCreditBalance{CustomerRef: customerRef, BalanceCents: amountCents}
	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "customer_ref"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance_cents": gorm.Expr("store_credit_balances.balance_cents + ?", amountCents),
				"updated_at":    time.Now().UTC(),
			}),
		}).
		Create(&balance).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit store balance")
	}
	return nil
}

func (s *service) Balance(ctx context.Context, customerRef string) (int64, error) {
	var balance models.StoreCreditBalance
	err := s.db.WithContext(ctx).Where("customer_ref = ?", customerRef).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store credit balance")
	}
	return balance.BalanceCents, nil
}
