package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/commerce-core/pkg/db"
	"github.com/angelmondragon/commerce-core/pkg/db/dbtest"
	"github.com/angelmondragon/commerce-core/pkg/db/models"
	"github.com/angelmondragon/commerce-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/commerce-core/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo: NewRepository(conn),
		Tx:   dbpkg.NewFromGorm(conn),
	})
	require.NoError(t, err)
	return svc, conn
}

func seed(t *testing.T, svc Service, product, warehouse string, qty int64) {
	t.Helper()
	require.NoError(t, svc.Increment(context.Background(), nil, Movement{
		ProductRef:    product,
		WarehouseRef:  warehouse,
		Quantity:      qty,
		Reason:        enums.StockMovementAdjustment,
		ReferenceType: "seed",
	}))
}

func TestDecrementAndIncrement(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "sku-1", "wh-a", 5)

	err := svc.Decrement(ctx, nil, Movement{ProductRef: "sku-1", WarehouseRef: "wh-a", Quantity: 3, Reason: enums.StockMovementOrderCommit, ReferenceType: "order"})
	require.NoError(t, err)

	entry, err := svc.Get(ctx, "sku-1", "wh-a")
	require.NoError(t, err)
	require.EqualValues(t, 2, entry.Quantity)

	seed(t, svc, "sku-1", "wh-a", 4)
	entry, err = svc.Get(ctx, "sku-1", "wh-a")
	require.NoError(t, err)
	require.EqualValues(t, 6, entry.Quantity)

	var movements int64
	require.NoError(t, conn.Model(&models.StockMovement{}).Count(&movements).Error)
	require.EqualValues(t, 3, movements)
}

func TestDecrementInsufficientStockLeavesNoTrace(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "sku-1", "wh-a", 2)

	err := svc.Decrement(ctx, nil, Movement{ProductRef: "sku-1", WarehouseRef: "wh-a", Quantity: 3, Reason: enums.StockMovementTransferReserve, ReferenceType: "stock_transfer"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 2, details["available"])

	entry, err := svc.Get(ctx, "sku-1", "wh-a")
	require.NoError(t, err)
	require.EqualValues(t, 2, entry.Quantity)

	var movements int64
	require.NoError(t, conn.Model(&models.StockMovement{}).Where("reason = ?", enums.StockMovementTransferReserve).Count(&movements).Error)
	require.Zero(t, movements)

	err = svc.Decrement(ctx, nil, Movement{ProductRef: "sku-unknown", WarehouseRef: "wh-a", Quantity: 1, Reason: enums.StockMovementOrderCommit, ReferenceType: "order"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
}

func TestDecrementRollsBackWithCallerTransaction(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "sku-1", "wh-a", 5)

	boom := errors.New("caller failed")
	err := dbpkg.NewFromGorm(conn).WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Decrement(ctx, tx, Movement{ProductRef: "sku-1", WarehouseRef: "wh-a", Quantity: 5, Reason: enums.StockMovementOrderCommit, ReferenceType: "order"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	entry, err := svc.Get(ctx, "sku-1", "wh-a")
	require.NoError(t, err)
	require.EqualValues(t, 5, entry.Quantity)
}

func TestConcurrentDecrementsNeverGoNegative(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seed(t, svc, "sku-hot", "wh-a", 10)

	const workers = 25
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Decrement(ctx, nil, Movement{ProductRef: "sku-hot", WarehouseRef: "wh-a", Quantity: 1, Reason: enums.StockMovementOrderCommit, ReferenceType: "order"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, succeeded)
	require.Equal(t, workers-10, insufficient)
	entry, err := svc.Get(ctx, "sku-hot", "wh-a")
	require.NoError(t, err)
	require.Zero(t, entry.Quantity)
}

func TestAdjustAndTotal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	entry, err := svc.Adjust(ctx, AdjustInput{ProductRef: "sku-1", WarehouseRef: "wh-a", Delta: 7, ActorRef: "admin"})
	require.NoError(t, err)
	require.EqualValues(t, 7, entry.Quantity)

	_, err = svc.Adjust(ctx, AdjustInput{ProductRef: "sku-1", WarehouseRef: "wh-b", Delta: 3})
	require.NoError(t, err)

	entry, err = svc.Adjust(ctx, AdjustInput{ProductRef: "sku-1", WarehouseRef: "wh-a", Delta: -2})
	require.NoError(t, err)
	require.EqualValues(t, 5, entry.Quantity)

	_, err = svc.Adjust(ctx, AdjustInput{ProductRef: "sku-1", WarehouseRef: "wh-b", Delta: -4})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))

	_, err = svc.Adjust(ctx, AdjustInput{ProductRef: "sku-1", WarehouseRef: "wh-b"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	total, err := svc.Total(ctx, "sku-1")
	require.NoError(t, err)
	require.EqualValues(t, 8, total)

	entries, err := svc.List(ctx, ListFilter{ProductRef: "sku-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	movements, err := svc.Movements(ctx, "sku-1", "wh-a", 10)
	require.NoError(t, err)
	require.Len(t, movements, 2)
}

func TestMovementValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cases := []Movement{
		{WarehouseRef: "wh", Quantity: 1, Reason: enums.StockMovementOrderCommit},
		{ProductRef: "sku", Quantity: 1, Reason: enums.StockMovementOrderCommit},
		{ProductRef: "sku", WarehouseRef: "wh", Quantity: 0, Reason: enums.StockMovementOrderCommit},
		{ProductRef: "sku", WarehouseRef: "wh", Quantity: 1, Reason: "teleport"},
	}
	for _, mv := range cases {
		if err := svc.Decrement(ctx, nil, mv); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", mv, err)
		}
	}
	_, err := svc.Get(ctx, "missing", "wh")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
