package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflife/shelflife-backend/internal/lots/expiry"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/internal/lots/service"
	"github.com/shelflife/shelflife-backend/pkg/errors"
	"github.com/shelflife/shelflife-backend/pkg/testutil"
)

func newLedgerService(deps *serviceDeps) *service.LedgerService {
	return service.NewLedgerService(deps.lotRepo, deps.productRepo, deps.consumptionRepo, deps.auditRepo, suite.Logger)
}

func TestLedgerService_CreateLot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	deps := newServiceDeps()
	svc := newLedgerService(deps)
	product := seedProduct(t, ctx, 0)

	fixture := suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(5))
	view, err := svc.CreateLot(ctx, &repository.Lot{
		ProductID:       fixture.ProductID,
		BatchNumber:     fixture.BatchNumber,
		ExpiryDate:      fixture.ExpiryDate,
		InitialQuantity: fixture.InitialQuantity,
		UnitCost:        fixture.UnitCost,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, expiry.StatusWarning, view.ExpiryStatus)
	require.NotNil(t, view.DaysUntilExpiry)
	assert.Equal(t, 5, *view.DaysUntilExpiry)
}

func TestLedgerService_CreateLot_AccumulatesValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	deps := newServiceDeps()
	svc := newLedgerService(deps)
	product := seedProduct(t, ctx, 0)

	// Missing expiry on an expiry-mandated product, zero quantity.
	_, err := svc.CreateLot(ctx, &repository.Lot{
		ProductID:       product.ID,
		BatchNumber:     "BAD-1",
		InitialQuantity: 0,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Details, "expiry_date")
	assert.Contains(t, appErr.Details, "initial_quantity")
}

func TestLedgerService_CreateLot_OptionalExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	deps := newServiceDeps()
	svc := newLedgerService(deps)
	product := seedProductWith(t, ctx, testutil.WithoutExpiryPolicy())

	view, err := svc.CreateLot(ctx, &repository.Lot{
		ProductID:       product.ID,
		BatchNumber:     "NOEXP-1",
		InitialQuantity: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, expiry.StatusNoExpiry, view.ExpiryStatus)
	assert.Nil(t, view.DaysUntilExpiry)
}

func TestLedgerService_UpdateLot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	deps := newServiceDeps()
	svc := newLedgerService(deps)
	product := seedProduct(t, ctx, 0)
	lot := seedLot(t, ctx, deps, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(50)))

	qty := 40
	view, err := svc.UpdateLot(ctx, lot.ID, &service.LotUpdate{
		CurrentQuantity: &qty,
		Reason:          testutil.PtrString("damaged units removed"),
	}, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, 40, view.CurrentQuantity)

	entries, err := deps.auditRepo.ListByLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, repository.AuditActionAdjust, entries[0].Action)
	assert.Equal(t, -10, entries[0].Quantity)

	// Corrections cannot exceed what was ever received.
	tooMany := 60
	_, err = svc.UpdateLot(ctx, lot.ID, &service.LotUpdate{CurrentQuantity: &tooMany}, "manager-1")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestLedgerService_UpdateLot_DisposedConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	deps := newServiceDeps()
	svc := newLedgerService(deps)
	product := seedProduct(t, ctx, 0)
	lot := seedLot(t, ctx, deps, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(-1)))

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := deps.lotRepo.SetDisposedTx(ctx, tx, lot.ID, "discard", "worker-1", nil)
		return err
	})
	require.NoError(t, err)

	_, err = svc.UpdateLot(ctx, lot.ID, &service.LotUpdate{Notes: testutil.PtrString("late note")}, "manager-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestLedgerService_DeleteLot_Guards(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	deps := newServiceDeps()
	svc := newLedgerService(deps)
	product := seedProduct(t, ctx, 0)

	stocked := seedLot(t, ctx, deps, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(5)))
	err := svc.DeleteLot(ctx, stocked.ID)
	assert.True(t, errors.Is(err, errors.ErrConflict), "lots with stock are not deletable")

	// Drain a lot through a sale; its history still protects it.
	drained := seedLot(t, ctx, deps, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(3)))
	err = suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := deps.lotRepo.DecrementTx(ctx, tx, drained.ID, 3); err != nil {
			return err
		}
		return deps.consumptionRepo.InsertTx(ctx, tx, &repository.ConsumptionRecord{
			SaleLineID:     uuid.New().String(),
			LotID:          drained.ID,
			ProductID:      product.ID,
			Quantity:       3,
			UnitCostAtTime: drained.UnitCost,
		})
	})
	require.NoError(t, err)

	err = svc.DeleteLot(ctx, drained.ID)
	assert.True(t, errors.Is(err, errors.ErrConflict), "consumption history blocks deletion")

	// An empty lot with no history goes away.
	empty := seedLot(t, ctx, deps, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(1)))
	err = suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := deps.lotRepo.DecrementTx(ctx, tx, empty.ID, 1)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLot(ctx, empty.ID))
	_, err = deps.lotRepo.GetByID(ctx, empty.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLedgerService_BlockLot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	deps := newServiceDeps()
	svc := newLedgerService(deps)
	product := seedProduct(t, ctx, 0)
	lot := seedLot(t, ctx, deps, suite.Fixtures.Lot(product.ID))

	err := svc.BlockLot(ctx, lot.ID, "")
	assert.True(t, errors.Is(err, errors.ErrValidation), "blocking requires a reason")

	require.NoError(t, svc.BlockLot(ctx, lot.ID, "supplier recall"))
	blocked, err := deps.lotRepo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)

	require.NoError(t, svc.UnblockLot(ctx, lot.ID))
	unblocked, err := deps.lotRepo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.False(t, unblocked.Blocked)
	assert.Nil(t, unblocked.BlockedReason)
}

func TestLedgerService_Reconcile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	deps := newServiceDeps()
	svc := newLedgerService(deps)
	product := seedProduct(t, ctx, 30)
	seedLot(t, ctx, deps, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(10)))
	seedLot(t, ctx, deps, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(20)))

	require.NoError(t, svc.Reconcile(ctx, product.ID))

	// Nudge the aggregate counter out of line with the lots.
	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		return deps.productRepo.AdjustStockTx(ctx, tx, product.ID, -5)
	})
	require.NoError(t, err)

	err = svc.Reconcile(ctx, product.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIntegrity))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "30", appErr.Details["lot_sum"])
	assert.Equal(t, "25", appErr.Details["aggregate_stock"])
}

func TestLedgerService_SweepExpired(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	deps := newServiceDeps()
	svc := newLedgerService(deps)
	product := seedProduct(t, ctx, 0)
	lot := seedLot(t, ctx, deps, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(-1)))

	count, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	swept, err := deps.lotRepo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.True(t, swept.IsExpired)

	count, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

// seedProductWith seeds a product with fixture options instead of a stock count
func seedProductWith(t *testing.T, ctx context.Context, opts ...func(*testutil.ProductFixture)) testutil.ProductFixture {
	t.Helper()
	product := suite.Fixtures.Product(opts...)
	_, err := suite.RawDB.ExecContext(ctx, `
		INSERT INTO products (id, name, category, requires_expiry, expiry_sensitive, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		product.ID, product.Name, product.Category, product.RequiresExpiry,
		product.ExpirySensitive, product.Price, product.Stock,
	)
	require.NoError(t, err)
	return product
}
