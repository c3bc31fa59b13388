package repository_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/pkg/errors"
	"github.com/shelflife/shelflife-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

// createTestProduct inserts a product row for lots to reference
func createTestProduct(t *testing.T, ctx context.Context, opts ...func(*testutil.ProductFixture)) testutil.ProductFixture {
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

// createTestLot inserts a lot through the repository
func createTestLot(t *testing.T, ctx context.Context, repo *repository.LotRepository, fixture testutil.LotFixture) *repository.Lot {
	t.Helper()
	lot := &repository.Lot{
		ID:              fixture.ID,
		ProductID:       fixture.ProductID,
		BatchNumber:     fixture.BatchNumber,
		ExpiryDate:      fixture.ExpiryDate,
		InitialQuantity: fixture.InitialQuantity,
		UnitCost:        fixture.UnitCost,
		BranchID:        fixture.BranchID,
	}
	require.NoError(t, repo.Create(ctx, lot))
	return lot
}

func strPtr(s string) *string { return &s }

func TestLotRepository_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)

	lot := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(50)))

	assert.NotEmpty(t, lot.ID)
	assert.Equal(t, 50, lot.CurrentQuantity, "current quantity starts at initial quantity")
	assert.False(t, lot.CreatedAt.IsZero())

	fetched, err := repo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, lot.BatchNumber, fetched.BatchNumber)
	assert.False(t, fetched.Disposed)
	assert.False(t, fetched.IsExpired)
}

func TestLotRepository_Create_DuplicateBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)

	createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.WithBatchNumber("DUP-1")))

	dup := &repository.Lot{
		ProductID:       product.ID,
		BatchNumber:     "DUP-1",
		InitialQuantity: 10,
		UnitCost:        decimal.NewFromInt(100),
	}
	err := repo.Create(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestLotRepository_AllocationCandidates_Ordering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)

	// Created out of expiry order on purpose.
	later := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(20)))
	sooner := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(5)))
	never := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.NeverExpires()))

	candidates, err := repo.AllocationCandidates(ctx, product.ID, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, sooner.ID, candidates[0].ID)
	assert.Equal(t, later.ID, candidates[1].ID)
	assert.Equal(t, never.ID, candidates[2].ID, "null expiry sorts last")
}

func TestLotRepository_AllocationCandidates_Exclusions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)

	eligible := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(10)))
	expired := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(-2)))
	blocked := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(10)))
	require.NoError(t, repo.SetBlocked(ctx, blocked.ID, true, strPtr("quality hold")))

	candidates, err := repo.AllocationCandidates(ctx, product.ID, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, eligible.ID, candidates[0].ID)

	// The expired lot is out of allocation but still shows up for disposal.
	disposable, err := repo.ListDisposable(ctx, nil)
	require.NoError(t, err)
	require.Len(t, disposable, 1)
	assert.Equal(t, expired.ID, disposable[0].ID)
}

func TestLotRepository_AllocationCandidates_BranchScoping(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)

	shared := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(5)))
	mine := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(10), testutil.WithBranch("branch-a")))
	createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(10), testutil.WithBranch("branch-b")))

	candidates, err := repo.AllocationCandidates(ctx, product.ID, strPtr("branch-a"))
	require.NoError(t, err)
	require.Len(t, candidates, 2, "shared lots stay eligible alongside the branch's own")
	assert.Equal(t, shared.ID, candidates[0].ID)
	assert.Equal(t, mine.ID, candidates[1].ID)
}

func TestLotRepository_DecrementTx_Guard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(10)))

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		remaining, err := repo.DecrementTx(ctx, tx, lot.ID, 6)
		require.NoError(t, err)
		assert.Equal(t, 4, remaining)

		// Overdraw fails closed instead of going negative; returning the
		// error rolls back the earlier decrement too.
		_, err = repo.DecrementTx(ctx, tx, lot.ID, 5)
		assert.True(t, errors.Is(err, errors.ErrConflict))
		return err
	})
	require.Error(t, err)

	fetched, err := repo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, fetched.CurrentQuantity, "failed transaction leaves quantity untouched")
}

func TestLotRepository_DecrementAndRestore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(10)))

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := repo.DecrementTx(ctx, tx, lot.ID, 7)
		return err
	})
	require.NoError(t, err)

	err = suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		remaining, err := repo.RestoreTx(ctx, tx, lot.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, 10, remaining)
		return nil
	})
	require.NoError(t, err)

	// Restoring beyond the initial quantity is refused.
	err = suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := repo.RestoreTx(ctx, tx, lot.ID, 1)
		return err
	})
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestLotRepository_Update_StaleQuantityGuard(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(10)))

	stale, err := repo.GetByID(ctx, lot.ID)
	require.NoError(t, err)

	// A sale commits between the read and the correction.
	err = suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := repo.DecrementTx(ctx, tx, lot.ID, 3)
		return err
	})
	require.NoError(t, err)

	// Writing back the stale quantity would undo the decrement; the guard
	// refuses it instead.
	stale.Notes = strPtr("recount")
	err = repo.Update(ctx, stale, stale.CurrentQuantity)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	fetched, err := repo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, fetched.CurrentQuantity, "stale write left no trace")
	assert.Nil(t, fetched.Notes)

	// Re-reading and retrying succeeds.
	fresh, err := repo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	fresh.Notes = strPtr("recount")
	require.NoError(t, repo.Update(ctx, fresh, fresh.CurrentQuantity))

	// An unknown lot is still reported as missing, not as a conflict.
	missing := *fresh
	missing.ID = "00000000-0000-0000-0000-000000000000"
	err = repo.Update(ctx, &missing, missing.CurrentQuantity)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLotRepository_SweepExpired_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)

	createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(-1)))
	createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(-5)))
	createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(10)))

	flipped, err := repo.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), flipped)

	flipped, err = repo.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), flipped, "second sweep with no elapsed time flips nothing")
}

func TestLotRepository_DisposeAndUndo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.ExpiringIn(-1), testutil.WithQuantity(25)))

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		affected, err := repo.SetDisposedTx(ctx, tx, lot.ID, "discard", "worker-1", nil)
		require.NoError(t, err)
		assert.True(t, affected)

		// A second disposal of the same lot is a no-op.
		affected, err = repo.SetDisposedTx(ctx, tx, lot.ID, "discard", "worker-1", nil)
		require.NoError(t, err)
		assert.False(t, affected)
		return nil
	})
	require.NoError(t, err)

	disposed, err := repo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.True(t, disposed.Disposed)
	assert.NotNil(t, disposed.DisposedAt)
	assert.Equal(t, 25, disposed.CurrentQuantity, "disposal does not zero quantity")

	err = suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		affected, err := repo.ClearDisposedTx(ctx, tx, lot.ID)
		require.NoError(t, err)
		assert.True(t, affected)
		return nil
	})
	require.NoError(t, err)

	restored, err := repo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.False(t, restored.Disposed)
	assert.Nil(t, restored.DisposedAt)
	assert.Equal(t, 25, restored.CurrentQuantity)
}

func TestLotRepository_SumActiveQuantity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)

	createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(10)))
	createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(15)))
	disposed := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, testutil.WithQuantity(99), testutil.ExpiringIn(-1)))

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := repo.SetDisposedTx(ctx, tx, disposed.ID, "discard", "worker-1", nil)
		return err
	})
	require.NoError(t, err)

	sum, err := repo.SumActiveQuantity(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, sum, "disposed lots are excluded from the active sum")
}

func TestLotRepository_ListByProduct_Order(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	repo := repository.NewLotRepository(suite.DB)

	sameDay := time.Now().AddDate(0, 0, 14)
	first := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, func(l *testutil.LotFixture) { l.ExpiryDate = &sameDay }))
	second := createTestLot(t, ctx, repo, suite.Fixtures.Lot(product.ID, func(l *testutil.LotFixture) { l.ExpiryDate = &sameDay }))

	lots, err := repo.ListByProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, first.ID, lots[0].ID, "equal expiry ties break on receipt order")
	assert.Equal(t, second.ID, lots[1].ID)
}
