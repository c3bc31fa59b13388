package repository_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/pkg/testutil"
)

func insertConsumption(t *testing.T, ctx context.Context, repo *repository.ConsumptionRepository, rec *repository.ConsumptionRecord) {
	t.Helper()
	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		return repo.InsertTx(ctx, tx, rec)
	})
	require.NoError(t, err)
}

func TestConsumptionRepository_InsertAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	lotRepo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, ctx, lotRepo, suite.Fixtures.Lot(product.ID, testutil.WithUnitCost(250)))

	repo := repository.NewConsumptionRepository(suite.DB)
	saleLineID := uuid.New().String()

	rec := &repository.ConsumptionRecord{
		SaleLineID:       saleLineID,
		LotID:            lot.ID,
		ProductID:        product.ID,
		Quantity:         4,
		UnitCostAtTime:   lot.UnitCost,
		ExpiryDateAtTime: lot.ExpiryDate,
	}
	insertConsumption(t, ctx, repo, rec)

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.True(t, rec.TotalCost.Equal(decimal.NewFromInt(1000)), "total cost is quantity times unit cost")

	records, err := repo.ListBySaleLine(ctx, saleLineID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, lot.ID, records[0].LotID)
	assert.False(t, records[0].Reversed)
}

func TestConsumptionRepository_MarkReversed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	lotRepo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, ctx, lotRepo, suite.Fixtures.Lot(product.ID))

	repo := repository.NewConsumptionRepository(suite.DB)
	saleLineID := uuid.New().String()

	rec := &repository.ConsumptionRecord{
		SaleLineID:     saleLineID,
		LotID:          lot.ID,
		ProductID:      product.ID,
		Quantity:       2,
		UnitCostAtTime: lot.UnitCost,
	}
	insertConsumption(t, ctx, repo, rec)

	err := suite.DB.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := repo.MarkReversedTx(ctx, tx, rec.ID); err != nil {
			return err
		}

		// Reversed records drop out of the in-transaction listing so a
		// second reversal of the same sale line finds nothing.
		remaining, err := repo.ListBySaleLineTx(ctx, tx, saleLineID)
		require.NoError(t, err)
		assert.Empty(t, remaining)
		return nil
	})
	require.NoError(t, err)

	records, err := repo.ListBySaleLine(ctx, saleLineID)
	require.NoError(t, err)
	require.Len(t, records, 1, "the record survives reversal for the audit trail")
	assert.True(t, records[0].Reversed)
	assert.NotNil(t, records[0].ReversedAt)
}

func TestConsumptionRepository_ExistsForLot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	lotRepo := repository.NewLotRepository(suite.DB)
	consumed := createTestLot(t, ctx, lotRepo, suite.Fixtures.Lot(product.ID))
	untouched := createTestLot(t, ctx, lotRepo, suite.Fixtures.Lot(product.ID))

	repo := repository.NewConsumptionRepository(suite.DB)
	insertConsumption(t, ctx, repo, &repository.ConsumptionRecord{
		SaleLineID:     uuid.New().String(),
		LotID:          consumed.ID,
		ProductID:      product.ID,
		Quantity:       1,
		UnitCostAtTime: consumed.UnitCost,
	})

	exists, err := repo.ExistsForLot(ctx, consumed.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForLot(ctx, untouched.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAuditRepository_AppendAndList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	product := createTestProduct(t, ctx)
	lotRepo := repository.NewLotRepository(suite.DB)
	lot := createTestLot(t, ctx, lotRepo, suite.Fixtures.Lot(product.ID))

	repo := repository.NewAuditRepository(suite.DB)

	first := &repository.AuditEntry{
		LotID:            lot.ID,
		ProductID:        product.ID,
		Action:           repository.AuditActionConsume,
		Quantity:         10,
		PreviousQuantity: 100,
		NewQuantity:      90,
		PerformedBy:      "cashier-1",
	}
	require.NoError(t, repo.Append(ctx, first))

	second := &repository.AuditEntry{
		LotID:            lot.ID,
		ProductID:        product.ID,
		Action:           repository.AuditActionReverse,
		Quantity:         10,
		PreviousQuantity: 90,
		NewQuantity:      100,
		Reason:           strPtr("void sale"),
		PerformedBy:      "manager-1",
	}
	require.NoError(t, repo.Append(ctx, second))

	entries, err := repo.ListByLot(ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, repository.AuditActionReverse, entries[0].Action, "newest first")
	assert.Equal(t, repository.AuditActionConsume, entries[1].Action)
	require.NotNil(t, entries[0].Reason)
	assert.Equal(t, "void sale", *entries[0].Reason)
}
