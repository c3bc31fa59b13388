package handler_test

import (
	"context"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelflife/shelflife-backend/internal/lots/handler"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/internal/lots/service"
	"github.com/shelflife/shelflife-backend/pkg/httputil"
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

// newLotRouter wires the lot handler the way the service binary does
func newLotRouter() (chi.Router, *repository.LotRepository) {
	lotRepo := repository.NewLotRepository(suite.DB)
	productRepo := repository.NewProductRepository(suite.DB)
	consumptionRepo := repository.NewConsumptionRepository(suite.DB)
	auditRepo := repository.NewAuditRepository(suite.DB)

	ledger := service.NewLedgerService(lotRepo, productRepo, consumptionRepo, auditRepo, suite.Logger)
	h := handler.NewLotHandler(ledger, suite.Logger)

	r := chi.NewRouter()
	r.Use(httputil.Actor)
	r.Route("/api/v1/lots", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Post("/{id}/block", h.Block)
	})
	r.Get("/api/v1/products/{productID}/reconcile", h.Reconcile)
	return r, lotRepo
}

func seedProduct(t *testing.T, ctx context.Context, fixture testutil.ProductFixture) {
	t.Helper()
	_, err := suite.RawDB.ExecContext(ctx, `
		INSERT INTO products (id, name, category, requires_expiry, expiry_sensitive, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		fixture.ID, fixture.Name, fixture.Category, fixture.RequiresExpiry,
		fixture.ExpirySensitive, fixture.Price, fixture.Stock,
	)
	require.NoError(t, err)
}

func TestLotHandler_Create(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	router, _ := newLotRouter()
	product := suite.Fixtures.Product()
	seedProduct(t, ctx, product)

	expiry := time.Now().AddDate(0, 0, 10)
	req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/lots", handler.CreateLotRequest{
		ProductID:       product.ID,
		BatchNumber:     "WEB-001",
		ExpiryDate:      &expiry,
		InitialQuantity: 40,
		UnitCost:        decimal.NewFromInt(750),
	})
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)

	var body struct {
		Data service.LotView `json:"data"`
	}
	testutil.ParseJSONBody(t, rr, &body)
	assert.NotEmpty(t, body.Data.ID)
	assert.Equal(t, 40, body.Data.CurrentQuantity)
	assert.Equal(t, "normal", string(body.Data.ExpiryStatus))
}

func TestLotHandler_Create_MissingExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	router, _ := newLotRouter()
	product := suite.Fixtures.Product()
	seedProduct(t, ctx, product)

	req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/lots", handler.CreateLotRequest{
		ProductID:       product.ID,
		BatchNumber:     "WEB-002",
		InitialQuantity: 40,
	})
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	testutil.AssertBodyContains(t, rr, "expiry_date")
}

func TestLotHandler_Get_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	router, _ := newLotRouter()

	req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/lots/"+uuid.New().String(), nil)
	rr := testutil.ExecuteRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestLotHandler_Block_RequiresReason(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	router, lotRepo := newLotRouter()
	product := suite.Fixtures.Product()
	seedProduct(t, ctx, product)

	fixture := suite.Fixtures.Lot(product.ID)
	lot := &repository.Lot{
		ID:              fixture.ID,
		ProductID:       fixture.ProductID,
		BatchNumber:     fixture.BatchNumber,
		ExpiryDate:      fixture.ExpiryDate,
		InitialQuantity: fixture.InitialQuantity,
		UnitCost:        fixture.UnitCost,
	}
	require.NoError(t, lotRepo.Create(ctx, lot))

	req := testutil.NewHTTPRequest(http.MethodPost, "/api/v1/lots/"+lot.ID+"/block", map[string]string{})
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	req = testutil.NewHTTPRequest(http.MethodPost, "/api/v1/lots/"+lot.ID+"/block", map[string]string{"reason": "supplier recall"})
	rr = testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	blocked, err := lotRepo.GetByID(ctx, lot.ID)
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)
}

func TestLotHandler_Reconcile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)

	router, lotRepo := newLotRouter()
	product := suite.Fixtures.Product(testutil.WithStock(12))
	seedProduct(t, ctx, product)

	fixture := suite.Fixtures.Lot(product.ID, testutil.WithQuantity(12))
	lot := &repository.Lot{
		ID:              fixture.ID,
		ProductID:       fixture.ProductID,
		BatchNumber:     fixture.BatchNumber,
		ExpiryDate:      fixture.ExpiryDate,
		InitialQuantity: fixture.InitialQuantity,
		UnitCost:        fixture.UnitCost,
	}
	require.NoError(t, lotRepo.Create(ctx, lot))

	req := testutil.NewHTTPRequest(http.MethodGet, "/api/v1/products/"+product.ID+"/reconcile", nil)
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertBodyContains(t, rr, "consistent")

	// Knock the aggregate out of line and the check reports divergence.
	_, err := suite.RawDB.ExecContext(ctx, `UPDATE products SET stock = stock + 3 WHERE id = $1`, product.ID)
	require.NoError(t, err)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/products/"+product.ID+"/reconcile", nil))
	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	testutil.AssertBodyContains(t, rr, "INTEGRITY_ERROR")
}
