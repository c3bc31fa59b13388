// Package testutil provides testing utilities for the lot service.
// It includes a testcontainers PostgreSQL harness, sqlmock factories and
// common fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "shelflife_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "shelflife_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// ApplyMigrations creates the lot service schema in the test database
func (c *PostgresContainer) ApplyMigrations(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			category VARCHAR(100) NOT NULL,
			requires_expiry BOOLEAN NOT NULL DEFAULT FALSE,
			expiry_sensitive BOOLEAN NOT NULL DEFAULT FALSE,
			price NUMERIC(14,2) NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS lots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			product_id UUID NOT NULL REFERENCES products(id),
			batch_number VARCHAR(100) NOT NULL,
			production_date DATE,
			expiry_date DATE,
			initial_quantity INTEGER NOT NULL,
			current_quantity INTEGER NOT NULL,
			unit_cost NUMERIC(14,2) NOT NULL DEFAULT 0,
			supplier_ref VARCHAR(255),
			purchase_order_ref VARCHAR(255),
			notes TEXT,
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			blocked_reason TEXT,
			disposed BOOLEAN NOT NULL DEFAULT FALSE,
			disposed_at TIMESTAMPTZ,
			disposal_method VARCHAR(100),
			disposed_by VARCHAR(255),
			branch_id VARCHAR(100),
			is_expired BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT lots_batch_number_product_unique UNIQUE (product_id, batch_number),
			CONSTRAINT quantity_non_negative CHECK (current_quantity >= 0),
			CONSTRAINT quantity_within_initial CHECK (current_quantity <= initial_quantity),
			CONSTRAINT unit_cost_non_negative CHECK (unit_cost >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_lots_product_fefo
			ON lots (product_id, expiry_date ASC NULLS LAST, created_at ASC);

		CREATE TABLE IF NOT EXISTS lot_consumptions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sale_line_id VARCHAR(100) NOT NULL,
			lot_id UUID NOT NULL REFERENCES lots(id),
			product_id UUID NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_cost_at_time NUMERIC(14,2) NOT NULL,
			total_cost NUMERIC(14,2) NOT NULL,
			expiry_date_at_time DATE,
			reversed BOOLEAN NOT NULL DEFAULT FALSE,
			reversed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT consumption_sale_line_lot_unique UNIQUE (sale_line_id, lot_id)
		);

		CREATE INDEX IF NOT EXISTS idx_consumptions_sale_line
			ON lot_consumptions (sale_line_id);
		CREATE INDEX IF NOT EXISTS idx_consumptions_product_window
			ON lot_consumptions (product_id, created_at);

		CREATE TABLE IF NOT EXISTS lot_audit_log (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			lot_id UUID NOT NULL,
			product_id UUID NOT NULL,
			action VARCHAR(50) NOT NULL,
			quantity INTEGER NOT NULL,
			previous_quantity INTEGER NOT NULL,
			new_quantity INTEGER NOT NULL,
			reason TEXT,
			performed_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_audit_lot ON lot_audit_log (lot_id, created_at DESC);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
