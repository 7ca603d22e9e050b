package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/cardguard/internal/database"
	"github.com/BradenHooton/cardguard/internal/repositories"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("cardguard"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	// Run the embedded migrations the production binary runs at startup
	if err := database.Migrate(ctx, connStr); err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbWrapper := &database.DB{
		Pool: pool,
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         dbWrapper,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"card_redemptions",
		"fraud_logs",
		"gift_card_orders",
		"gift_cards",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.GiftCardRepository,
	*repositories.FraudLogRepository,
	*repositories.RedemptionRepository,
) {
	return repositories.NewGiftCardRepository(db),
		repositories.NewFraudLogRepository(db),
		repositories.NewRedemptionRepository(db)
}

// SeedGiftCard inserts an active gift card with the given balance
func SeedGiftCard(ctx context.Context, pool *pgxpool.Pool, gan string, balanceCents int64, redeemed bool) error {
	query := `
		INSERT INTO gift_cards (gan, status, balance_cents, redeemed, redeemed_at, created_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $4 THEN NOW() ELSE NULL END, NOW())
	`
	status := "active"
	if redeemed {
		status = "redeemed"
	}

	if _, err := pool.Exec(ctx, query, gan, status, balanceCents, redeemed); err != nil {
		return fmt.Errorf("failed to insert gift card: %w", err)
	}
	return nil
}

// SeedGiftCardOrder links an order ID to a GAN for share-URL resolution
func SeedGiftCardOrder(ctx context.Context, pool *pgxpool.Pool, orderID, gan string) error {
	query := `
		INSERT INTO gift_card_orders (order_id, gan, created_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := pool.Exec(ctx, query, orderID, gan); err != nil {
		return fmt.Errorf("failed to insert gift card order: %w", err)
	}
	return nil
}

// SeedFraudLog inserts a fraud log entry aged by the given offset
func SeedFraudLog(ctx context.Context, pool *pgxpool.Pool, gan, ipAddress, userAgent, reason string, age time.Duration) error {
	query := `
		INSERT INTO fraud_logs (gan, ip_address, user_agent, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW() - $5::interval)
	`
	interval := fmt.Sprintf("%d seconds", int(age.Seconds()))
	if _, err := pool.Exec(ctx, query, gan, ipAddress, userAgent, reason, interval); err != nil {
		return fmt.Errorf("failed to insert fraud log: %w", err)
	}
	return nil
}
