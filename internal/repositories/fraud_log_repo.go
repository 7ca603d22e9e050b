package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/cardguard/internal/database"
	"github.com/BradenHooton/cardguard/internal/models"
)

// FraudLogRepository handles database operations for the append-only fraud
// event log. Rows are inserted and queried, never updated; deletion happens
// only through retention pruning.
type FraudLogRepository struct {
	db *database.DB
}

// NewFraudLogRepository creates a new FraudLogRepository
func NewFraudLogRepository(db *database.DB) *FraudLogRepository {
	return &FraudLogRepository{db: db}
}

// Create appends a fraud event
func (r *FraudLogRepository) Create(ctx context.Context, entry *models.FraudLog) error {
	query := `
		INSERT INTO fraud_logs (gan, ip_address, merchant_id, user_agent, reason)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.GAN,
		entry.IPAddress,
		entry.MerchantID,
		entry.UserAgent,
		entry.Reason,
	)

	return database.MapPostgresError(err)
}

// CountByIPAndUserAgent returns the number of fraud events from an IP with
// a matching user agent and one of the given reasons since the cutoff
func (r *FraudLogRepository) CountByIPAndUserAgent(ctx context.Context, ipAddress, userAgent string, reasons []string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM fraud_logs
		WHERE ip_address = $1 AND user_agent = $2 AND reason = ANY($3) AND created_at >= $4
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, userAgent, reasons, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountDistinctIPsForGAN returns the number of unique IP addresses that
// have generated fraud events for a GAN since the cutoff
func (r *FraudLogRepository) CountDistinctIPsForGAN(ctx context.Context, gan string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT ip_address) FROM fraud_logs
		WHERE gan = $1 AND created_at >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, gan, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// Query returns fraud events matching the filter, newest first. Zero-value
// filter fields are ignored.
func (r *FraudLogRepository) Query(ctx context.Context, filter models.FraudLogFilter) ([]*models.FraudLog, error) {
	query := `
		SELECT id, gan, ip_address, merchant_id, user_agent, reason, created_at
		FROM fraud_logs
		WHERE ($1 = '' OR ip_address = $1)
		  AND ($2 = '' OR gan = $2)
		  AND ($3 = '' OR merchant_id = $3)
		  AND created_at >= $4
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, filter.IPAddress, filter.GAN, filter.MerchantID, filter.Since)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	return scanFraudLogs(rows)
}

// GetRecent returns the most recent fraud events up to limit
func (r *FraudLogRepository) GetRecent(ctx context.Context, limit int) ([]*models.FraudLog, error) {
	query := `
		SELECT id, gan, ip_address, merchant_id, user_agent, reason, created_at
		FROM fraud_logs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	return scanFraudLogs(rows)
}

// GetStatistics aggregates fraud log counts for the dashboard
func (r *FraudLogRepository) GetStatistics(ctx context.Context) (*models.FraudStatistics, error) {
	stats := &models.FraudStatistics{
		ByReason: make(map[string]int64),
	}

	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM fraud_logs`).Scan(&stats.TotalEvents)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	err = r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM fraud_logs WHERE created_at >= NOW() - INTERVAL '24 hours'`,
	).Scan(&stats.EventsLast24h)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	reasonRows, err := r.db.Pool.Query(ctx,
		`SELECT reason, COUNT(*) FROM fraud_logs GROUP BY reason`,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer reasonRows.Close()

	for reasonRows.Next() {
		var reason string
		var count int64
		if err := reasonRows.Scan(&reason, &count); err != nil {
			return nil, database.MapPostgresError(err)
		}
		stats.ByReason[reason] = count
	}
	if err := reasonRows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	ipRows, err := r.db.Pool.Query(ctx, `
		SELECT ip_address, COUNT(*) AS cnt FROM fraud_logs
		GROUP BY ip_address
		ORDER BY cnt DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer ipRows.Close()

	for ipRows.Next() {
		var entry models.IPEventCount
		if err := ipRows.Scan(&entry.IPAddress, &entry.Count); err != nil {
			return nil, database.MapPostgresError(err)
		}
		stats.TopIPs = append(stats.TopIPs, entry)
	}
	if err := ipRows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return stats, nil
}

// DeleteOlderThan removes fraud events created before the cutoff and
// returns the number of rows deleted
func (r *FraudLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM fraud_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// fraudLogRows abstracts pgx.Rows for scanning
type fraudLogRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanFraudLogs(rows fraudLogRows) ([]*models.FraudLog, error) {
	var logs []*models.FraudLog
	for rows.Next() {
		var entry models.FraudLog
		if err := rows.Scan(
			&entry.ID,
			&entry.GAN,
			&entry.IPAddress,
			&entry.MerchantID,
			&entry.UserAgent,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, database.MapPostgresError(err)
		}
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return logs, nil
}
