package repositories

import (
	"context"

	"github.com/BradenHooton/cardguard/internal/database"
	"github.com/BradenHooton/cardguard/internal/models"
)

// RedemptionRepository handles database operations for redemption attempts
type RedemptionRepository struct {
	db *database.DB
}

// NewRedemptionRepository creates a new RedemptionRepository
func NewRedemptionRepository(db *database.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

// RecordAttempt records a redemption attempt, successful or failed
func (r *RedemptionRepository) RecordAttempt(ctx context.Context, attempt *models.CardRedemption) error {
	query := `
		INSERT INTO card_redemptions (card_id, merchant_id, gan, amount_cents, ip_address, device_fingerprint, user_agent, success, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.CardID,
		attempt.MerchantID,
		attempt.GAN,
		attempt.AmountCents,
		attempt.IPAddress,
		attempt.DeviceFingerprint,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
	)

	return database.MapPostgresError(err)
}

// GetRecentForGAN returns the most recent redemption attempts for a card
func (r *RedemptionRepository) GetRecentForGAN(ctx context.Context, gan string, limit int) ([]*models.CardRedemption, error) {
	query := `
		SELECT id, card_id, merchant_id, gan, amount_cents, ip_address, device_fingerprint, user_agent, success, failure_reason, attempted_at
		FROM card_redemptions
		WHERE gan = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, gan, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var attempts []*models.CardRedemption
	for rows.Next() {
		var attempt models.CardRedemption
		if err := rows.Scan(
			&attempt.ID,
			&attempt.CardID,
			&attempt.MerchantID,
			&attempt.GAN,
			&attempt.AmountCents,
			&attempt.IPAddress,
			&attempt.DeviceFingerprint,
			&attempt.UserAgent,
			&attempt.Success,
			&attempt.FailureReason,
			&attempt.AttemptedAt,
		); err != nil {
			return nil, database.MapPostgresError(err)
		}
		attempts = append(attempts, &attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return attempts, nil
}
