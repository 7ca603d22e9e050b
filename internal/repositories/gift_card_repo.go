package repositories

import (
	"context"
	"errors"

	"github.com/BradenHooton/cardguard/internal/database"
	"github.com/BradenHooton/cardguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// GiftCardRepository handles database operations for gift cards and their
// order references
type GiftCardRepository struct {
	db *database.DB
}

// NewGiftCardRepository creates a new GiftCardRepository
func NewGiftCardRepository(db *database.DB) *GiftCardRepository {
	return &GiftCardRepository{db: db}
}

// GetByGAN returns the gift card identified by gan
func (r *GiftCardRepository) GetByGAN(ctx context.Context, gan string) (*models.GiftCard, error) {
	query := `
		SELECT id, gan, merchant_id, status, balance_cents, redeemed, redeemed_at, expires_at, created_at
		FROM gift_cards
		WHERE gan = $1
	`

	var card models.GiftCard
	err := r.db.Pool.QueryRow(ctx, query, gan).Scan(
		&card.ID,
		&card.GAN,
		&card.MerchantID,
		&card.Status,
		&card.BalanceCents,
		&card.Redeemed,
		&card.RedeemedAt,
		&card.ExpiresAt,
		&card.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrCardNotFound
		}
		return nil, database.MapPostgresError(err)
	}

	return &card, nil
}

// ResolveOrderReference maps a checkout order ID to the GAN it produced.
// Used when the redemption payload arrives as a share URL rather than a
// raw card number.
func (r *GiftCardRepository) ResolveOrderReference(ctx context.Context, orderID string) (string, error) {
	query := `SELECT gan FROM gift_card_orders WHERE order_id = $1`

	var gan string
	err := r.db.Pool.QueryRow(ctx, query, orderID).Scan(&gan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", models.ErrNotFound
		}
		return "", database.MapPostgresError(err)
	}

	return gan, nil
}

// MarkRedeemed flips a card to redeemed. The WHERE clause guards against a
// concurrent redemption: zero rows affected means someone got there first.
func (r *GiftCardRepository) MarkRedeemed(ctx context.Context, gan string) error {
	query := `
		UPDATE gift_cards
		SET redeemed = TRUE, status = $2, redeemed_at = NOW()
		WHERE gan = $1 AND redeemed = FALSE
	`

	tag, err := r.db.Pool.Exec(ctx, query, gan, models.GiftCardStatusRedeemed)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrCardAlreadyRedeemed
	}

	return nil
}

// Create inserts a gift card. Used by seeding and tests.
func (r *GiftCardRepository) Create(ctx context.Context, card *models.GiftCard) error {
	query := `
		INSERT INTO gift_cards (gan, merchant_id, status, balance_cents, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		card.GAN,
		card.MerchantID,
		card.Status,
		card.BalanceCents,
		card.ExpiresAt,
	)

	return database.MapPostgresError(err)
}
