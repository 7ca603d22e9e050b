package models

import (
	"time"

	"github.com/google/uuid"
)

// Gift card lifecycle states.
const (
	GiftCardStatusActive   = "active"
	GiftCardStatusRedeemed = "redeemed"
	GiftCardStatusExpired  = "expired"
	GiftCardStatusDisabled = "disabled"
)

// GiftCard represents a digital gift card. The GAN (gift account number) is
// the customer-facing identifier; balances are in cents.
type GiftCard struct {
	ID           uuid.UUID  `db:"id"`
	GAN          string     `db:"gan"`
	MerchantID   *string    `db:"merchant_id"`
	Status       string     `db:"status"`
	BalanceCents int64      `db:"balance_cents"`
	Redeemed     bool       `db:"redeemed"`
	RedeemedAt   *time.Time `db:"redeemed_at"`
	ExpiresAt    *time.Time `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

// GiftCardOrder links a checkout order to the gift card it produced.
// Redemption payloads may arrive as share URLs ending in the order ID
// rather than a raw GAN; this is the lookup target for that case.
type GiftCardOrder struct {
	ID        uuid.UUID `db:"id"`
	OrderID   string    `db:"order_id"`
	GAN       string    `db:"gan"`
	CreatedAt time.Time `db:"created_at"`
}
