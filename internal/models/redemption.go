package models

import (
	"time"

	"github.com/google/uuid"
)

// CardRedemption records one redemption attempt, successful or not.
// Failed attempts carry a failure reason so the device-fingerprint check can
// count them later.
type CardRedemption struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	CardID            *uuid.UUID `db:"card_id" json:"card_id,omitempty"`
	MerchantID        *string    `db:"merchant_id" json:"merchant_id,omitempty"`
	GAN               string     `db:"gan" json:"gan"`
	AmountCents       int64      `db:"amount_cents" json:"amount_cents"`
	IPAddress         string     `db:"ip_address" json:"ip_address"`
	DeviceFingerprint string     `db:"device_fingerprint" json:"device_fingerprint"`
	UserAgent         string     `db:"user_agent" json:"user_agent"`
	Success           bool       `db:"success" json:"success"`
	FailureReason     *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	AttemptedAt       time.Time  `db:"attempted_at" json:"attempted_at"`
}
