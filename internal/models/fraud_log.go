package models

import (
	"time"

	"github.com/google/uuid"
)

// Fraud log reasons. These are stored verbatim in the fraud_logs table, so
// renaming one is a data migration, not a refactor.
const (
	FraudReasonRateLimitIP       = "rate_limit_ip_violation"
	FraudReasonRateLimitMerchant = "rate_limit_merchant_violation"
	FraudReasonReusedCode        = "reused_code_attempt"
	FraudReasonDeviceFingerprint = "device_fingerprint_violation"
	FraudReasonMultipleIPs       = "suspicious_pattern_multiple_ips"
	FraudReasonInvalidCode       = "invalid_code"
	FraudReasonRedemptionFailed  = "redemption_failed"
)

// FraudLog is an append-only record of a fraud-relevant event. Rows are
// never mutated; retention is handled by the background sweeper.
type FraudLog struct {
	ID         uuid.UUID `db:"id" json:"id"`
	GAN        string    `db:"gan" json:"gan"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	MerchantID *string   `db:"merchant_id" json:"merchant_id,omitempty"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	Reason     string    `db:"reason" json:"reason"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// FraudLogFilter narrows a fraud log query. Zero-value fields are ignored.
type FraudLogFilter struct {
	IPAddress  string
	GAN        string
	MerchantID string
	Since      time.Time
}

// FraudStatistics aggregates fraud log data for the dashboard read-side.
type FraudStatistics struct {
	TotalEvents   int64            `json:"total_events"`
	EventsLast24h int64            `json:"events_last_24h"`
	ByReason      map[string]int64 `json:"by_reason"`
	TopIPs        []IPEventCount   `json:"top_ips"`
}

// IPEventCount pairs an IP address with its fraud event count.
type IPEventCount struct {
	IPAddress string `json:"ip_address"`
	Count     int64  `json:"count"`
}
