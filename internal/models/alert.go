package models

import "time"

// Alert severities.
const (
	AlertSeverityMedium = "medium"
	AlertSeverityHigh   = "high"
)

// Alert types.
const (
	AlertTypeSuspiciousActivity = "suspicious_activity"
	AlertTypeRedemptionBlocked  = "redemption_blocked"
)

// FraudAlert is the payload delivered to the configured alert sink. The
// JSON shape is part of the webhook contract with receivers.
type FraudAlert struct {
	Type       string    `json:"type"`
	IPAddress  string    `json:"ip,omitempty"`
	MerchantID string    `json:"merchant_id,omitempty"`
	GAN        string    `json:"gan,omitempty"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}
