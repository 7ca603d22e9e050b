package models

// Risk levels attached to a fraud check decision.
const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

// RedemptionContext carries the request-derived attributes a fraud check
// needs. It lives for the duration of one check and is never persisted.
type RedemptionContext struct {
	GAN               string
	IPAddress         string
	UserAgent         string
	MerchantID        string
	DeviceFingerprint string
}

// FraudCheckResult is the decision produced by a single fraud check.
// Produced fresh per call; only the underlying FraudLog row, if any, is
// durable.
type FraudCheckResult struct {
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason,omitempty"`
	RiskLevel string `json:"risk_level"`
}
