package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/cardguard/internal/fraud"
	"github.com/BradenHooton/cardguard/internal/models"
)

// GiftCardStore is the narrow slice of the gift-card persistence layer the
// fraud checks need.
type GiftCardStore interface {
	GetByGAN(ctx context.Context, gan string) (*models.GiftCard, error)
	ResolveOrderReference(ctx context.Context, orderID string) (string, error)
}

// FraudLogStore is the fraud event log: append plus the queries the
// pattern checks run.
type FraudLogStore interface {
	Create(ctx context.Context, entry *models.FraudLog) error
	CountByIPAndUserAgent(ctx context.Context, ipAddress, userAgent string, reasons []string, since time.Time) (int, error)
	CountDistinctIPsForGAN(ctx context.Context, gan string, since time.Time) (int, error)
	Query(ctx context.Context, filter models.FraudLogFilter) ([]*models.FraudLog, error)
	GetRecent(ctx context.Context, limit int) ([]*models.FraudLog, error)
	GetStatistics(ctx context.Context) (*models.FraudStatistics, error)
}

// FraudServiceConfig holds the per-policy windows and thresholds for the
// redemption fraud checks.
type FraudServiceConfig struct {
	IPPolicy       fraud.Policy // tight per-IP limit applied to fraud checks
	MerchantPolicy fraud.Policy // per-merchant redemption volume limit

	DeviceFailureWindow    time.Duration // lookback for prior device failures
	DeviceFailureThreshold int           // failures before a device is blocked
	PatternWindow          time.Duration // lookback for the shared-code check
	MaxUniqueIPsPerGAN     int           // distinct IPs tolerated per GAN
}

// DefaultFraudServiceConfig returns the reference policy values.
func DefaultFraudServiceConfig() FraudServiceConfig {
	return FraudServiceConfig{
		IPPolicy:               fraud.Policy{Name: "redemption_ip", Window: 1 * time.Minute, MaxAttempts: 3},
		MerchantPolicy:         fraud.Policy{Name: "redemption_merchant", Window: 5 * time.Minute, MaxAttempts: 10},
		DeviceFailureWindow:    60 * time.Minute,
		DeviceFailureThreshold: 5,
		PatternWindow:          60 * time.Minute,
		MaxUniqueIPsPerGAN:     3,
	}
}

// FraudService runs the ordered fraud checks for gift card redemptions.
// Checks short-circuit at the first violation; every block writes a fraud
// log entry and feeds the suspicious-activity aggregator.
type FraudService struct {
	config          FraudServiceConfig
	cards           GiftCardStore
	fraudLogs       FraudLogStore
	ipLimiter       *fraud.Limiter
	merchantLimiter *fraud.Limiter
	aggregator      *fraud.Aggregator
	logger          *slog.Logger
}

// NewFraudService creates a new FraudService
func NewFraudService(config FraudServiceConfig, cards GiftCardStore, fraudLogs FraudLogStore, aggregator *fraud.Aggregator, logger *slog.Logger) *FraudService {
	return &FraudService{
		config:          config,
		cards:           cards,
		fraudLogs:       fraudLogs,
		ipLimiter:       fraud.NewLimiter(config.IPPolicy),
		merchantLimiter: fraud.NewLimiter(config.MerchantPolicy),
		aggregator:      aggregator,
		logger:          logger,
	}
}

// CheckRedemptionFraud runs the ordered checks for one redemption attempt:
// per-IP rate, replay, per-merchant rate, prior device failures, and the
// shared-code pattern. The first violation blocks with risk level high;
// a clean pass allows with risk level low.
//
// Storage errors in the replay and pattern checks fail open: a transient
// database problem must not turn into a denial of service against
// legitimate redemptions. The rate checks are in-memory and do not fail.
func (s *FraudService) CheckRedemptionFraud(ctx context.Context, rc models.RedemptionContext) models.FraudCheckResult {
	// 1. Per-IP rate check
	if allowed, count, _ := s.ipLimiter.Allow(rc.IPAddress); !allowed {
		s.logger.Warn("redemption IP rate limit tripped",
			slog.String("ip_address", rc.IPAddress),
			slog.Int("attempts", count))
		s.recordViolation(ctx, rc, models.FraudReasonRateLimitIP)
		return models.FraudCheckResult{
			Blocked:   true,
			Reason:    "Too many redemption attempts from this address",
			RiskLevel: models.RiskLevelHigh,
		}
	}

	// 2. Replay check
	card, err := s.cards.GetByGAN(ctx, rc.GAN)
	if err != nil && !errors.Is(err, models.ErrCardNotFound) {
		s.logger.Error("gift card lookup failed during fraud check", slog.Any("error", err))
		card = nil // fail open
	}
	if card != nil && card.Redeemed {
		s.recordViolation(ctx, rc, models.FraudReasonReusedCode)
		return models.FraudCheckResult{
			Blocked:   true,
			Reason:    "This gift card has already been redeemed",
			RiskLevel: models.RiskLevelHigh,
		}
	}

	// 3. Per-merchant rate check
	if rc.MerchantID != "" {
		if allowed, count, _ := s.merchantLimiter.Allow(rc.MerchantID); !allowed {
			s.logger.Warn("merchant redemption rate limit tripped",
				slog.String("merchant_id", rc.MerchantID),
				slog.Int("attempts", count))
			s.recordViolation(ctx, rc, models.FraudReasonRateLimitMerchant)
			return models.FraudCheckResult{
				Blocked:   true,
				Reason:    "Too many redemptions for this merchant",
				RiskLevel: models.RiskLevelHigh,
			}
		}
	}

	// 4. Prior device failures
	failureReasons := []string{models.FraudReasonInvalidCode, models.FraudReasonRedemptionFailed}
	deviceFailures, err := s.fraudLogs.CountByIPAndUserAgent(ctx, rc.IPAddress, rc.UserAgent,
		failureReasons, time.Now().Add(-s.config.DeviceFailureWindow))
	if err != nil {
		s.logger.Error("device failure query failed during fraud check", slog.Any("error", err))
		deviceFailures = 0 // fail open
	}
	if deviceFailures >= s.config.DeviceFailureThreshold {
		s.recordViolation(ctx, rc, models.FraudReasonDeviceFingerprint)
		return models.FraudCheckResult{
			Blocked:   true,
			Reason:    "Too many failed attempts from this device",
			RiskLevel: models.RiskLevelHigh,
		}
	}

	// 5. Shared-code pattern: count distinct source IPs for this GAN; an
	// unseen IP counts itself toward the total, so the N+1th distinct
	// source trips the threshold before its attempt goes through.
	uniqueIPs, err := s.fraudLogs.CountDistinctIPsForGAN(ctx, rc.GAN, time.Now().Add(-s.config.PatternWindow))
	if err != nil {
		s.logger.Error("pattern query failed during fraud check", slog.Any("error", err))
		uniqueIPs = 0 // fail open
	} else if uniqueIPs > 0 {
		prior, err := s.fraudLogs.Query(ctx, models.FraudLogFilter{
			GAN:       rc.GAN,
			IPAddress: rc.IPAddress,
			Since:     time.Now().Add(-s.config.PatternWindow),
		})
		if err == nil && len(prior) == 0 {
			uniqueIPs++
		}
	}
	if uniqueIPs > s.config.MaxUniqueIPsPerGAN {
		s.recordViolation(ctx, rc, models.FraudReasonMultipleIPs)
		return models.FraudCheckResult{
			Blocked:   true,
			Reason:    "This code has been attempted from too many locations",
			RiskLevel: models.RiskLevelHigh,
		}
	}

	return models.FraudCheckResult{RiskLevel: models.RiskLevelLow}
}

// ResolveGAN resolves a redemption payload to a GAN. Share-URL payloads
// ending in an order ID are resolved through the order table; anything
// else is treated as a raw GAN.
func (s *FraudService) ResolveGAN(ctx context.Context, payload string) (string, error) {
	if !strings.Contains(payload, "/") {
		return payload, nil
	}

	segments := strings.Split(strings.TrimRight(payload, "/"), "/")
	orderID := segments[len(segments)-1]
	if orderID == "" {
		return "", models.ErrBadRequest
	}

	gan, err := s.cards.ResolveOrderReference(ctx, orderID)
	if err != nil {
		return "", err
	}
	return gan, nil
}

// LogRateLimitViolation records a rate-limit trip from the HTTP middleware
// layer and feeds the aggregator.
func (s *FraudService) LogRateLimitViolation(ctx context.Context, rc models.RedemptionContext) {
	s.recordViolation(ctx, rc, models.FraudReasonRateLimitIP)
}

// LogReplayAttempt records a replay detected by the HTTP middleware layer
// and feeds the aggregator.
func (s *FraudService) LogReplayAttempt(ctx context.Context, rc models.RedemptionContext) {
	s.recordViolation(ctx, rc, models.FraudReasonReusedCode)
}

// RecordPayloadFailure feeds a payload-integrity rejection into the
// aggregator. Tampered payloads are not durably logged; only the failure
// signal counts toward alerting.
func (s *FraudService) RecordPayloadFailure(ip string) {
	s.aggregator.RecordFailure(ip)
}

// LogRedemptionFailure records a failure that happened outside the ordered
// checks (invalid code, business-rule rejection) so the device-failure
// check accumulates over time.
func (s *FraudService) LogRedemptionFailure(ctx context.Context, gan, merchantID, reason string, rc models.RedemptionContext) {
	entry := &models.FraudLog{
		GAN:       gan,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Reason:    reason,
	}
	if merchantID != "" {
		entry.MerchantID = &merchantID
	}

	if err := s.fraudLogs.Create(ctx, entry); err != nil {
		s.logger.Error("failed to persist fraud log",
			slog.String("reason", reason),
			slog.Any("error", err))
	}

	s.aggregator.RecordFailure(rc.IPAddress)
}

// GetRecentFraudLogs returns the most recent fraud events for dashboards
func (s *FraudService) GetRecentFraudLogs(ctx context.Context, limit int) ([]*models.FraudLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.fraudLogs.GetRecent(ctx, limit)
}

// GetFraudStatistics returns aggregate fraud counts for dashboards
func (s *FraudService) GetFraudStatistics(ctx context.Context) (*models.FraudStatistics, error) {
	return s.fraudLogs.GetStatistics(ctx)
}

// Sweep removes expired in-memory state from the limiters and the
// aggregator. Called periodically by the background sweeper.
func (s *FraudService) Sweep(now time.Time) int {
	removed := s.ipLimiter.Sweep(now)
	removed += s.merchantLimiter.Sweep(now)
	removed += s.aggregator.Sweep(now)
	return removed
}

// recordViolation writes the fraud log entry for a blocked attempt and
// notifies the aggregator. Persistence failures are logged and swallowed;
// the block decision already stands.
func (s *FraudService) recordViolation(ctx context.Context, rc models.RedemptionContext, reason string) {
	entry := &models.FraudLog{
		GAN:       rc.GAN,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Reason:    reason,
	}
	if rc.MerchantID != "" {
		merchantID := rc.MerchantID
		entry.MerchantID = &merchantID
	}

	if err := s.fraudLogs.Create(ctx, entry); err != nil {
		s.logger.Error("failed to persist fraud log",
			slog.String("reason", reason),
			slog.Any("error", err))
	}

	s.aggregator.RecordFailure(rc.IPAddress)
}
