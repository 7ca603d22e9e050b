package fraud

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/cardguard/internal/models"
)

// AlertSink receives fraud alerts. Emit must not block; delivery failures
// stay inside the sink.
type AlertSink interface {
	Emit(alert models.FraudAlert)
}

// suspiciousActivity tracks failures for one IP within the current window.
type suspiciousActivity struct {
	failedAttempts int
	lastFailure    time.Time
}

// AggregatorConfig holds thresholds for suspicious-activity tracking.
type AggregatorConfig struct {
	Window         time.Duration // failure-count window, shorter than the rate-limit windows
	AlertAfter     int           // failures before an alert is emitted
	HighSeverityAt int           // failures at which severity escalates to high
}

// DefaultAggregatorConfig returns the reference thresholds: 3 failures in
// 5 minutes alerts, 5 escalates to high severity.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Window:         5 * time.Minute,
		AlertAfter:     3,
		HighSeverityAt: 5,
	}
}

// Aggregator accumulates per-IP failure counts and emits an alert on every
// qualifying failure at or past the threshold. Alerts are deliberately not
// deduplicated: repeated emission while an IP stays hot is the escalation
// signal receivers key on.
type Aggregator struct {
	mu     sync.Mutex
	config AggregatorConfig
	table  map[string]*suspiciousActivity
	sink   AlertSink
	logger *slog.Logger
	clock  func() time.Time
}

// NewAggregator creates an aggregator. A nil sink disables alert emission
// but failure counting still runs.
func NewAggregator(config AggregatorConfig, sink AlertSink, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		config: config,
		table:  make(map[string]*suspiciousActivity),
		sink:   sink,
		logger: logger,
		clock:  time.Now,
	}
}

// RecordFailure registers one failed attempt from ip. Crossing or staying
// above the alert threshold within the window emits an alert; severity is
// high once the high-severity threshold is reached.
func (a *Aggregator) RecordFailure(ip string) {
	now := a.clock()

	a.mu.Lock()
	record, ok := a.table[ip]
	if !ok || now.Sub(record.lastFailure) > a.config.Window {
		a.table[ip] = &suspiciousActivity{failedAttempts: 1, lastFailure: now}
		a.mu.Unlock()
		return
	}

	record.failedAttempts++
	record.lastFailure = now
	attempts := record.failedAttempts
	a.mu.Unlock()

	if attempts < a.config.AlertAfter {
		return
	}

	severity := models.AlertSeverityMedium
	if attempts >= a.config.HighSeverityAt {
		severity = models.AlertSeverityHigh
	}

	a.logger.Warn("suspicious activity threshold reached",
		slog.String("ip_address", ip),
		slog.Int("failed_attempts", attempts),
		slog.String("severity", severity))

	if a.sink == nil {
		return
	}

	a.sink.Emit(models.FraudAlert{
		Type:      models.AlertTypeSuspiciousActivity,
		IPAddress: ip,
		Severity:  severity,
		Message:   fmt.Sprintf("%d failed redemption attempts from %s within %s", attempts, ip, a.config.Window),
		Timestamp: now,
	})
}

// FailureCount returns the live failure count for ip, or zero if the
// window has expired.
func (a *Aggregator) FailureCount(ip string) int {
	now := a.clock()

	a.mu.Lock()
	defer a.mu.Unlock()

	record, ok := a.table[ip]
	if !ok || now.Sub(record.lastFailure) > a.config.Window {
		return 0
	}
	return record.failedAttempts
}

// Sweep removes records whose window has fully elapsed relative to now and
// returns the number removed.
func (a *Aggregator) Sweep(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for ip, record := range a.table {
		if now.Sub(record.lastFailure) > a.config.Window {
			delete(a.table, ip)
			removed++
		}
	}
	return removed
}
