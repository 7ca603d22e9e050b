package fraud

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/cardguard/internal/models"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []models.FraudAlert
}

func (s *captureSink) Emit(alert models.FraudAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
}

func (s *captureSink) all() []models.FraudAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FraudAlert(nil), s.alerts...)
}

func newTestAggregator(sink AlertSink) *Aggregator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAggregator(DefaultAggregatorConfig(), sink, logger)
}

func TestAggregator_NoAlertBelowThreshold(t *testing.T) {
	sink := &captureSink{}
	a := newTestAggregator(sink)

	a.RecordFailure("10.0.0.1")
	a.RecordFailure("10.0.0.1")

	if got := len(sink.all()); got != 0 {
		t.Errorf("alerts emitted = %d, want 0", got)
	}
	if got := a.FailureCount("10.0.0.1"); got != 2 {
		t.Errorf("FailureCount = %d, want 2", got)
	}
}

func TestAggregator_AlertsAtThreshold(t *testing.T) {
	sink := &captureSink{}
	a := newTestAggregator(sink)

	for i := 0; i < 3; i++ {
		a.RecordFailure("10.0.0.1")
	}

	alerts := sink.all()
	if len(alerts) != 1 {
		t.Fatalf("alerts emitted = %d, want 1", len(alerts))
	}
	if alerts[0].Type != models.AlertTypeSuspiciousActivity {
		t.Errorf("alert type = %q, want %q", alerts[0].Type, models.AlertTypeSuspiciousActivity)
	}
	if alerts[0].Severity != models.AlertSeverityMedium {
		t.Errorf("severity = %q, want medium", alerts[0].Severity)
	}
	if alerts[0].IPAddress != "10.0.0.1" {
		t.Errorf("ip = %q, want 10.0.0.1", alerts[0].IPAddress)
	}
}

func TestAggregator_ReEmitsWhileHot(t *testing.T) {
	sink := &captureSink{}
	a := newTestAggregator(sink)

	for i := 0; i < 4; i++ {
		a.RecordFailure("10.0.0.1")
	}

	// Third and fourth failures both alert; staying hot is the signal.
	if got := len(sink.all()); got != 2 {
		t.Errorf("alerts emitted = %d, want 2", got)
	}
}

func TestAggregator_EscalatesToHighSeverity(t *testing.T) {
	sink := &captureSink{}
	a := newTestAggregator(sink)

	for i := 0; i < 5; i++ {
		a.RecordFailure("10.0.0.1")
	}

	alerts := sink.all()
	if len(alerts) != 3 {
		t.Fatalf("alerts emitted = %d, want 3", len(alerts))
	}
	last := alerts[len(alerts)-1]
	if last.Severity != models.AlertSeverityHigh {
		t.Errorf("severity at 5 failures = %q, want high", last.Severity)
	}
}

func TestAggregator_WindowExpiryResetsCount(t *testing.T) {
	sink := &captureSink{}
	a := newTestAggregator(sink)

	now := time.Now()
	a.clock = func() time.Time { return now }

	a.RecordFailure("10.0.0.1")
	a.RecordFailure("10.0.0.1")

	now = now.Add(6 * time.Minute)
	a.RecordFailure("10.0.0.1")

	if got := a.FailureCount("10.0.0.1"); got != 1 {
		t.Errorf("FailureCount after expiry = %d, want 1", got)
	}
	if got := len(sink.all()); got != 0 {
		t.Errorf("alerts emitted = %d, want 0", got)
	}
}

func TestAggregator_NilSink(t *testing.T) {
	a := newTestAggregator(nil)

	// Counting still works without a sink; must not panic.
	for i := 0; i < 5; i++ {
		a.RecordFailure("10.0.0.1")
	}
	if got := a.FailureCount("10.0.0.1"); got != 5 {
		t.Errorf("FailureCount = %d, want 5", got)
	}
}

func TestAggregator_Sweep(t *testing.T) {
	a := newTestAggregator(nil)

	now := time.Now()
	a.clock = func() time.Time { return now }

	a.RecordFailure("10.0.0.1")
	a.RecordFailure("10.0.0.2")

	removed := a.Sweep(now.Add(6 * time.Minute))
	if removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if got := a.FailureCount("10.0.0.1"); got != 0 {
		t.Errorf("FailureCount after sweep = %d, want 0", got)
	}
}
