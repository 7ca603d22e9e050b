package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BradenHooton/cardguard/internal/models"
)

// Signature header the alert receiver verifies against the shared secret
// with a constant-time comparison.
const AlertSignatureHeader = "X-Cardguard-Signature"

// AlertEmailer is an optional secondary channel for high-severity alerts.
type AlertEmailer interface {
	SendAlertEmail(ctx context.Context, alert models.FraudAlert) error
}

// AlertDispatcherConfig configures webhook delivery.
type AlertDispatcherConfig struct {
	WebhookURL    string        // empty disables webhook delivery
	SigningSecret string        // shared HMAC secret
	MaxAttempts   int           // total attempts, including the first
	BackoffBase   time.Duration // first retry delay; each retry triples it
	Timeout       time.Duration // per-attempt HTTP timeout
	QueueSize     int           // buffered alert queue depth
}

// DefaultAlertDispatcherConfig returns the reference delivery settings:
// 3 attempts with 1s/3s/9s backoff and a 10 second per-attempt timeout.
func DefaultAlertDispatcherConfig() AlertDispatcherConfig {
	return AlertDispatcherConfig{
		MaxAttempts: 3,
		BackoffBase: 1 * time.Second,
		Timeout:     10 * time.Second,
		QueueSize:   64,
	}
}

// AlertDispatcher delivers fraud alerts to the configured sink without
// ever blocking or failing the request that produced them. Emit enqueues;
// a single background worker does the delivery with bounded retries.
type AlertDispatcher struct {
	config  AlertDispatcherConfig
	client  *http.Client
	emailer AlertEmailer
	logger  *slog.Logger

	queue    chan models.FraudAlert
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewAlertDispatcher creates a dispatcher and starts its delivery worker.
// A nil emailer disables the email channel.
func NewAlertDispatcher(config AlertDispatcherConfig, emailer AlertEmailer, logger *slog.Logger) *AlertDispatcher {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}

	d := &AlertDispatcher{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		emailer: emailer,
		logger:  logger,
		queue:   make(chan models.FraudAlert, config.QueueSize),
	}

	d.wg.Add(1)
	go d.worker()

	return d
}

// Emit enqueues an alert for delivery. Never blocks: if the queue is full
// the alert is dropped and counted in the logs rather than stalling the
// request path.
func (d *AlertDispatcher) Emit(alert models.FraudAlert) {
	select {
	case d.queue <- alert:
	default:
		d.logger.Warn("alert queue full, dropping alert",
			slog.String("type", alert.Type),
			slog.String("severity", alert.Severity))
	}
}

// Stop drains the queue and waits for in-flight deliveries to finish.
func (d *AlertDispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *AlertDispatcher) worker() {
	defer d.wg.Done()

	for alert := range d.queue {
		d.deliver(alert)
	}
}

// deliver sends one alert to every configured channel. Failures are
// terminal here; nothing propagates back to the emitter.
func (d *AlertDispatcher) deliver(alert models.FraudAlert) {
	if d.config.WebhookURL != "" {
		d.deliverWebhook(alert)
	}

	if d.emailer != nil && alert.Severity == models.AlertSeverityHigh {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
		if err := d.emailer.SendAlertEmail(ctx, alert); err != nil {
			d.logger.Error("alert email delivery failed", slog.Any("error", err))
		}
		cancel()
	}
}

// deliverWebhook posts the signed alert with retries. Only 5xx responses
// and transport errors are retried; a 4xx is terminal after the first
// attempt.
func (d *AlertDispatcher) deliverWebhook(alert models.FraudAlert) {
	body, err := json.Marshal(alert)
	if err != nil {
		d.logger.Error("failed to encode alert", slog.Any("error", err))
		return
	}

	signature := signPayload(d.config.SigningSecret, body)
	start := time.Now()

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		status, err := d.postWebhook(body, signature)

		if err == nil && status < 300 {
			d.logger.Info("alert delivered",
				slog.String("target", d.config.WebhookURL),
				slog.String("elapsed", time.Since(start).String()),
				slog.Int("attempt", attempt),
				slog.Int("status", status))
			return
		}

		retryable := err != nil || status >= 500
		if !retryable || attempt == d.config.MaxAttempts {
			d.logger.Error("alert delivery failed",
				slog.String("target", d.config.WebhookURL),
				slog.String("elapsed", time.Since(start).String()),
				slog.Int("attempts", attempt),
				slog.Int("status", status),
				slog.String("error", truncateError(err)))
			return
		}

		d.logger.Warn("alert delivery attempt failed, retrying",
			slog.String("target", d.config.WebhookURL),
			slog.Int("attempt", attempt),
			slog.Int("status", status),
			slog.String("error", truncateError(err)))

		// Exponential backoff: base, base*3, base*9, ...
		delay := d.config.BackoffBase
		for i := 1; i < attempt; i++ {
			delay *= 3
		}
		time.Sleep(delay)
	}
}

func (d *AlertDispatcher) postWebhook(body []byte, signature string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AlertSignatureHeader, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// signPayload computes the hex HMAC-SHA256 of body under the shared
// secret.
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAlertSignature checks a received signature against the shared
// secret using a constant-time comparison. Exported for alert receivers.
func VerifyAlertSignature(secret string, body []byte, signature string) bool {
	expected := signPayload(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 200 {
		msg = fmt.Sprintf("%s...", msg[:200])
	}
	return msg
}
