package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/cardguard/internal/fraud"
	"github.com/BradenHooton/cardguard/internal/handlers"
	"github.com/BradenHooton/cardguard/internal/middleware"
	"github.com/BradenHooton/cardguard/internal/models"
	"github.com/BradenHooton/cardguard/internal/services"
)

type memoryCardStore struct {
	mu     sync.Mutex
	cards  map[string]*models.GiftCard
	orders map[string]string
}

func (m *memoryCardStore) GetByGAN(ctx context.Context, gan string) (*models.GiftCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[gan]
	if !ok {
		return nil, models.ErrCardNotFound
	}
	c := *card
	return &c, nil
}

func (m *memoryCardStore) ResolveOrderReference(ctx context.Context, orderID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gan, ok := m.orders[orderID]
	if !ok {
		return "", models.ErrNotFound
	}
	return gan, nil
}

func (m *memoryCardStore) MarkRedeemed(ctx context.Context, gan string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[gan]
	if !ok {
		return models.ErrCardNotFound
	}
	if card.Redeemed {
		return models.ErrCardAlreadyRedeemed
	}
	now := time.Now()
	card.Redeemed = true
	card.RedeemedAt = &now
	card.Status = models.GiftCardStatusRedeemed
	return nil
}

type memoryFraudLogStore struct {
	mu      sync.Mutex
	entries []*models.FraudLog
}

func (m *memoryFraudLogStore) Create(ctx context.Context, entry *models.FraudLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryFraudLogStore) CountByIPAndUserAgent(ctx context.Context, ipAddress, userAgent string, reasons []string, since time.Time) (int, error) {
	return 0, nil
}

func (m *memoryFraudLogStore) CountDistinctIPsForGAN(ctx context.Context, gan string, since time.Time) (int, error) {
	return 0, nil
}

func (m *memoryFraudLogStore) Query(ctx context.Context, filter models.FraudLogFilter) ([]*models.FraudLog, error) {
	return nil, nil
}

func (m *memoryFraudLogStore) GetRecent(ctx context.Context, limit int) ([]*models.FraudLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.entries) {
		limit = len(m.entries)
	}
	return m.entries[:limit], nil
}

func (m *memoryFraudLogStore) GetStatistics(ctx context.Context) (*models.FraudStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.FraudStatistics{TotalEvents: int64(len(m.entries))}, nil
}

type memoryRedemptionStore struct {
	mu       sync.Mutex
	attempts []*models.CardRedemption
}

func (m *memoryRedemptionStore) RecordAttempt(ctx context.Context, attempt *models.CardRedemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memoryRedemptionStore) GetRecentForGAN(ctx context.Context, gan string, limit int) ([]*models.CardRedemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CardRedemption
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if m.attempts[i].GAN == gan {
			out = append(out, m.attempts[i])
		}
	}
	return out, nil
}

type noopSink struct{}

func (noopSink) Emit(alert models.FraudAlert) {}

type redemptionFixture struct {
	cards       *memoryCardStore
	logs        *memoryFraudLogStore
	redemptions *memoryRedemptionStore
	chain       http.Handler
	checkChain  http.Handler
}

func newRedemptionFixture(t *testing.T) *redemptionFixture {
	t.Helper()

	cards := &memoryCardStore{
		cards: map[string]*models.GiftCard{
			"GAN-1234-5678": {
				ID:           uuid.New(),
				GAN:          "GAN-1234-5678",
				Status:       models.GiftCardStatusActive,
				BalanceCents: 5000,
			},
		},
		orders: map[string]string{"order-42": "GAN-1234-5678"},
	}
	logs := &memoryFraudLogStore{}
	redemptions := &memoryRedemptionStore{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	aggregator := fraud.NewAggregator(fraud.DefaultAggregatorConfig(), noopSink{}, logger)
	svc := services.NewFraudService(services.DefaultFraudServiceConfig(), cards, logs, aggregator, logger)

	guard := middleware.NewRedemptionGuard(
		fraud.Policy{Name: "redemption_ip_device", Window: 10 * time.Minute, MaxAttempts: 5},
		svc, cards, redemptions, logger)
	handler := handlers.NewRedemptionHandler(svc, cards, redemptions, noopSink{}, logger)

	return &redemptionFixture{
		cards:       cards,
		logs:        logs,
		redemptions: redemptions,
		chain:       guard.ParsePayload(guard.RateLimit(guard.ReplayGuard(http.HandlerFunc(handler.Redeem)))),
		checkChain:  guard.ParsePayload(guard.RateLimit(guard.ReplayGuard(http.HandlerFunc(handler.Check)))),
	}
}

func redeemRequest(body, ip string) *http.Request {
	req := httptest.NewRequest("POST", "/api/v1/redemptions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "shop-app/2.1")
	req.RemoteAddr = ip + ":40000"
	return req
}

func TestRedeem_Success(t *testing.T) {
	f := newRedemptionFixture(t)

	w := httptest.NewRecorder()
	f.chain.ServeHTTP(w, redeemRequest(`{"payload":"GAN-1234-5678"}`, "203.0.113.7"))

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "GAN-1234-5678", resp["gan"])
	assert.Equal(t, float64(5000), resp["amount_cents"])

	card, err := f.cards.GetByGAN(context.Background(), "GAN-1234-5678")
	require.NoError(t, err)
	assert.True(t, card.Redeemed)

	require.Len(t, f.redemptions.attempts, 1)
	assert.True(t, f.redemptions.attempts[0].Success)
}

func TestRedeem_SecondAttemptConflicts(t *testing.T) {
	f := newRedemptionFixture(t)

	w := httptest.NewRecorder()
	f.chain.ServeHTTP(w, redeemRequest(`{"payload":"GAN-1234-5678"}`, "203.0.113.7"))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	f.chain.ServeHTTP(w, redeemRequest(`{"payload":"GAN-1234-5678"}`, "203.0.113.7"))
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ALREADY_REDEEMED", resp["code"])
}

func TestRedeem_ViaOrderURL(t *testing.T) {
	f := newRedemptionFixture(t)

	w := httptest.NewRecorder()
	f.chain.ServeHTTP(w, redeemRequest(`{"payload":"https://cards.example.com/gift/order-42"}`, "203.0.113.7"))

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "GAN-1234-5678", resp["gan"])
}

func TestRedeem_TamperedPayloadRejected(t *testing.T) {
	f := newRedemptionFixture(t)

	w := httptest.NewRecorder()
	f.chain.ServeHTTP(w, redeemRequest(`{"payload":"<script>alert(1)</script>"}`, "203.0.113.7"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.redemptions.attempts)
}

func TestCheck_DoesNotRedeem(t *testing.T) {
	f := newRedemptionFixture(t)

	w := httptest.NewRecorder()
	f.checkChain.ServeHTTP(w, redeemRequest(`{"payload":"GAN-1234-5678"}`, "203.0.113.7"))

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["blocked"])
	assert.Equal(t, "low", resp["risk_level"])

	card, err := f.cards.GetByGAN(context.Background(), "GAN-1234-5678")
	require.NoError(t, err)
	assert.False(t, card.Redeemed)
}

func TestRedeem_BlockedByIPRate(t *testing.T) {
	f := newRedemptionFixture(t)

	// The fraud-check IP policy allows 3 per minute; the device limit is 5
	// per 10 minutes. Hammering the check endpoint burns the IP budget, so
	// the fourth check is blocked while still under the device limit.
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		f.checkChain.ServeHTTP(w, redeemRequest(`{"payload":"GAN-1234-5678"}`, "203.0.113.9"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	f.checkChain.ServeHTTP(w, redeemRequest(`{"payload":"GAN-1234-5678"}`, "203.0.113.9"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["blocked"])
	assert.Equal(t, "high", resp["risk_level"])
}
