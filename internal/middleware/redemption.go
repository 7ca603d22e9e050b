package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/cardguard/internal/fraud"
	"github.com/BradenHooton/cardguard/internal/models"
	"github.com/BradenHooton/cardguard/internal/services"
	pkghttp "github.com/BradenHooton/cardguard/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const redemptionContextKey contextKey = "redemption"

// Header a client may use to supply its own device identifier. Absent the
// header, the fingerprint is derived from IP + User-Agent.
const DeviceFingerprintHeader = "X-Device-Fingerprint"

// Machine-readable block codes returned by the redemption guard.
const (
	CodeRateLimited     = "RATE_LIMITED"
	CodeAlreadyRedeemed = "ALREADY_REDEEMED"
	CodeInvalidCode     = "INVALID_CODE"
	CodeCardInactive    = "CARD_INACTIVE"
)

// RedemptionRequest is the decoded redemption payload plus everything the
// guard steps derived from it. It travels through the request context so
// each step, and finally the handler, builds on the previous one.
type RedemptionRequest struct {
	Payload     string `json:"payload"`
	MerchantID  string `json:"merchant_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`

	// Populated by the guard steps
	GAN     string
	Card    *models.GiftCard
	Context models.RedemptionContext
}

// RedemptionRecorder persists redemption attempt rows.
type RedemptionRecorder interface {
	RecordAttempt(ctx context.Context, attempt *models.CardRedemption) error
}

// RedemptionGuard is the ordered middleware chain in front of the
// redemption handler: payload integrity, per-IP+device rate limit, replay
// guard. Each step short-circuits with a structured JSON failure and feeds
// the fraud signal aggregator.
type RedemptionGuard struct {
	limiter      *fraud.Limiter
	fraudService *services.FraudService
	cards        services.GiftCardStore
	redemptions  RedemptionRecorder
	logger       *slog.Logger
}

// NewRedemptionGuard creates the guard with the per-IP+device policy.
func NewRedemptionGuard(
	policy fraud.Policy,
	fraudService *services.FraudService,
	cards services.GiftCardStore,
	redemptions RedemptionRecorder,
	logger *slog.Logger,
) *RedemptionGuard {
	return &RedemptionGuard{
		limiter:      fraud.NewLimiter(policy),
		fraudService: fraudService,
		cards:        cards,
		redemptions:  redemptions,
		logger:       logger,
	}
}

// ParsePayload decodes and validates the redemption payload. Structural
// rejections are not durably logged, but they count toward the
// suspicious-activity signal for the source IP.
func (g *RedemptionGuard) ParsePayload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := pkghttp.ExtractClientIP(r, nil)

		var req RedemptionRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			g.fraudService.RecordPayloadFailure(ip)
			writeBlocked(w, http.StatusBadRequest, fraud.CodeInvalidFormat, "request body must be a JSON object with a payload string", 0)
			return
		}

		if payloadErr := fraud.ValidatePayload(req.Payload); payloadErr != nil {
			g.fraudService.RecordPayloadFailure(ip)
			writeBlocked(w, http.StatusBadRequest, payloadErr.Code, payloadErr.Message, 0)
			return
		}

		userAgent := r.Header.Get("User-Agent")
		fingerprint := r.Header.Get(DeviceFingerprintHeader)
		if fingerprint == "" {
			fingerprint = fraud.Fingerprint(ip, userAgent)
		}

		req.Context = models.RedemptionContext{
			IPAddress:         ip,
			UserAgent:         userAgent,
			MerchantID:        req.MerchantID,
			DeviceFingerprint: fingerprint,
		}

		ctx := context.WithValue(r.Context(), redemptionContextKey, &req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimit applies the per-IP+device fixed-window limit. A tripped limit
// answers 429 with the seconds until the window resets, writes the fraud
// log entry, and feeds the aggregator.
func (g *RedemptionGuard) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := RedemptionFromContext(r)
		if req == nil {
			pkghttp.WriteInternalError(w, "redemption context missing")
			return
		}

		key := req.Context.IPAddress + "|" + req.Context.DeviceFingerprint
		allowed, count, retryAfter := g.limiter.Allow(key)
		if !allowed {
			g.logger.Warn("redemption rate limit tripped",
				slog.String("ip_address", req.Context.IPAddress),
				slog.Int("attempts", count))
			g.fraudService.LogRateLimitViolation(r.Context(), contextWithGAN(req))
			writeBlocked(w, http.StatusTooManyRequests, CodeRateLimited,
				"Too many redemption attempts. Please try again later.", retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ReplayGuard resolves the payload to a GAN and rejects redemption of an
// already-redeemed card with 409. Lookup failures fail open: a transient
// storage error must not block legitimate redemptions.
func (g *RedemptionGuard) ReplayGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := RedemptionFromContext(r)
		if req == nil {
			pkghttp.WriteInternalError(w, "redemption context missing")
			return
		}

		gan, err := g.fraudService.ResolveGAN(r.Context(), req.Payload)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
				g.fraudService.LogRedemptionFailure(r.Context(), req.Payload, req.MerchantID,
					models.FraudReasonInvalidCode, req.Context)
				writeBlocked(w, http.StatusNotFound, CodeInvalidCode, "gift card not found", 0)
				return
			}
			// Storage error: fail open with the payload as the GAN
			g.logger.Error("order reference resolution failed", slog.Any("error", err))
			gan = req.Payload
		}
		req.GAN = gan
		req.Context.GAN = gan

		card, err := g.cards.GetByGAN(r.Context(), gan)
		if err != nil {
			if errors.Is(err, models.ErrCardNotFound) {
				g.fraudService.LogRedemptionFailure(r.Context(), gan, req.MerchantID,
					models.FraudReasonInvalidCode, req.Context)
				writeBlocked(w, http.StatusNotFound, CodeInvalidCode, "gift card not found", 0)
				return
			}
			g.logger.Error("gift card lookup failed in replay guard", slog.Any("error", err))
			next.ServeHTTP(w, r) // fail open
			return
		}
		req.Card = card

		if card.Redeemed {
			failureReason := "Replay attack: gift card already redeemed"
			attempt := &models.CardRedemption{
				CardID:            &card.ID,
				GAN:               gan,
				AmountCents:       req.AmountCents,
				IPAddress:         req.Context.IPAddress,
				DeviceFingerprint: req.Context.DeviceFingerprint,
				UserAgent:         req.Context.UserAgent,
				Success:           false,
				FailureReason:     &failureReason,
			}
			if req.MerchantID != "" {
				attempt.MerchantID = &req.MerchantID
			}
			if err := g.redemptions.RecordAttempt(r.Context(), attempt); err != nil {
				g.logger.Error("failed to record replay attempt", slog.Any("error", err))
			}

			g.fraudService.LogReplayAttempt(r.Context(), req.Context)
			writeBlocked(w, http.StatusConflict, CodeAlreadyRedeemed,
				"This gift card has already been redeemed.", 0)
			return
		}

		expired := card.ExpiresAt != nil && card.ExpiresAt.Before(time.Now())
		if card.Status != models.GiftCardStatusActive || expired {
			g.fraudService.LogRedemptionFailure(r.Context(), gan, req.MerchantID,
				models.FraudReasonRedemptionFailed, req.Context)
			writeBlocked(w, http.StatusConflict, CodeCardInactive,
				"This gift card is not active.", 0)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Sweep removes expired windows from the guard's limiter.
func (g *RedemptionGuard) Sweep(now time.Time) int {
	return g.limiter.Sweep(now)
}

// RedemptionFromContext returns the RedemptionRequest stored by
// ParsePayload, or nil if the chain was not run.
func RedemptionFromContext(r *http.Request) *RedemptionRequest {
	req, _ := r.Context().Value(redemptionContextKey).(*RedemptionRequest)
	return req
}

func contextWithGAN(req *RedemptionRequest) models.RedemptionContext {
	rc := req.Context
	if rc.GAN == "" {
		rc.GAN = req.Payload
	}
	return rc
}

// blockedResponse is the structured failure the guard returns when a step
// short-circuits.
type blockedResponse struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

func writeBlocked(w http.ResponseWriter, status int, code, message string, retryAfter time.Duration) {
	w.Header().Set("Content-Type", "application/json")

	resp := blockedResponse{Success: false, Error: message, Code: code}
	if retryAfter > 0 {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		resp.RetryAfterSeconds = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
