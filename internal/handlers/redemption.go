package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/cardguard/internal/fraud"
	"github.com/BradenHooton/cardguard/internal/middleware"
	"github.com/BradenHooton/cardguard/internal/models"
	"github.com/BradenHooton/cardguard/internal/services"
	pkghttp "github.com/BradenHooton/cardguard/pkg/http"
	pkglogger "github.com/BradenHooton/cardguard/pkg/logger"
)

// CodeRedemptionBlocked is returned when the ordered fraud checks block a
// redemption that passed the middleware guard.
const CodeRedemptionBlocked = "REDEMPTION_BLOCKED"

// GiftCardRedeemer is the card persistence surface the redemption handler
// needs.
type GiftCardRedeemer interface {
	GetByGAN(ctx context.Context, gan string) (*models.GiftCard, error)
	MarkRedeemed(ctx context.Context, gan string) error
}

// RedemptionStore persists redemption attempt rows.
type RedemptionStore interface {
	RecordAttempt(ctx context.Context, attempt *models.CardRedemption) error
}

// RedemptionHandler handles gift card redemption HTTP requests. It runs
// after the RedemptionGuard middleware chain, so the payload is already
// validated, rate-checked, and replay-checked.
type RedemptionHandler struct {
	fraudService *services.FraudService
	cards        GiftCardRedeemer
	redemptions  RedemptionStore
	alerts       fraud.AlertSink
	audit        *pkglogger.AuditLogger
	logger       *slog.Logger
}

// NewRedemptionHandler creates a new RedemptionHandler
func NewRedemptionHandler(fraudService *services.FraudService, cards GiftCardRedeemer, redemptions RedemptionStore, alerts fraud.AlertSink, logger *slog.Logger) *RedemptionHandler {
	return &RedemptionHandler{
		fraudService: fraudService,
		cards:        cards,
		redemptions:  redemptions,
		alerts:       alerts,
		audit:        pkglogger.NewAuditLogger(logger),
		logger:       logger,
	}
}

type redemptionResponse struct {
	Success     bool      `json:"success"`
	GAN         string    `json:"gan"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	RedeemedAt  time.Time `json:"redeemed_at"`
}

type fraudCheckResponse struct {
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason,omitempty"`
	RiskLevel string `json:"risk_level"`
}

type blockedResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
	RiskLevel string `json:"risk_level"`
}

// redemptionParams carries the business fields of a redemption request.
// The payload itself is validated structurally by the guard chain.
type redemptionParams struct {
	MerchantID  string `validate:"omitempty,max=64"`
	AmountCents int64  `validate:"gte=0"`
}

// Redeem handles POST /api/v1/redemptions
func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	req := middleware.RedemptionFromContext(r)
	if req == nil {
		pkghttp.WriteInternalError(w, "redemption context missing")
		return
	}

	params := redemptionParams{MerchantID: req.MerchantID, AmountCents: req.AmountCents}
	if err := ValidateRequest(params); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result := h.fraudService.CheckRedemptionFraud(r.Context(), req.Context)
	if result.Blocked {
		h.recordAttempt(r.Context(), req, false, result.Reason)
		h.audit.LogRedemptionAttempt(pkglogger.AuditEvent{
			EventType:  "redemption_blocked",
			GAN:        req.GAN,
			MerchantID: req.MerchantID,
			IPAddress:  req.Context.IPAddress,
			UserAgent:  req.Context.UserAgent,
			Reason:     result.Reason,
		})
		h.alerts.Emit(models.FraudAlert{
			Type:       models.AlertTypeRedemptionBlocked,
			IPAddress:  req.Context.IPAddress,
			MerchantID: req.MerchantID,
			GAN:        req.GAN,
			Severity:   models.AlertSeverityHigh,
			Message:    "Redemption blocked: " + result.Reason,
			Timestamp:  time.Now().UTC(),
		})

		writeJSON(w, http.StatusForbidden, blockedResponse{
			Success:   false,
			Error:     "Redemption blocked by fraud checks.",
			Code:      CodeRedemptionBlocked,
			Reason:    result.Reason,
			RiskLevel: result.RiskLevel,
		})
		return
	}

	if err := h.cards.MarkRedeemed(r.Context(), req.GAN); err != nil {
		if errors.Is(err, models.ErrCardAlreadyRedeemed) {
			// Lost the race against a concurrent redemption of the same card
			h.recordAttempt(r.Context(), req, false, "Replay attack: gift card already redeemed")
			h.fraudService.LogReplayAttempt(r.Context(), req.Context)
			writeJSON(w, http.StatusConflict, blockedResponse{
				Success: false,
				Error:   "This gift card has already been redeemed.",
				Code:    middleware.CodeAlreadyRedeemed,
			})
			return
		}
		h.logger.Error("failed to mark card redeemed",
			slog.String("gan", req.GAN),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to redeem gift card")
		return
	}

	h.recordAttempt(r.Context(), req, true, "")
	h.audit.LogRedemptionAttempt(pkglogger.AuditEvent{
		EventType:  "redemption_success",
		GAN:        req.GAN,
		MerchantID: req.MerchantID,
		IPAddress:  req.Context.IPAddress,
		UserAgent:  req.Context.UserAgent,
		Success:    true,
	})

	resp := redemptionResponse{
		Success:    true,
		GAN:        req.GAN,
		RedeemedAt: time.Now().UTC(),
	}
	if req.Card != nil {
		resp.AmountCents = req.Card.BalanceCents
	}
	writeJSON(w, http.StatusOK, resp)
}

// Check handles POST /api/v1/redemptions/check. It runs the ordered fraud
// checks without redeeming anything, so merchants can pre-screen a
// redemption.
func (h *RedemptionHandler) Check(w http.ResponseWriter, r *http.Request) {
	req := middleware.RedemptionFromContext(r)
	if req == nil {
		pkghttp.WriteInternalError(w, "redemption context missing")
		return
	}

	result := h.fraudService.CheckRedemptionFraud(r.Context(), req.Context)
	writeJSON(w, http.StatusOK, fraudCheckResponse{
		Blocked:   result.Blocked,
		Reason:    result.Reason,
		RiskLevel: result.RiskLevel,
	})
}

func (h *RedemptionHandler) recordAttempt(ctx context.Context, req *middleware.RedemptionRequest, success bool, failureReason string) {
	attempt := &models.CardRedemption{
		GAN:               req.GAN,
		AmountCents:       req.AmountCents,
		IPAddress:         req.Context.IPAddress,
		DeviceFingerprint: req.Context.DeviceFingerprint,
		UserAgent:         req.Context.UserAgent,
		Success:           success,
	}
	if req.Card != nil {
		attempt.CardID = &req.Card.ID
	}
	if req.MerchantID != "" {
		attempt.MerchantID = &req.MerchantID
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	if err := h.redemptions.RecordAttempt(ctx, attempt); err != nil {
		h.logger.Error("failed to record redemption attempt",
			slog.String("gan", req.GAN),
			slog.Any("error", err))
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
