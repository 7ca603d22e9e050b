package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/cardguard/internal/models"
	pkghttp "github.com/BradenHooton/cardguard/pkg/http"
)

// GiftCardStore is the lookup surface for the card status endpoint.
type GiftCardStore interface {
	GetByGAN(ctx context.Context, gan string) (*models.GiftCard, error)
}

// RedemptionHistoryStore lists recent redemption attempts for a card.
type RedemptionHistoryStore interface {
	GetRecentForGAN(ctx context.Context, gan string, limit int) ([]*models.CardRedemption, error)
}

// CardHandler serves gift card status lookups for the dashboard.
type CardHandler struct {
	cards    GiftCardStore
	attempts RedemptionHistoryStore
}

// NewCardHandler creates a new CardHandler
func NewCardHandler(cards GiftCardStore, attempts RedemptionHistoryStore) *CardHandler {
	return &CardHandler{cards: cards, attempts: attempts}
}

type cardStatusResponse struct {
	GAN          string `json:"gan"`
	Status       string `json:"status"`
	Redeemed     bool   `json:"redeemed"`
	BalanceCents int64  `json:"balance_cents"`
}

// GetByGAN handles GET /api/v1/cards/{gan}
func (h *CardHandler) GetByGAN(w http.ResponseWriter, r *http.Request) {
	gan := chi.URLParam(r, "gan")
	if gan == "" {
		pkghttp.WriteBadRequest(w, "gan is required")
		return
	}

	card, err := h.cards.GetByGAN(r.Context(), gan)
	if err != nil {
		if errors.Is(err, models.ErrCardNotFound) {
			pkghttp.WriteNotFound(w, "gift card not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to retrieve gift card")
		return
	}

	writeJSON(w, http.StatusOK, cardStatusResponse{
		GAN:          card.GAN,
		Status:       card.Status,
		Redeemed:     card.Redeemed,
		BalanceCents: card.BalanceCents,
	})
}

// GetRedemptions handles GET /api/v1/cards/{gan}/redemptions. It returns
// the most recent redemption attempts for a card, failed ones included, so
// an analyst can see who has been hammering it.
func (h *CardHandler) GetRedemptions(w http.ResponseWriter, r *http.Request) {
	gan := chi.URLParam(r, "gan")
	if gan == "" {
		pkghttp.WriteBadRequest(w, "gan is required")
		return
	}

	if _, err := h.cards.GetByGAN(r.Context(), gan); err != nil {
		if errors.Is(err, models.ErrCardNotFound) {
			pkghttp.WriteNotFound(w, "gift card not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to retrieve gift card")
		return
	}

	attempts, err := h.attempts.GetRecentForGAN(r.Context(), gan, 50)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve redemption attempts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attempts": attempts,
		"count":    len(attempts),
	})
}
