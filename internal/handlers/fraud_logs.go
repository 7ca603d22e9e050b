package handlers

import (
	"net/http"
	"strconv"

	"github.com/BradenHooton/cardguard/internal/services"
	pkghttp "github.com/BradenHooton/cardguard/pkg/http"
)

// FraudLogHandler serves the fraud dashboard endpoints.
type FraudLogHandler struct {
	fraudService *services.FraudService
}

// NewFraudLogHandler creates a new FraudLogHandler
func NewFraudLogHandler(fraudService *services.FraudService) *FraudLogHandler {
	return &FraudLogHandler{fraudService: fraudService}
}

// GetLogs handles GET /api/v1/fraud/logs
// Accepts optional query param ?limit=N (1-100, default 50).
func (h *FraudLogHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			pkghttp.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	logs, err := h.fraudService.GetRecentFraudLogs(r.Context(), limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve fraud logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetStats handles GET /api/v1/fraud/stats
func (h *FraudLogHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.fraudService.GetFraudStatistics(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to retrieve fraud statistics")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
