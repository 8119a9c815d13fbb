package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/zatekoja/quizfunnel/internal/application/services"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
)

// AdminKeyHeader carries the admin key when it is not in the query.
const AdminKeyHeader = "x-admin-key"

// StatsService defines the interface for the admin dashboard
type StatsService interface {
	Compute(ctx context.Context, days int) (*entities.FunnelStats, error)
}

// AdminStatsHandler serves the funnel dashboard
type AdminStatsHandler struct {
	service StatsService
	key     string
}

// NewAdminStatsHandler creates a new admin stats handler. An empty key
// rejects every request.
func NewAdminStatsHandler(service StatsService, key string) *AdminStatsHandler {
	return &AdminStatsHandler{service: service, key: key}
}

// GetStats handles GET /api/admin/stats
func (h *AdminStatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	stats, err := h.service.Compute(r.Context(), parseDays(r.URL.Query().Get("days")))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *AdminStatsHandler) authorized(r *http.Request) bool {
	if h.key == "" {
		return false
	}
	provided := r.URL.Query().Get("key")
	if provided == "" {
		provided = r.Header.Get(AdminKeyHeader)
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.key)) == 1
}

// parseDays falls back to the default window for missing, non-numeric or
// non-positive values.
func parseDays(raw string) int {
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 {
		return services.DefaultStatsDays
	}
	return days
}
