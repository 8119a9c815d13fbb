package handlers

import (
	"net/http"
)

// PublicConfig lists the analytics ids the browser needs.
type PublicConfig struct {
	PixelID         string `json:"pixelId"`
	GAMeasurementID string `json:"gaMeasurementId"`
}

// ConfigHandler serves browser-facing configuration
type ConfigHandler struct {
	cfg PublicConfig
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg PublicConfig) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetConfig handles GET /api/config
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	respondWithJSON(w, http.StatusOK, h.cfg)
}
