package handlers

import (
	"context"
	"math"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/zatekoja/quizfunnel/internal/application/services"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
)

// maxTrackingBody caps the size of a tracking request body.
const maxTrackingBody = 64 << 10

// TrackingService defines the interface for step tracking
type TrackingService interface {
	Track(ctx context.Context, cmd *services.TrackCommand) (*services.TrackResult, error)
}

// TrackingHandler handles step updates from the quiz pages
type TrackingHandler struct {
	service TrackingService
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(service TrackingService) *TrackingHandler {
	return &TrackingHandler{service: service}
}

// TrackingRequest is the body of POST /api/tracking. Only sessionId is
// required; other fields are clipped rather than rejected.
type TrackingRequest struct {
	SessionID     string   `json:"sessionId" validate:"required"`
	Step          string   `json:"step"`
	IncomeRange   string   `json:"incomeRange"`
	EstimatedLoss *float64 `json:"estimatedLoss"`
	ClickedOffer  bool     `json:"clickedOffer"`
	UTMSource     string   `json:"utmSource"`
	UTMMedium     string   `json:"utmMedium"`
	UTMCampaign   string   `json:"utmCampaign"`
	EventID       string   `json:"eventId"`
	FBP           string   `json:"fbp"`
	FBC           string   `json:"fbc"`
	FBCLID        string   `json:"fbclid"`
	PageURL       string   `json:"pageUrl"`
	Source        string   `json:"source"`
	Language      string   `json:"language"`
}

// sanitize bounds free-text fields and drops a negative loss estimate.
func (req *TrackingRequest) sanitize() {
	req.Step = clip(req.Step, 64)
	req.IncomeRange = clip(req.IncomeRange, 64)
	req.UTMSource = clip(req.UTMSource, 255)
	req.UTMMedium = clip(req.UTMMedium, 255)
	req.UTMCampaign = clip(req.UTMCampaign, 255)
	req.EventID = clip(req.EventID, 255)
	req.FBP = clip(req.FBP, 512)
	req.FBC = clip(req.FBC, 512)
	req.FBCLID = clip(req.FBCLID, 512)
	req.PageURL = clip(req.PageURL, 2048)
	req.Source = clip(req.Source, 64)
	req.Language = clip(req.Language, 16)

	if req.EstimatedLoss != nil && (*req.EstimatedLoss < 0 || math.IsNaN(*req.EstimatedLoss)) {
		req.EstimatedLoss = nil
	}
}

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// TrackingResponse is returned on success. Pixel is the browser pixel call
// for the step, tagged with the event id forwarded server-side.
type TrackingResponse struct {
	Success bool                 `json:"success"`
	Session *entities.Session    `json:"session"`
	Pixel   *funnel.PixelCommand `json:"pixel,omitempty"`
}

// Track handles POST /api/tracking
func (h *TrackingHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTrackingBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)

	if msg := validateRequest(&req); msg != "" {
		respondWithError(w, http.StatusBadRequest, msg)
		return
	}
	req.sanitize()

	// Body values win; the page URL and cookies only fill gaps.
	body := funnel.Attribution{
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
		FBP:         req.FBP,
		FBC:         req.FBC,
		FBCLID:      req.FBCLID,
	}
	attribution := body.Or(funnel.CaptureAttribution(r, req.PageURL))

	cmd := &services.TrackCommand{
		Update: entities.SessionUpdate{
			SessionID:     req.SessionID,
			Step:          req.Step,
			IncomeRange:   req.IncomeRange,
			EstimatedLoss: req.EstimatedLoss,
			ClickedOffer:  req.ClickedOffer,
			UTMSource:     attribution.UTMSource,
			UTMMedium:     attribution.UTMMedium,
			UTMCampaign:   attribution.UTMCampaign,
			FBP:           attribution.FBP,
			FBC:           attribution.FBC,
			FBCLID:        attribution.FBCLID,
			UserAgent:     r.UserAgent(),
			Referrer:      r.Referer(),
		},
		EventID:  req.EventID,
		PageURL:  req.PageURL,
		ClientIP: funnel.ClientIP(r),
		Source:   req.Source,
		Language: req.Language,
	}

	result, err := h.service.Track(r.Context(), cmd)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, TrackingResponse{
		Success: true,
		Session: result.Session,
		Pixel:   result.Pixel,
	})
}
