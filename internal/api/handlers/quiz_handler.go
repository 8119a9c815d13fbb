package handlers

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
)

// QuizHandler exposes the loss score so every page computes it the same way
type QuizHandler struct{}

// NewQuizHandler creates a new quiz handler
func NewQuizHandler() *QuizHandler {
	return &QuizHandler{}
}

// EstimateRequest is the body of POST /api/quiz/estimate.
type EstimateRequest struct {
	Locale      string    `json:"locale" validate:"required,oneof=pt es"`
	IncomeIndex *int      `json:"incomeIndex" validate:"required,min=0"`
	Multipliers []float64 `json:"multipliers" validate:"max=16,dive,gte=0"`
}

// EstimateResponse carries the score and its ceiling for the chosen range.
type EstimateResponse struct {
	EstimatedLoss float64 `json:"estimatedLoss"`
	MaxValue      float64 `json:"maxValue"`
}

// Estimate handles POST /api/quiz/estimate
func (h *QuizHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if msg := validateRequest(&req); msg != "" {
		respondWithError(w, http.StatusBadRequest, msg)
		return
	}

	ranges, _ := funnel.IncomeRangesFor(req.Locale)
	if *req.IncomeIndex >= len(ranges) {
		respondWithError(w, http.StatusBadRequest, "incomeIndex is out of range")
		return
	}

	respondWithJSON(w, http.StatusOK, EstimateResponse{
		EstimatedLoss: funnel.CalculateEstimatedValue(ranges, *req.IncomeIndex, req.Multipliers),
		MaxValue:      funnel.MaxValue(ranges, *req.IncomeIndex),
	})
}
