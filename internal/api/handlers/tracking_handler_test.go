package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/quizfunnel/internal/api/handlers"
	"github.com/zatekoja/quizfunnel/internal/application/services"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
	apperrors "github.com/zatekoja/quizfunnel/pkg/errors"
)

// MockTrackingService defines the mock service
type MockTrackingService struct {
	mock.Mock
}

func (m *MockTrackingService) Track(ctx context.Context, cmd *services.TrackCommand) (*services.TrackResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TrackResult), args.Error(1)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestTrackingHandler_Track(t *testing.T) {
	t.Run("tracks a step and returns the session and pixel call", func(t *testing.T) {
		mockService := new(MockTrackingService)
		handler := handlers.NewTrackingHandler(mockService)

		desc := funnel.MapStep("results", funnel.Flags{}, funnel.Data{})
		mockService.On("Track", mock.Anything, mock.MatchedBy(func(cmd *services.TrackCommand) bool {
			return cmd.Update.SessionID == "sess_1" &&
				cmd.Update.Step == "results" &&
				cmd.Update.UTMSource == "body-source" &&
				cmd.Update.UTMCampaign == "from-url" &&
				cmd.Update.FBP == "fb.1.1.cookie" &&
				cmd.Update.UserAgent == "Mozilla/5.0" &&
				cmd.EventID == "sess_1_Lead_1" &&
				cmd.ClientIP == "203.0.113.7"
		})).Return(&services.TrackResult{
			Session: &entities.Session{SessionID: "sess_1", CurrentStep: "results"},
			Event:   desc,
			Pixel:   funnel.NewPixelCommand(desc, "sess_1_Lead_1"),
		}, nil)

		payload := map[string]interface{}{
			"sessionId": "sess_1",
			"step":      "results",
			"utmSource": "body-source",
			"eventId":   "sess_1_Lead_1",
			"pageUrl":   "https://quiz.example/results?utm_source=url-source&utm_campaign=from-url",
		}
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest("POST", "/api/tracking", bytes.NewBuffer(body))
		req.Header.Set("User-Agent", "Mozilla/5.0")
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		req.AddCookie(&http.Cookie{Name: funnel.CookieFBP, Value: "fb.1.1.cookie"})
		w := httptest.NewRecorder()

		handler.Track(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, true, resp["success"])
		session := resp["session"].(map[string]interface{})
		assert.Equal(t, "sess_1", session["sessionId"])
		pixel := resp["pixel"].(map[string]interface{})
		assert.Equal(t, "track", pixel["method"])
		assert.Equal(t, "Lead", pixel["event"])
		assert.Equal(t, "sess_1_Lead_1", pixel["options"].(map[string]interface{})["eventID"])
		mockService.AssertExpectations(t)
	})

	t.Run("missing session id is a bad request", func(t *testing.T) {
		for _, body := range []string{`{"step":"landing"}`, `{"sessionId":"   ","step":"landing"}`} {
			mockService := new(MockTrackingService)
			handler := handlers.NewTrackingHandler(mockService)

			req := httptest.NewRequest("POST", "/api/tracking", bytes.NewBufferString(body))
			w := httptest.NewRecorder()

			handler.Track(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "sessionId is required", decodeBody(t, w)["error"])
			mockService.AssertNotCalled(t, "Track", mock.Anything, mock.Anything)
		}
	})

	t.Run("oversized fields and negative loss are clipped, not rejected", func(t *testing.T) {
		mockService := new(MockTrackingService)
		handler := handlers.NewTrackingHandler(mockService)

		longStep := strings.Repeat("é", 100)
		mockService.On("Track", mock.Anything, mock.MatchedBy(func(cmd *services.TrackCommand) bool {
			return cmd.Update.SessionID == "sess_1" &&
				cmd.Update.Step == strings.Repeat("é", 64) &&
				cmd.Update.EstimatedLoss == nil &&
				len(cmd.Language) == 16
		})).Return(&services.TrackResult{Session: &entities.Session{SessionID: "sess_1"}}, nil)

		body := `{"sessionId":"sess_1","step":"` + longStep + `","estimatedLoss":-5,"language":"` + strings.Repeat("x", 40) + `"}`
		req := httptest.NewRequest("POST", "/api/tracking", bytes.NewBufferString(body))
		w := httptest.NewRecorder()

		handler.Track(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["success"])
		mockService.AssertExpectations(t)
	})

	t.Run("invalid json is a bad request", func(t *testing.T) {
		handler := handlers.NewTrackingHandler(new(MockTrackingService))

		req := httptest.NewRequest("POST", "/api/tracking", bytes.NewBufferString("invalid-json"))
		w := httptest.NewRecorder()

		handler.Track(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("persistence failure is a generic internal error", func(t *testing.T) {
		mockService := new(MockTrackingService)
		handler := handlers.NewTrackingHandler(mockService)

		mockService.On("Track", mock.Anything, mock.Anything).
			Return(nil, apperrors.NewInternalError("failed to upsert session", errors.New("pq: relation does not exist")))

		req := httptest.NewRequest("POST", "/api/tracking", bytes.NewBufferString(`{"sessionId":"sess_1","step":"q1"}`))
		w := httptest.NewRecorder()

		handler.Track(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Internal server error", decodeBody(t, w)["error"])
	})

	t.Run("untracked step has no pixel call", func(t *testing.T) {
		mockService := new(MockTrackingService)
		handler := handlers.NewTrackingHandler(mockService)

		mockService.On("Track", mock.Anything, mock.Anything).
			Return(&services.TrackResult{Session: &entities.Session{SessionID: "sess_1", CurrentStep: "thank_you"}}, nil)

		req := httptest.NewRequest("POST", "/api/tracking", bytes.NewBufferString(`{"sessionId":"sess_1","step":"thank_you"}`))
		w := httptest.NewRecorder()

		handler.Track(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		_, hasPixel := decodeBody(t, w)["pixel"]
		assert.False(t, hasPixel)
	})
}
