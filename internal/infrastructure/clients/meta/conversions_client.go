package meta

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/providers"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
	"github.com/zatekoja/quizfunnel/pkg/config"
	apperrors "github.com/zatekoja/quizfunnel/pkg/errors"
)

// ActionSourceWebsite is the action_source of every event sent by this service.
const ActionSourceWebsite = "website"

// ConversionsClient sends server events to the Meta Conversions API
type ConversionsClient struct {
	pixelID       string
	accessToken   string
	testEventCode string
	apiVersion    string
	baseURL       string
	httpClient    *http.Client
	now           func() time.Time
}

var _ providers.ConversionsSender = (*ConversionsClient)(nil)

// NewConversionsClient creates a client. Missing credentials are allowed and
// turn Send into a logged no-op.
func NewConversionsClient(cfg *config.MetaConfig) *ConversionsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ConversionsClient{
		pixelID:       cfg.PixelID,
		accessToken:   cfg.AccessToken,
		testEventCode: cfg.TestEventCode,
		apiVersion:    cfg.APIVersion,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Configured reports whether both the pixel id and the access token are set.
func (c *ConversionsClient) Configured() bool {
	return c.pixelID != "" && c.accessToken != ""
}

// EventsRequest is the body of POST /{pixel_id}/events
type EventsRequest struct {
	Data          []ServerEvent `json:"data"`
	AccessToken   string        `json:"access_token"`
	TestEventCode string        `json:"test_event_code,omitempty"`
}

// ServerEvent is one event record
type ServerEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id,omitempty"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	ActionSource   string         `json:"action_source"`
	UserData       UserData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

// UserData holds hashed personal identifiers and raw browser identifiers
type UserData struct {
	ExternalID      []string `json:"external_id,omitempty"`
	Email           []string `json:"em,omitempty"`
	Phone           []string `json:"ph,omitempty"`
	FBP             string   `json:"fbp,omitempty"`
	FBC             string   `json:"fbc,omitempty"`
	ClientIPAddress string   `json:"client_ip_address,omitempty"`
	ClientUserAgent string   `json:"client_user_agent,omitempty"`
}

// EventsResponse is the API answer on success
type EventsResponse struct {
	EventsReceived int      `json:"events_received"`
	Messages       []string `json:"messages"`
	FBTraceID      string   `json:"fbtrace_id"`
}

// Send posts one event. It makes exactly one attempt.
func (c *ConversionsClient) Send(ctx context.Context, event *entities.ConversionEvent) error {
	logger := observability.LoggerFromContext(ctx)
	if !c.Configured() {
		logger.Warn().Str("event_name", event.EventName).Msg("Conversions API not configured, skipping event")
		return nil
	}

	body, err := json.Marshal(c.BuildRequest(event))
	if err != nil {
		return fmt.Errorf("failed to marshal conversions request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/events", c.baseURL, c.apiVersion, c.pixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewExternalError("conversions API request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewExternalError(
			fmt.Sprintf("conversions API error (status %d)", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(respBody))),
		)
	}

	var result EventsResponse
	if err := json.Unmarshal(respBody, &result); err == nil {
		logger.Debug().
			Str("event_name", event.EventName).
			Str("event_id", event.EventID).
			Int("events_received", result.EventsReceived).
			Str("fbtrace_id", result.FBTraceID).
			Msg("Conversions API event sent")
	}
	return nil
}

// BuildRequest normalizes event into the wire format.
func (c *ConversionsClient) BuildRequest(event *entities.ConversionEvent) *EventsRequest {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = c.now()
	}

	ud := event.UserData
	userData := UserData{
		FBP:             ud.FBP,
		FBC:             ud.FBC,
		ClientIPAddress: ud.ClientIPAddress,
		ClientUserAgent: ud.ClientUserAgent,
	}
	if userData.FBC == "" && ud.FBCLID != "" {
		userData.FBC = ClickCookie(ud.FBCLID, occurred)
	}
	if h := HashIdentifier(ud.ExternalID); h != "" {
		userData.ExternalID = []string{h}
	}
	if h := HashIdentifier(ud.Email); h != "" {
		userData.Email = []string{h}
	}
	if h := HashPhone(ud.Phone); h != "" {
		userData.Phone = []string{h}
	}

	var customData map[string]any
	if len(event.CustomData) > 0 {
		customData = event.CustomData
	}

	return &EventsRequest{
		Data: []ServerEvent{{
			EventName:      event.EventName,
			EventTime:      occurred.Unix(),
			EventID:        event.EventID,
			EventSourceURL: event.EventSourceURL,
			ActionSource:   ActionSourceWebsite,
			UserData:       userData,
			CustomData:     customData,
		}},
		AccessToken:   c.accessToken,
		TestEventCode: c.testEventCode,
	}
}

// HashIdentifier returns the hex SHA-256 of the trimmed, lowercased value,
// or "" for blank input.
func HashIdentifier(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// HashPhone hashes the digits of a phone number.
func HashPhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return HashIdentifier(digits.String())
}

// ClickCookie builds an _fbc value from a click id: fb.1.<unixMillis>.<fbclid>.
func ClickCookie(fbclid string, at time.Time) string {
	return "fb.1." + strconv.FormatInt(at.UnixMilli(), 10) + "." + fbclid
}
