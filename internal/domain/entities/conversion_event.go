package entities

import "time"

// ConversionEvent is one job on the outbound conversions queue.
// UserData holds raw values; hashing happens at send time.
type ConversionEvent struct {
	EventName      string         `json:"event_name"`
	EventID        string         `json:"event_id,omitempty"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	UserData       UserData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	// Origin names the code path that enqueued the job, for logs and metrics.
	Origin string `json:"origin,omitempty"`
}

// UserData carries the identity signals available for a conversion.
type UserData struct {
	ExternalID      string `json:"external_id,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	FBP             string `json:"fbp,omitempty"`
	FBC             string `json:"fbc,omitempty"`
	FBCLID          string `json:"fbclid,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
}

const (
	OriginTracking = "tracking"
	OriginWebhook  = "webhook"
)
