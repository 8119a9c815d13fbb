package entities

import "time"

// DefaultStep is stored as current_step when a session is created without a step.
const DefaultStep = "landing"

// Session is the persisted funnel state of one visitor, keyed by SessionID.
// Only the latest step is kept.
type Session struct {
	ID             string     `json:"id" db:"id"`
	SessionID      string     `json:"sessionId" db:"session_id"`
	CurrentStep    string     `json:"currentStep" db:"current_step"`
	IncomeRange    *string    `json:"incomeRange" db:"income_range"`
	EstimatedLoss  *float64   `json:"estimatedLoss" db:"estimated_loss"`
	ClickedOffer   bool       `json:"clickedOffer" db:"clicked_offer"`
	ClickedOfferAt *time.Time `json:"clickedOfferAt" db:"clicked_offer_at"`
	CompletedAt    *time.Time `json:"completedAt" db:"completed_at"`
	UTMSource      *string    `json:"utmSource" db:"utm_source"`
	UTMMedium      *string    `json:"utmMedium" db:"utm_medium"`
	UTMCampaign    *string    `json:"utmCampaign" db:"utm_campaign"`
	FBP            *string    `json:"fbp" db:"fbp"`
	FBC            *string    `json:"fbc" db:"fbc"`
	FBCLID         *string    `json:"fbclid" db:"fbclid"`
	UserAgent      *string    `json:"userAgent" db:"user_agent"`
	Referrer       *string    `json:"referrer" db:"referrer"`
	StartedAt      time.Time  `json:"startedAt" db:"started_at"`
	LastActiveAt   time.Time  `json:"lastActiveAt" db:"last_active_at"`
}

// SessionUpdate is a partial write. Empty strings and nil pointers mean
// "not supplied" and leave the stored value alone.
type SessionUpdate struct {
	SessionID     string
	Step          string
	IncomeRange   string
	EstimatedLoss *float64
	ClickedOffer  bool
	// Completed marks the write as reaching the results or offer stage.
	Completed bool

	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	FBP         string
	FBC         string
	FBCLID      string

	// Only used when the session is created.
	UserAgent string
	Referrer  string
}

// StringValue dereferences an optional column.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
