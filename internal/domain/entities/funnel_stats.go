package entities

import "time"

// FunnelStats is the admin dashboard payload.
type FunnelStats struct {
	Period             StatsPeriod      `json:"period"`
	Overview           StatsOverview    `json:"overview"`
	Funnel             map[string]int64 `json:"funnel"`
	IncomeDistribution []IncomeBucket   `json:"incomeDistribution"`
	DailyStats         []DailyCount     `json:"dailyStats"`
}

// StatsPeriod describes the lookback window.
type StatsPeriod struct {
	Days      int       `json:"days"`
	StartDate time.Time `json:"startDate"`
}

// StatsOverview holds the headline numbers. Rates are preformatted percentages.
type StatsOverview struct {
	TotalSessions    int64   `json:"totalSessions"`
	OfferClicks      int64   `json:"offerClicks"`
	ConversionRate   string  `json:"conversionRate"`
	CompletionRate   string  `json:"completionRate"`
	AvgEstimatedLoss float64 `json:"avgEstimatedLoss"`
}

// IncomeBucket counts sessions per answered income range.
type IncomeBucket struct {
	Range string `json:"range" db:"income_range"`
	Count int64  `json:"count" db:"count"`
}

// DailyCount is the number of sessions started on one UTC day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// StatsFilter narrows a session count. Zero values do not filter.
type StatsFilter struct {
	StartedFrom   time.Time
	StartedBefore time.Time
	Steps         []string
	ClickedOffer  bool
}
