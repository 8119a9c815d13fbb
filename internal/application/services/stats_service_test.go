package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/quizfunnel/internal/adapters/cache"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
)

// fakeStats answers CountSessions from an in-memory session list.
type fakeStats struct {
	mu       sync.Mutex
	sessions []entities.Session
	err      error
	calls    int
}

func (f *fakeStats) CountSessions(_ context.Context, filter entities.StatsFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}

	var n int64
	for _, s := range f.sessions {
		if !filter.StartedFrom.IsZero() && s.StartedAt.Before(filter.StartedFrom) {
			continue
		}
		if !filter.StartedBefore.IsZero() && !s.StartedAt.Before(filter.StartedBefore) {
			continue
		}
		if filter.ClickedOffer && !s.ClickedOffer {
			continue
		}
		if len(filter.Steps) > 0 && !contains(filter.Steps, s.CurrentStep) {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeStats) IncomeDistribution(_ context.Context, since time.Time) ([]entities.IncomeBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int64{}
	for _, s := range f.sessions {
		if s.IncomeRange != nil && !s.StartedAt.Before(since) {
			counts[*s.IncomeRange]++
		}
	}
	var out []entities.IncomeBucket
	for r, c := range counts {
		out = append(out, entities.IncomeBucket{Range: r, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

func (f *fakeStats) AverageEstimatedLoss(_ context.Context, since time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum float64
	var n int
	for _, s := range f.sessions {
		if s.EstimatedLoss != nil && !s.StartedAt.Before(since) {
			sum += *s.EstimatedLoss
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func TestStatsService_Compute(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	income := "3000-5000"
	loss := func(v float64) *float64 { return &v }

	repo := &fakeStats{sessions: []entities.Session{
		{CurrentStep: "landing", StartedAt: now.Add(-time.Hour)},
		{CurrentStep: "q2", StartedAt: now.Add(-26 * time.Hour), IncomeRange: &income, EstimatedLoss: loss(100)},
		{CurrentStep: "es_q7", StartedAt: now.Add(-50 * time.Hour)},
		{CurrentStep: "results_es", StartedAt: now.Add(-2 * time.Hour), IncomeRange: &income, EstimatedLoss: loss(300)},
		{CurrentStep: "offer", ClickedOffer: true, StartedAt: now.Add(-3 * time.Hour)},
		{CurrentStep: "offer", ClickedOffer: true, StartedAt: now.AddDate(0, 0, -40)},
	}}

	service := NewStatsService(repo, nil, 0)
	service.now = func() time.Time { return now }

	stats, err := service.Compute(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 30, stats.Period.Days)
	assert.True(t, stats.Period.StartDate.Equal(now.AddDate(0, 0, -30)))

	assert.Equal(t, int64(5), stats.Overview.TotalSessions)
	assert.Equal(t, int64(1), stats.Overview.OfferClicks)
	assert.Equal(t, "20.00%", stats.Overview.ConversionRate)
	assert.Equal(t, "40.00%", stats.Overview.CompletionRate)
	assert.InDelta(t, 200.0, stats.Overview.AvgEstimatedLoss, 1e-9)

	assert.Equal(t, int64(5), stats.Funnel["landing"])
	assert.Equal(t, int64(4), stats.Funnel["q1"])
	assert.Equal(t, int64(4), stats.Funnel["q2"])
	assert.Equal(t, int64(3), stats.Funnel["q3"])
	assert.Equal(t, int64(3), stats.Funnel["q7"])
	assert.Equal(t, int64(2), stats.Funnel["results"])
	assert.Equal(t, int64(1), stats.Funnel["offer"])
	assert.Len(t, stats.Funnel, len(funnel.Sequence()))

	assert.Equal(t, []entities.IncomeBucket{{Range: income, Count: 2}}, stats.IncomeDistribution)

	require.Len(t, stats.DailyStats, 7)
	assert.Equal(t, "2026-03-04", stats.DailyStats[0].Date)
	assert.Equal(t, "2026-03-10", stats.DailyStats[6].Date)
	assert.Equal(t, int64(3), stats.DailyStats[6].Count)
	assert.Equal(t, int64(1), stats.DailyStats[5].Count)
	assert.Equal(t, int64(1), stats.DailyStats[4].Count)
}

func TestStatsService_EmptyWindow(t *testing.T) {
	service := NewStatsService(&fakeStats{}, nil, 0)

	stats, err := service.Compute(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultStatsDays, stats.Period.Days)
	assert.Equal(t, "0%", stats.Overview.ConversionRate)
	assert.Equal(t, "0%", stats.Overview.CompletionRate)
	assert.NotNil(t, stats.IncomeDistribution)
	assert.Len(t, stats.DailyStats, 7)
}

func TestStatsService_QueryErrorFailsWholeComputation(t *testing.T) {
	service := NewStatsService(&fakeStats{err: errors.New("connection refused")}, nil, 0)

	stats, err := service.Compute(context.Background(), 7)
	assert.Error(t, err)
	assert.Nil(t, stats)
}

func TestStatsService_CachesPayload(t *testing.T) {
	repo := &fakeStats{sessions: []entities.Session{{CurrentStep: "landing", StartedAt: time.Now().Add(-time.Minute)}}}
	service := NewStatsService(repo, cache.NewMemoryAdapter(), time.Minute)

	first, err := service.Compute(context.Background(), 30)
	require.NoError(t, err)
	callsAfterFirst := repo.calls

	second, err := service.Compute(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, repo.calls)
	assert.Equal(t, first.Overview, second.Overview)
	assert.True(t, strings.HasSuffix(second.Overview.ConversionRate, "%"))
}

func TestRate(t *testing.T) {
	assert.Equal(t, "0%", rate(3, 0))
	assert.Equal(t, "33.33%", rate(1, 3))
	assert.Equal(t, "100.00%", rate(4, 4))
}
