package services

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
	"github.com/zatekoja/quizfunnel/internal/domain/providers"
	"github.com/zatekoja/quizfunnel/internal/domain/repositories"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultStatsDays is the lookback used when none or an invalid one is given.
	DefaultStatsDays = 30
	dailySeriesDays  = 7
)

// StatsService computes the admin funnel dashboard.
type StatsService struct {
	stats    repositories.SessionStatsRepository
	cache    providers.CacheProvider
	cacheTTL time.Duration
	now      func() time.Time
}

// NewStatsService creates a new stats service. cache may be nil.
func NewStatsService(stats repositories.SessionStatsRepository, cache providers.CacheProvider, cacheTTL time.Duration) *StatsService {
	return &StatsService{
		stats:    stats,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Compute returns the dashboard for the last days days. Any query error
// fails the whole computation.
func (s *StatsService) Compute(ctx context.Context, days int) (*entities.FunnelStats, error) {
	if days < 1 {
		days = DefaultStatsDays
	}

	ctx, span := observability.StartSpan(ctx, "StatsService.Compute")
	defer span.End()

	cacheKey := fmt.Sprintf("admin:stats:%d", days)
	if cached := s.fromCache(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	now := s.now().UTC()
	since := now.AddDate(0, 0, -days)

	stats := &entities.FunnelStats{
		Period: entities.StatsPeriod{Days: days, StartDate: since},
		Funnel: make(map[string]int64),
	}

	var (
		total, clicks, completed int64
		avgLoss                  float64
		income                   []entities.IncomeBucket
	)

	stages := funnel.Sequence()
	funnelCounts := make([]int64, len(stages))
	daily := make([]entities.DailyCount, dailySeriesDays)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.stats.CountSessions(gctx, entities.StatsFilter{StartedFrom: since})
		return err
	})
	g.Go(func() error {
		var err error
		clicks, err = s.stats.CountSessions(gctx, entities.StatsFilter{StartedFrom: since, ClickedOffer: true})
		return err
	})
	g.Go(func() error {
		var err error
		completed, err = s.stats.CountSessions(gctx, entities.StatsFilter{
			StartedFrom: since,
			Steps:       funnel.StepsAtOrAfter(funnel.StageResults),
		})
		return err
	})
	g.Go(func() error {
		var err error
		avgLoss, err = s.stats.AverageEstimatedLoss(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		income, err = s.stats.IncomeDistribution(gctx, since)
		return err
	})
	for i, stage := range stages {
		g.Go(func() error {
			var err error
			funnelCounts[i], err = s.stats.CountSessions(gctx, entities.StatsFilter{
				StartedFrom: since,
				Steps:       funnel.StepsAtOrAfter(stage),
			})
			return err
		})
	}
	for i := 0; i < dailySeriesDays; i++ {
		day := today.AddDate(0, 0, i-(dailySeriesDays-1))
		g.Go(func() error {
			count, err := s.stats.CountSessions(gctx, entities.StatsFilter{
				StartedFrom:   day,
				StartedBefore: day.AddDate(0, 0, 1),
			})
			daily[i] = entities.DailyCount{Date: day.Format("2006-01-02"), Count: count}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	for i, stage := range stages {
		stats.Funnel[string(stage)] = funnelCounts[i]
	}
	if income == nil {
		income = []entities.IncomeBucket{}
	}

	stats.Overview = entities.StatsOverview{
		TotalSessions:    total,
		OfferClicks:      clicks,
		ConversionRate:   rate(clicks, total),
		CompletionRate:   rate(completed, total),
		AvgEstimatedLoss: avgLoss,
	}
	stats.IncomeDistribution = income
	stats.DailyStats = daily

	s.toCache(ctx, cacheKey, stats)
	return stats, nil
}

// rate formats part/total as a percentage with two decimals.
func rate(part, total int64) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(total)*100)
}

func (s *StatsService) fromCache(ctx context.Context, key string) *entities.FunnelStats {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	var stats entities.FunnelStats
	if err := json.Unmarshal(data, &stats); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("Discarding unreadable cached stats")
		return nil
	}
	return &stats
}

func (s *StatsService) toCache(ctx context.Context, key string, stats *entities.FunnelStats) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, int(s.cacheTTL.Seconds())); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("Failed to cache stats")
	}
}
