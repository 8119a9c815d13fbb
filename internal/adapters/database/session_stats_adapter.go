package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/repositories"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/clients/sqldb"
	apperrors "github.com/zatekoja/quizfunnel/pkg/errors"
)

// SessionStatsAdapter runs the admin aggregate queries.
type SessionStatsAdapter struct {
	db  *goqu.Database
	dbx *sqlx.DB
}

var _ repositories.SessionStatsRepository = (*SessionStatsAdapter)(nil)

// NewSessionStatsAdapter creates a new stats adapter.
func NewSessionStatsAdapter(client *sqldb.Client) *SessionStatsAdapter {
	return &SessionStatsAdapter{
		db:  goqu.New(client.Dialect(), client.DB()),
		dbx: client.DBX(),
	}
}

// CountSessions counts sessions matching filter.
func (a *SessionStatsAdapter) CountSessions(ctx context.Context, filter entities.StatsFilter) (int64, error) {
	var conds []exp.Expression
	if !filter.StartedFrom.IsZero() {
		conds = append(conds, goqu.C("started_at").Gte(filter.StartedFrom.UTC()))
	}
	if !filter.StartedBefore.IsZero() {
		conds = append(conds, goqu.C("started_at").Lt(filter.StartedBefore.UTC()))
	}
	if len(filter.Steps) > 0 {
		conds = append(conds, goqu.C("current_step").In(filter.Steps))
	}
	if filter.ClickedOffer {
		conds = append(conds, goqu.C("clicked_offer").IsTrue())
	}

	query, args, err := a.db.From(sessionsTable).
		Select(goqu.COUNT(goqu.Star())).
		Where(conds...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build session count query", err)
	}

	var count int64
	if err := a.dbx.GetContext(ctx, &count, query, args...); err != nil {
		return 0, apperrors.NewInternalError("failed to count sessions", err)
	}
	return count, nil
}

// IncomeDistribution groups sessions that answered the income question.
func (a *SessionStatsAdapter) IncomeDistribution(ctx context.Context, since time.Time) ([]entities.IncomeBucket, error) {
	query, args, err := a.db.From(sessionsTable).
		Select(goqu.C("income_range"), goqu.COUNT(goqu.Star()).As("count")).
		Where(
			goqu.C("started_at").Gte(since.UTC()),
			goqu.C("income_range").IsNotNull(),
		).
		GroupBy(goqu.C("income_range")).
		Order(goqu.I("count").Desc(), goqu.C("income_range").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build income distribution query", err)
	}

	buckets := []entities.IncomeBucket{}
	if err := a.dbx.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to get income distribution", err)
	}
	return buckets, nil
}

// AverageEstimatedLoss averages the non-null estimated losses; 0 when none.
func (a *SessionStatsAdapter) AverageEstimatedLoss(ctx context.Context, since time.Time) (float64, error) {
	query, args, err := a.db.From(sessionsTable).
		Select(goqu.AVG("estimated_loss")).
		Where(
			goqu.C("started_at").Gte(since.UTC()),
			goqu.C("estimated_loss").IsNotNull(),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build average loss query", err)
	}

	var avg sql.NullFloat64
	if err := a.dbx.GetContext(ctx, &avg, query, args...); err != nil {
		return 0, apperrors.NewInternalError("failed to average estimated loss", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}
