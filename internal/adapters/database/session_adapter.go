package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/zatekoja/quizfunnel/internal/domain/entities"
	"github.com/zatekoja/quizfunnel/internal/domain/repositories"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/clients/sqldb"
	"github.com/zatekoja/quizfunnel/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/quizfunnel/pkg/errors"
)

var sessionColumns = []any{
	"id", "session_id", "current_step", "income_range", "estimated_loss",
	"clicked_offer", "clicked_offer_at", "completed_at",
	"utm_source", "utm_medium", "utm_campaign", "fbp", "fbc", "fbclid",
	"user_agent", "referrer", "started_at", "last_active_at",
}

// SessionAdapter implements funnel session persistence
type SessionAdapter struct {
	client  *sqldb.Client
	db      *goqu.Database
	dbx     *sqlx.DB
	metrics *observability.Metrics
	now     func() time.Time
}

var _ repositories.SessionRepository = (*SessionAdapter)(nil)

// NewSessionAdapter creates a new session adapter. metrics may be nil.
func NewSessionAdapter(client *sqldb.Client, metrics *observability.Metrics) *SessionAdapter {
	return &SessionAdapter{
		client:  client,
		db:      goqu.New(client.Dialect(), client.DB()),
		dbx:     client.DBX(),
		metrics: metrics,
		now:     storeNow,
	}
}

// storeNow is truncated to what PostgreSQL keeps so values read back compare equal.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Upsert writes the update in one INSERT ... ON CONFLICT statement and reads
// the row back in the same transaction.
func (a *SessionAdapter) Upsert(ctx context.Context, u *entities.SessionUpdate) (*entities.Session, error) {
	if u == nil || strings.TrimSpace(u.SessionID) == "" {
		return nil, apperrors.NewValidationError("sessionId is required")
	}
	defer a.observe(ctx, "session_upsert", time.Now())

	query, args, err := a.buildUpsert(u, a.now())
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build session upsert query", err)
	}

	tx, err := a.dbx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to begin session upsert", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to upsert session", err)
	}

	session, err := a.getBySessionID(ctx, tx, u.SessionID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewInternalError("failed to commit session upsert", err)
	}
	return session, nil
}

func (a *SessionAdapter) buildUpsert(u *entities.SessionUpdate, now time.Time) (string, []any, error) {
	step := u.Step
	if step == "" {
		step = entities.DefaultStep
	}

	insert := goqu.Record{
		"id":             uuid.New().String(),
		"session_id":     u.SessionID,
		"current_step":   step,
		"clicked_offer":  u.ClickedOffer,
		"started_at":     now,
		"last_active_at": now,
	}
	update := goqu.Record{
		"last_active_at": now,
	}

	if u.Step != "" {
		update["current_step"] = u.Step
	}

	present := map[string]string{
		"income_range": u.IncomeRange,
		"utm_source":   u.UTMSource,
		"utm_medium":   u.UTMMedium,
		"utm_campaign": u.UTMCampaign,
		"fbp":          u.FBP,
		"fbc":          u.FBC,
		"fbclid":       u.FBCLID,
	}
	for column, value := range present {
		if value != "" {
			insert[column] = value
			update[column] = value
		}
	}

	if u.EstimatedLoss != nil {
		insert["estimated_loss"] = *u.EstimatedLoss
		update["estimated_loss"] = *u.EstimatedLoss
	}

	// Captured on the first call only.
	if u.UserAgent != "" {
		insert["user_agent"] = u.UserAgent
	}
	if u.Referrer != "" {
		insert["referrer"] = u.Referrer
	}

	if u.ClickedOffer {
		insert["clicked_offer_at"] = now
		update["clicked_offer"] = true
		update["clicked_offer_at"] = goqu.L("COALESCE("+sessionsTable+".clicked_offer_at, ?)", now)
	}
	if u.Completed {
		insert["completed_at"] = now
		update["completed_at"] = goqu.L("COALESCE("+sessionsTable+".completed_at, ?)", now)
	}

	return a.db.Insert(sessionsTable).
		Rows(insert).
		OnConflict(goqu.DoUpdate("session_id", update)).
		Prepared(true).
		ToSQL()
}

// GetBySessionID retrieves a session by its client id
func (a *SessionAdapter) GetBySessionID(ctx context.Context, sessionID string) (*entities.Session, error) {
	defer a.observe(ctx, "session_get", time.Now())
	return a.getBySessionID(ctx, a.dbx, sessionID)
}

func (a *SessionAdapter) getBySessionID(ctx context.Context, q sqlx.QueryerContext, sessionID string) (*entities.Session, error) {
	query, args, err := a.db.From(sessionsTable).
		Select(sessionColumns...).
		Where(goqu.C("session_id").Eq(sessionID)).
		Limit(1).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build session query", err)
	}
	return a.getOne(ctx, q, query, args, "session not found")
}

// FindLatestClickedOffer returns the session with the most recent offer click
func (a *SessionAdapter) FindLatestClickedOffer(ctx context.Context) (*entities.Session, error) {
	defer a.observe(ctx, "session_latest_click", time.Now())

	query, args, err := a.db.From(sessionsTable).
		Select(sessionColumns...).
		Where(goqu.C("clicked_offer").IsTrue()).
		Order(goqu.C("clicked_offer_at").Desc().NullsLast(), goqu.C("started_at").Desc()).
		Limit(1).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build latest clicked session query", err)
	}
	return a.getOne(ctx, a.dbx, query, args, "no session clicked the offer")
}

func (a *SessionAdapter) getOne(ctx context.Context, q sqlx.QueryerContext, query string, args []any, notFound string) (*entities.Session, error) {
	session := &entities.Session{}
	if err := sqlx.GetContext(ctx, q, session, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(notFound)
		}
		return nil, apperrors.NewInternalError("failed to get session", err)
	}
	normalizeTimes(session)
	return session, nil
}

// normalizeTimes reports every timestamp in UTC regardless of driver.
func normalizeTimes(s *entities.Session) {
	s.StartedAt = s.StartedAt.UTC()
	s.LastActiveAt = s.LastActiveAt.UTC()
	if s.ClickedOfferAt != nil {
		t := s.ClickedOfferAt.UTC()
		s.ClickedOfferAt = &t
	}
	if s.CompletedAt != nil {
		t := s.CompletedAt.UTC()
		s.CompletedAt = &t
	}
}

func (a *SessionAdapter) observe(ctx context.Context, operation string, start time.Time) {
	observability.RecordDBMetric(ctx, a.metrics, operation, time.Since(start))
}
