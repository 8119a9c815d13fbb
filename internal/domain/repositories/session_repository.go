package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/quizfunnel/internal/domain/entities"
)

// SessionRepository defines the interface for funnel session persistence.
type SessionRepository interface {
	// Upsert creates the session on first contact and applies a partial
	// update afterwards. It returns the stored row.
	Upsert(ctx context.Context, update *entities.SessionUpdate) (*entities.Session, error)

	// GetBySessionID returns a NOT_FOUND AppError when no row matches.
	GetBySessionID(ctx context.Context, sessionID string) (*entities.Session, error)

	// FindLatestClickedOffer returns the session whose offer click is the
	// most recent, or NOT_FOUND.
	FindLatestClickedOffer(ctx context.Context) (*entities.Session, error)
}

// SessionStatsRepository defines the aggregate queries of the admin dashboard.
type SessionStatsRepository interface {
	CountSessions(ctx context.Context, filter entities.StatsFilter) (int64, error)
	IncomeDistribution(ctx context.Context, since time.Time) ([]entities.IncomeBucket, error)
	AverageEstimatedLoss(ctx context.Context, since time.Time) (float64, error)
}
