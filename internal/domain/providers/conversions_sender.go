package providers

import (
	"context"

	"github.com/zatekoja/quizfunnel/internal/domain/entities"
)

// ConversionsSender delivers one event to the ad platform's server-side API.
type ConversionsSender interface {
	Send(ctx context.Context, event *entities.ConversionEvent) error
}
