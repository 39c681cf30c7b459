// Package store persists per-visitor widget state: the lead profile, the
// last-call timestamp used by the rate limiter, and the durable chat session
// id. It is the service-side stand-in for the browser's local key-value
// store, so absence of a value is never an error.
package store

import (
	"context"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
)

// Store is the visitor state store
type Store interface {
	// SaveProfile writes the lead profile for a visitor, replacing any
	// previous value.
	SaveProfile(ctx context.Context, visitorID string, lead *domain.LeadProfile) error

	// GetProfile returns the stored profile, or (nil, nil) when the visitor
	// has none.
	GetProfile(ctx context.Context, visitorID string) (*domain.LeadProfile, error)

	// SetLastCallTime records when a call was last initiated.
	SetLastCallTime(ctx context.Context, visitorID string, t time.Time) error

	// GetLastCallTime returns the last-call timestamp, or the zero time when
	// none is recorded.
	GetLastCallTime(ctx context.Context, visitorID string) (time.Time, error)

	// ChatSessionID returns the visitor's durable chat session, minting it on
	// first use. Once minted it is immutable.
	ChatSessionID(ctx context.Context, visitorID string) (domain.ChatSession, error)
}
