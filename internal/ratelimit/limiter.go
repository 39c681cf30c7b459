// Package ratelimit gates call initiation behind a fixed cool-down window.
// The decision is made entirely from the visitor store; there is deliberately
// no server-side eligibility round-trip. A cleared store or skewed clock
// resets the limiter to "allowed", which is an accepted limitation.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/NexaFlowAI/voice-widget-service/internal/store"
	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"go.uber.org/zap"
)

// DefaultWindow is the cool-down between calls
const DefaultWindow = 60 * time.Minute

// Decision is the outcome of a rate-limit check
type Decision struct {
	Allowed          bool   `json:"allowed"`
	Message          string `json:"message,omitempty"`
	MinutesRemaining int    `json:"minutes_remaining,omitempty"`
}

// Limiter checks the last-call timestamp against the cool-down window
type Limiter struct {
	store  store.Store
	window time.Duration

	// now is swappable for tests
	now func() time.Time
}

// NewLimiter creates a limiter over the given store. A non-positive window
// falls back to DefaultWindow.
func NewLimiter(s store.Store, window time.Duration) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: s, window: window, now: time.Now}
}

// Check is read-only: the caller records the new last-call timestamp only
// after a call is actually initiated. The lead is accepted for a potential
// future server-side check but does not influence the decision.
func (l *Limiter) Check(ctx context.Context, visitorID string, _ *domain.LeadProfile) (Decision, error) {
	lastCall, err := l.store.GetLastCallTime(ctx, visitorID)
	if err != nil {
		// A broken store must not lock visitors out of calling
		logger.Base().Warn("failed to read last-call time, allowing call",
			zap.String("visitor_id", visitorID), zap.Error(err))
		return Decision{Allowed: true}, nil
	}

	if lastCall.IsZero() {
		return Decision{Allowed: true}, nil
	}

	elapsed := l.now().Sub(lastCall)
	if elapsed >= l.window {
		return Decision{Allowed: true}, nil
	}

	remaining := int(math.Ceil((l.window - elapsed).Minutes()))
	return Decision{
		Allowed:          false,
		MinutesRemaining: remaining,
		Message:          waitMessage(remaining),
	}, nil
}

func waitMessage(minutes int) string {
	if minutes == 1 {
		return "Please wait 1 more minute before starting another call."
	}
	return fmt.Sprintf("Please wait %d more minutes before starting another call.", minutes)
}
