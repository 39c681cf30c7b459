// Package chat relays widget chat messages to the chatbot webhook, keyed by a
// durable per-visitor session id so the bot keeps conversational context
// across page loads.
package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/NexaFlowAI/voice-widget-service/internal/metrics"
	"github.com/NexaFlowAI/voice-widget-service/internal/store"
	"github.com/NexaFlowAI/voice-widget-service/internal/webhook"
	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BusyMessage is returned in place of a bot reply when a visitor sends
// messages faster than the per-minute allowance. It is a normal reply, not an
// error: the widget renders it inline like any other bot turn.
const BusyMessage = "You're sending messages a little fast. Give me a few seconds to catch up."

const defaultMessagesPerMinute = 20

// Service relays chat turns and throttles per visitor
type Service struct {
	store    store.Store
	webhooks *webhook.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func NewService(st store.Store, webhooks *webhook.Client, messagesPerMinute int) *Service {
	if messagesPerMinute <= 0 {
		messagesPerMinute = defaultMessagesPerMinute
	}
	return &Service{
		store:    st,
		webhooks: webhooks,
		limiters: make(map[string]*rate.Limiter),
		perMin:   messagesPerMinute,
	}
}

// Reply is one bot turn
type Reply struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Throttled bool   `json:"throttled"`
}

// Send relays one visitor message and returns the bot's reply. Throttled
// visitors get BusyMessage without the webhook being called.
func (s *Service) Send(ctx context.Context, visitorID, message string) (*Reply, error) {
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}

	session, err := s.store.ChatSessionID(ctx, visitorID)
	if err != nil {
		metrics.ChatMessages.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to resolve chat session: %w", err)
	}

	if !s.limiterFor(visitorID).Allow() {
		metrics.ChatMessages.WithLabelValues("throttled").Inc()
		logger.Base().Debug("chat message throttled",
			zap.String("visitor_id", visitorID),
			zap.String("session_id", session.SessionID))
		return &Reply{SessionID: session.SessionID, Message: BusyMessage, Throttled: true}, nil
	}

	reply, err := s.webhooks.SendChatMessage(ctx, message, session.SessionID)
	if err != nil {
		metrics.ChatMessages.WithLabelValues("error").Inc()
		logger.Base().Error("chatbot webhook failed",
			zap.String("visitor_id", visitorID), zap.Error(err))
		return nil, fmt.Errorf("failed to relay chat message: %w", err)
	}

	metrics.ChatMessages.WithLabelValues("ok").Inc()
	return &Reply{SessionID: session.SessionID, Message: reply}, nil
}

// limiterFor returns the visitor's token bucket, creating it on first use.
// Burst equals the per-minute allowance so a fresh visitor can send a short
// run of messages without tripping the limiter.
func (s *Service) limiterFor(visitorID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[visitorID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(s.perMin)/60.0), s.perMin)
		s.limiters[visitorID] = limiter
	}
	return limiter
}

// ReleaseVisitor drops the visitor's limiter state. Called by the same idle
// eviction pass that drops call flows.
func (s *Service) ReleaseVisitor(visitorID string) {
	s.mu.Lock()
	delete(s.limiters, visitorID)
	s.mu.Unlock()
}
