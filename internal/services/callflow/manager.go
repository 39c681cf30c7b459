package callflow

import (
	"context"
	"sync"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/store"
	"github.com/NexaFlowAI/voice-widget-service/internal/voice"
	"github.com/NexaFlowAI/voice-widget-service/internal/webhook"
	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"go.uber.org/zap"
)

// ClientFactory builds a fresh voice client for a visitor's flow. Each flow
// owns its client so event handler registration happens exactly once per
// flow, never per request.
type ClientFactory func() voice.Client

// Manager owns the visitor-to-flow registry
type Manager struct {
	cfg       FlowConfig
	store     store.Store
	webhooks  *webhook.Client
	newClient ClientFactory

	mu      sync.RWMutex
	flows   map[string]*Flow
	onEvict func(visitorID string)
}

// NewManager creates an empty registry
func NewManager(cfg FlowConfig, st store.Store, webhooks *webhook.Client, factory ClientFactory) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     st,
		webhooks:  webhooks,
		newClient: factory,
		flows:     make(map[string]*Flow),
	}
}

// OnEvict registers a callback invoked with each evicted visitor id, so
// sibling services holding per-visitor state (the chat throttle) can drop
// theirs in the same pass. Set before StartEvictionRoutine.
func (m *Manager) OnEvict(fn func(visitorID string)) {
	m.onEvict = fn
}

// GetFlow returns the visitor's flow, creating it on first use
func (m *Manager) GetFlow(visitorID string) *Flow {
	m.mu.RLock()
	flow, ok := m.flows[visitorID]
	m.mu.RUnlock()
	if ok {
		return flow
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if flow, ok := m.flows[visitorID]; ok {
		return flow
	}

	flow = NewFlow(visitorID, m.cfg, m.store, m.webhooks, m.newClient())
	m.flows[visitorID] = flow
	logger.Base().Info("created call flow", zap.String("visitor_id", visitorID))
	return flow
}

// FlowCount returns the number of live flows
func (m *Manager) FlowCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.flows)
}

// EvictIdleFlows drops flows with no activity for the given duration. Flows
// with an active call are never evicted regardless of age.
func (m *Manager) EvictIdleFlows(idleFor time.Duration) int {
	m.mu.Lock()
	now := time.Now()
	var evicted []string
	for id, flow := range m.flows {
		if flow.Active() {
			continue
		}
		if now.Sub(flow.LastActivity()) > idleFor {
			delete(m.flows, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	// Callback runs outside the lock; it may take its own locks.
	if m.onEvict != nil {
		for _, id := range evicted {
			m.onEvict(id)
		}
	}

	if len(evicted) > 0 {
		logger.Base().Info("evicted idle call flows", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

// StartEvictionRoutine runs EvictIdleFlows periodically until ctx is done
func (m *Manager) StartEvictionRoutine(ctx context.Context, checkInterval, idleTimeout time.Duration) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	logger.Base().Info("started flow eviction routine",
		zap.Duration("check_interval", checkInterval),
		zap.Duration("idle_timeout", idleTimeout))

	for {
		select {
		case <-ctx.Done():
			logger.Base().Info("flow eviction routine stopped")
			return
		case <-ticker.C:
			m.EvictIdleFlows(idleTimeout)
		}
	}
}
