package store

import (
	"context"
	"sync"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// MemoryStore is an in-process Store used when Redis is not configured and in
// tests. Values are copied on the way in and out so callers cannot mutate
// stored state behind the store's back.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]*domain.LeadProfile
	lastCalls map[string]time.Time
	sessions  map[string]domain.ChatSession
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]*domain.LeadProfile),
		lastCalls: make(map[string]time.Time),
		sessions:  make(map[string]domain.ChatSession),
	}
}

func (s *MemoryStore) SaveProfile(_ context.Context, visitorID string, lead *domain.LeadProfile) error {
	stored := &domain.LeadProfile{}
	if err := copier.Copy(stored, lead); err != nil {
		return err
	}

	s.mu.Lock()
	s.profiles[visitorID] = stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, visitorID string) (*domain.LeadProfile, error) {
	s.mu.RLock()
	stored, ok := s.profiles[visitorID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	lead := &domain.LeadProfile{}
	if err := copier.Copy(lead, stored); err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *MemoryStore) SetLastCallTime(_ context.Context, visitorID string, t time.Time) error {
	s.mu.Lock()
	s.lastCalls[visitorID] = t
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetLastCallTime(_ context.Context, visitorID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCalls[visitorID], nil
}

func (s *MemoryStore) ChatSessionID(_ context.Context, visitorID string) (domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[visitorID]; ok {
		return session, nil
	}

	session := domain.ChatSession{
		SessionID: uuid.New().String(),
		CreatedAt: time.Now(),
	}
	s.sessions[visitorID] = session
	return session, nil
}
