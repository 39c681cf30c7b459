package store

import (
	"context"
	"testing"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreProfileRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.GetProfile(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, got, "absent profile is not an error")

	lead := &domain.LeadProfile{Name: "Ada", Email: "ada@example.com", Consent: true}
	require.NoError(t, s.SaveProfile(ctx, "v1", lead))

	got, err = s.GetProfile(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.Name)

	// Mutating the returned copy must not leak back into the store
	got.Name = "Mallory"
	again, err := s.GetProfile(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)
}

func TestMemoryStoreProfileOverwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveProfile(ctx, "v1", &domain.LeadProfile{Name: "First", Email: "a@b.c"}))
	require.NoError(t, s.SaveProfile(ctx, "v1", &domain.LeadProfile{Name: "Second", Email: "d@e.f"}))

	got, err := s.GetProfile(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Name)
	assert.Equal(t, "d@e.f", got.Email)
}

func TestMemoryStoreLastCallTime(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ts, err := s.GetLastCallTime(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, ts.IsZero(), "absent timestamp is the zero time")

	now := time.Now()
	require.NoError(t, s.SetLastCallTime(ctx, "v1", now))

	ts, err = s.GetLastCallTime(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, now, ts)
}

func TestMemoryStoreChatSessionIsDurable(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.ChatSessionID(ctx, "v1")
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID)
	require.False(t, first.CreatedAt.IsZero())

	second, err := s.ChatSessionID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "chat session is minted once and immutable")

	other, err := s.ChatSessionID(ctx, "v2")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, other.SessionID)
}
