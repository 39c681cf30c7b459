package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/store"
	"github.com/NexaFlowAI/voice-widget-service/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatBackend struct {
	mu       sync.Mutex
	requests []webhook.ChatMessageRequest
	reply    string
	status   int
}

func (b *chatBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req webhook.ChatMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.requests = append(b.requests, req)
		b.mu.Unlock()

		if b.status != 0 {
			w.WriteHeader(b.status)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": b.reply})
	}
}

func (b *chatBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func newTestService(t *testing.T, backend *chatBackend, perMinute int) *Service {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	client := webhook.NewClient(webhook.Endpoints{Chatbot: srv.URL}, time.Second)
	return NewService(store.NewMemoryStore(), client, perMinute)
}

func TestSendRelaysWithDurableSession(t *testing.T) {
	backend := &chatBackend{reply: "Hello! How can I help?"}
	svc := newTestService(t, backend, 20)
	ctx := context.Background()

	first, err := svc.Send(ctx, "v1", "Hi there")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", first.Message)
	assert.False(t, first.Throttled)
	assert.NotEmpty(t, first.SessionID)

	second, err := svc.Send(ctx, "v1", "Tell me about pricing")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID, "same visitor keeps one session")

	other, err := svc.Send(ctx, "v2", "Hi")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, other.SessionID)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.requests, 3)
	assert.Equal(t, "Hi there", backend.requests[0].Message)
	assert.Equal(t, first.SessionID, backend.requests[0].SessionID)
}

func TestSendThrottlesWithFriendlyReply(t *testing.T) {
	backend := &chatBackend{reply: "ok"}
	// burst of 2, then ~1 token every 30s
	svc := newTestService(t, backend, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		reply, err := svc.Send(ctx, "v1", "spam")
		require.NoError(t, err)
		assert.False(t, reply.Throttled)
	}

	reply, err := svc.Send(ctx, "v1", "spam")
	require.NoError(t, err, "throttling is a reply, not an error")
	assert.True(t, reply.Throttled)
	assert.Equal(t, BusyMessage, reply.Message)
	assert.Equal(t, 2, backend.count(), "throttled messages never reach the webhook")

	// Other visitors are unaffected
	other, err := svc.Send(ctx, "v2", "Hi")
	require.NoError(t, err)
	assert.False(t, other.Throttled)
}

func TestSendEmptyMessage(t *testing.T) {
	svc := newTestService(t, &chatBackend{reply: "ok"}, 20)

	_, err := svc.Send(context.Background(), "v1", "")
	require.Error(t, err)
}

func TestSendWebhookFailure(t *testing.T) {
	backend := &chatBackend{status: http.StatusBadGateway}
	svc := newTestService(t, backend, 20)

	_, err := svc.Send(context.Background(), "v1", "Hi")
	require.Error(t, err)
}

func TestReleaseVisitorResetsBucket(t *testing.T) {
	backend := &chatBackend{reply: "ok"}
	svc := newTestService(t, backend, 1)
	ctx := context.Background()

	_, err := svc.Send(ctx, "v1", "one")
	require.NoError(t, err)

	reply, err := svc.Send(ctx, "v1", "two")
	require.NoError(t, err)
	require.True(t, reply.Throttled)

	svc.ReleaseVisitor("v1")

	reply, err = svc.Send(ctx, "v1", "three")
	require.NoError(t, err)
	assert.False(t, reply.Throttled, "a fresh bucket after release")
}
