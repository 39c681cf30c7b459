package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/config"
	"github.com/NexaFlowAI/voice-widget-service/internal/services/callflow"
	"github.com/NexaFlowAI/voice-widget-service/internal/services/chat"
	"github.com/NexaFlowAI/voice-widget-service/internal/store"
	"github.com/NexaFlowAI/voice-widget-service/internal/voice"
	"github.com/NexaFlowAI/voice-widget-service/internal/webhook"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVoice struct{}

func (stubVoice) Start(context.Context, string, voice.CallMetadata) error { return nil }
func (stubVoice) Stop(context.Context) error                              { return nil }
func (stubVoice) SetMuted(bool) error                                     { return nil }
func (stubVoice) On(voice.EventType, voice.Handler)                       {}

func newTestRouter(t *testing.T, backend http.Handler) *mux.Router {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	endpoints := webhook.Endpoints{
		LookupUser:     srv.URL + "/lookup",
		SaveProfile:    srv.URL + "/profile",
		SaveCallRecord: srv.URL + "/call-record",
		Chatbot:        srv.URL + "/chat",
		ContactForm:    srv.URL + "/contact",
	}
	client := webhook.NewClient(endpoints, time.Second)
	st := store.NewMemoryStore()

	flows := callflow.NewManager(callflow.FlowConfig{
		AssistantID:     "assistant-1",
		CallSource:      "website_widget",
		RateLimitWindow: time.Hour,
	}, st, client, func() voice.Client { return stubVoice{} })
	chatSvc := chat.NewService(st, client, 20)

	router := mux.NewRouter()
	hm := NewHandlerManager(&config.Config{}, flows, chatSvc, client)
	hm.SetupAllRoutes(router)
	return router
}

func okBackend() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/lookup", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"found": true,
			"data":  map[string]string{"name": "Ada Lovelace", "email": "ada@example.com"},
		})
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": "Hi!"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {})
	return mux
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Visitor-ID", "visitor-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func validLeadBody() map[string]interface{} {
	return map[string]interface{}{
		"name":    "Ada Lovelace",
		"email":   "ada@example.com",
		"phone":   "+14155550101",
		"company": "Analytical Engines",
		"consent": true,
	}
}

func TestUpsertLeadValidation(t *testing.T) {
	router := newTestRouter(t, okBackend())

	rec := doJSON(t, router, "POST", "/api/leads", map[string]interface{}{
		"name":    "A",
		"email":   "not-an-email",
		"phone":   "abc",
		"consent": false,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "name")
	assert.Contains(t, resp.Errors, "email")
	assert.Contains(t, resp.Errors, "phone")
	assert.Contains(t, resp.Errors, "consent")
}

func TestUpsertAndGetLead(t *testing.T) {
	router := newTestRouter(t, okBackend())

	rec := doJSON(t, router, "POST", "/api/leads", validLeadBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "GET", "/api/leads", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Found bool `json:"found"`
		Data  struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Found)
	assert.Equal(t, "Ada Lovelace", resp.Data.Name)
}

func TestLookupLeadDegradesOnBackendFailure(t *testing.T) {
	router := newTestRouter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := doJSON(t, router, "POST", "/api/leads/lookup", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, "a lookup outage falls back to the blank form")

	var resp webhook.LookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Found)
}

func TestCheckCallRequiresLead(t *testing.T) {
	router := newTestRouter(t, okBackend())

	rec := doJSON(t, router, "POST", "/api/call/check", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t, okBackend())

	rec := doJSON(t, router, "POST", "/api/leads", validLeadBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", "/api/call/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var decision struct {
		Allowed bool `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)

	rec = doJSON(t, router, "POST", "/api/call/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap callflow.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "connecting", string(snap.State))
	assert.False(t, snap.EntryVisible)

	// A second start while connecting conflicts
	rec = doJSON(t, router, "POST", "/api/call/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A second check is now inside the cool-down window
	rec = doJSON(t, router, "POST", "/api/call/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)
}

func TestCallStatusPolling(t *testing.T) {
	router := newTestRouter(t, okBackend())

	rec := doJSON(t, router, "GET", "/api/call/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap callflow.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "idle", string(snap.State))
	assert.True(t, snap.EntryVisible)
}

func TestEndCallWithoutActiveCall(t *testing.T) {
	router := newTestRouter(t, okBackend())

	rec := doJSON(t, router, "POST", "/api/call/end", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitFeedbackValidatesRating(t *testing.T) {
	router := newTestRouter(t, okBackend())

	rec := doJSON(t, router, "POST", "/api/call/feedback", map[string]interface{}{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatMessage(t *testing.T) {
	router := newTestRouter(t, okBackend())

	rec := doJSON(t, router, "POST", "/api/chat/message", map[string]string{"message": "Hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var reply chat.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "Hi!", reply.Message)
	assert.NotEmpty(t, reply.SessionID)

	rec = doJSON(t, router, "POST", "/api/chat/message", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactFormValidation(t *testing.T) {
	router := newTestRouter(t, okBackend())

	rec := doJSON(t, router, "POST", "/api/contact", map[string]string{"email": "bad"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "name")
	assert.Contains(t, resp.Errors, "email")
	assert.Contains(t, resp.Errors, "message")

	rec = doJSON(t, router, "POST", "/api/contact", map[string]string{
		"name":    "Ada Lovelace",
		"email":   "ada@example.com",
		"message": "I'd like a demo",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, okBackend())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVisitorCookieMintedWhenMissing(t *testing.T) {
	router := newTestRouter(t, okBackend())

	req := httptest.NewRequest("GET", "/api/call/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, visitorCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestContentTypeRejected(t *testing.T) {
	router := newTestRouter(t, okBackend())

	req := httptest.NewRequest("POST", "/api/leads", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, okBackend())

	req := httptest.NewRequest("OPTIONS", "/api/call/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
