package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupUser(t *testing.T) {
	var gotBody LookupRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(LookupResponse{
			Found:             true,
			Data:              &domain.LeadProfile{Name: "Ada", Email: "ada@example.com"},
			WebsiteFormFilled: true,
		})
	}))
	defer srv.Close()

	c := NewClient(Endpoints{LookupUser: srv.URL}, time.Second)
	resp, err := c.LookupUser(context.Background(), "ada@example.com")
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", gotBody.Email)
	assert.True(t, resp.Found)
	assert.True(t, resp.WebsiteFormFilled)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "Ada", resp.Data.Name)
}

func TestSaveCallRecordWireShape(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	record := &domain.CallRecord{
		LeadData: domain.LeadProfile{Name: "Ada", Email: "ada@example.com"},
		CallData: domain.CallData{Duration: "02:05", VapiCallID: "call-123"},
		Feedback: domain.Feedback{Comment: ""},
	}

	c := NewClient(Endpoints{SaveCallRecord: srv.URL}, time.Second)
	require.NoError(t, c.SaveCallRecord(context.Background(), record))

	require.Contains(t, raw, "lead_data")
	require.Contains(t, raw, "call_data")
	require.Contains(t, raw, "feedback")

	var feedback map[string]interface{}
	require.NoError(t, json.Unmarshal(raw["feedback"], &feedback))
	assert.Nil(t, feedback["rating"], "unset rating must serialize as null")
	assert.Nil(t, feedback["next_action"], "unset next_action must serialize as null")
	assert.Equal(t, "", feedback["comment"])
}

func TestSendChatMessageReplyFieldVariants(t *testing.T) {
	for _, field := range []string{"response", "output", "message"} {
		t.Run(field, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{field: "hello there"})
			}))
			defer srv.Close()

			c := NewClient(Endpoints{Chatbot: srv.URL}, time.Second)
			reply, err := c.SendChatMessage(context.Background(), "hi", "session-1")
			require.NoError(t, err)
			assert.Equal(t, "hello there", reply)
		})
	}
}

func TestSendChatMessageEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(Endpoints{Chatbot: srv.URL}, time.Second)
	_, err := c.SendChatMessage(context.Background(), "hi", "session-1")
	assert.Error(t, err)
}

func TestNon2xxIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Endpoints{SaveProfile: srv.URL}, time.Second)
	err := c.SaveProfile(context.Background(), &domain.LeadProfile{Email: "a@b.c"})
	assert.Error(t, err)
}

func TestUnconfiguredEndpoint(t *testing.T) {
	c := NewClient(Endpoints{}, time.Second)
	err := c.SubmitContactForm(context.Background(), &ContactForm{Name: "x", Email: "a@b.c", Message: "hi", Source: "site"})
	assert.Error(t, err)
}
