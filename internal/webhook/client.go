// Package webhook is a thin typed request layer over the external automation
// endpoints the widget delegates to: lead lookup, profile save, call-record
// save, chatbot replies and the contact form. The backends behind each URL
// are opaque collaborators; this client only normalizes transport success and
// failure.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/NexaFlowAI/voice-widget-service/internal/metrics"
	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"go.uber.org/zap"
)

// Endpoints holds the external webhook URLs. Empty URLs disable the
// corresponding call with an error rather than a panic.
type Endpoints struct {
	LookupUser     string
	SaveProfile    string
	SaveCallRecord string
	Chatbot        string
	ContactForm    string
}

// Client issues JSON POST requests to the configured endpoints
type Client struct {
	endpoints Endpoints
	client    *http.Client
}

// NewClient creates a webhook client with a shared request timeout
func NewClient(endpoints Endpoints, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
	}
}

// LookupRequest is the payload for the lead lookup endpoint
type LookupRequest struct {
	Email string `json:"email"`
}

// LookupResponse is the lead lookup result
type LookupResponse struct {
	Found             bool                `json:"found"`
	Data              *domain.LeadProfile `json:"data,omitempty"`
	WebsiteFormFilled bool                `json:"website_form_filled,omitempty"`
}

// LookupUser asks the automation backend whether this email has an existing
// lead record.
func (c *Client) LookupUser(ctx context.Context, email string) (*LookupResponse, error) {
	body, err := c.post(ctx, "lookup_user", c.endpoints.LookupUser, LookupRequest{Email: email})
	if err != nil {
		return nil, err
	}

	var resp LookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	return &resp, nil
}

// profilePayload is the save-profile wire shape
type profilePayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Role    string `json:"role"`
}

// SaveProfile pushes the current lead profile. The response body is opaque;
// any 2xx counts as success.
func (c *Client) SaveProfile(ctx context.Context, lead *domain.LeadProfile) error {
	_, err := c.post(ctx, "save_profile", c.endpoints.SaveProfile, profilePayload{
		Name:    lead.Name,
		Email:   lead.Email,
		Phone:   lead.Phone,
		Company: lead.Company,
		Role:    lead.Role,
	})
	return err
}

// SaveCallRecord sends a call record. The same record may be sent twice for
// one call (null feedback at call end, filled feedback after the rating
// step); the backend is assumed to upsert on vapi_call_id.
func (c *Client) SaveCallRecord(ctx context.Context, record *domain.CallRecord) error {
	_, err := c.post(ctx, "save_call_record", c.endpoints.SaveCallRecord, record)
	return err
}

// ChatMessageRequest is the payload for the chatbot endpoint
type ChatMessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
}

// chatMessageResponse tolerates the three reply field names different
// automation backends use.
type chatMessageResponse struct {
	Response string `json:"response,omitempty"`
	Output   string `json:"output,omitempty"`
	Message  string `json:"message,omitempty"`
}

// SendChatMessage relays a chat message and returns the assistant reply
func (c *Client) SendChatMessage(ctx context.Context, message, sessionID string) (string, error) {
	body, err := c.post(ctx, "chatbot", c.endpoints.Chatbot, ChatMessageRequest{
		Message:   message,
		SessionID: sessionID,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}

	var resp chatMessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode chatbot response: %w", err)
	}

	switch {
	case resp.Response != "":
		return resp.Response, nil
	case resp.Output != "":
		return resp.Output, nil
	case resp.Message != "":
		return resp.Message, nil
	}
	return "", fmt.Errorf("chatbot response carried no reply")
}

// ContactForm is the contact form payload
type ContactForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

// SubmitContactForm forwards a contact form submission
func (c *Client) SubmitContactForm(ctx context.Context, form *ContactForm) error {
	_, err := c.post(ctx, "contact_form", c.endpoints.ContactForm, form)
	return err
}

// post marshals the payload, POSTs it and returns the response body for any
// 2xx status.
func (c *Client) post(ctx context.Context, name, url string, payload interface{}) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook endpoint not configured")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.WebhookRequests.WithLabelValues(name, "error").Inc()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.WebhookRequests.WithLabelValues(name, "error").Inc()
		logger.Base().Error("webhook returned non-2xx status",
			zap.String("url", url),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	metrics.WebhookRequests.WithLabelValues(name, "ok").Inc()
	return body, nil
}
