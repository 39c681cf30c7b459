// Package voice defines the boundary to the third-party voice assistant SDK.
// The orchestrator only ever sees this interface; the SDK's audio pipeline is
// an external collaborator.
package voice

import "context"

// EventType identifies events emitted by the voice SDK during a call
type EventType string

const (
	EventCallStart   EventType = "call-start"
	EventCallEnd     EventType = "call-end"
	EventSpeechStart EventType = "speech-start"
	EventSpeechEnd   EventType = "speech-end"
	EventMessage     EventType = "message"
	EventError       EventType = "error"
)

// Event is a single SDK event. CallID is populated on message events that
// carry the provider's call identifier; Err is populated on error events.
type Event struct {
	Type    EventType              `json:"type"`
	CallID  string                 `json:"call_id,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Err     error                  `json:"-"`
}

// Handler receives SDK events. Handlers are registered exactly once, before
// the first call, and must not block the event read loop.
type Handler func(Event)

// CallMetadata is passed to the assistant as variable values at call start
type CallMetadata struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Company    string `json:"company"`
	Role       string `json:"role"`
	Phone      string `json:"phone"`
	CallSource string `json:"callSource"`
}

// Client is the voice SDK surface the orchestrator drives.
//
// Start resolving successfully does not mean audio is flowing: the SDK emits
// EventCallStart once the call is actually up, and callers must treat that
// event, not the Start return, as the connected signal.
type Client interface {
	Start(ctx context.Context, assistantID string, meta CallMetadata) error
	Stop(ctx context.Context) error
	SetMuted(muted bool) error
	On(eventType EventType, handler Handler)
}
