package domain

import (
	"fmt"
	"time"
)

// CallState represents the lifecycle state of a voice call
type CallState string

const (
	CallStateIdle       CallState = "idle"
	CallStateConnecting CallState = "connecting"
	CallStateConnected  CallState = "connected"
	CallStateEnding     CallState = "ending"
	CallStateEnded      CallState = "ended"
)

// Speaking status values reported while a call is connected
const (
	SpeakingStatusSpeaking  = "speaking"  // assistant audio is playing
	SpeakingStatusListening = "listening" // assistant is waiting for the caller
)

// CallSession holds the in-memory state of the single active call for a
// visitor. It is never persisted mid-call; ResetCall zeroes it once the
// visitor dismisses the post-call feedback card.
type CallSession struct {
	State           CallState `json:"state"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	EndedAt         time.Time `json:"ended_at,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	ExternalCallID  string    `json:"external_call_id,omitempty"`
	Muted           bool      `json:"muted"`
	SpeakingStatus  string    `json:"speaking_status,omitempty"`
}

// Feedback captures the post-call rating step. Rating and NextAction are
// pointers so the first call-record save can carry explicit nulls.
type Feedback struct {
	Rating     *int    `json:"rating"`
	Comment    string  `json:"comment"`
	NextAction *string `json:"next_action"`
}

// CallData is the timing portion of a call record
type CallData struct {
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Duration   string    `json:"duration"` // MM:SS
	VapiCallID string    `json:"vapi_call_id"`
}

// CallRecord aggregates a point-in-time copy of the lead profile with call
// timing and feedback. Sent once at call end with null feedback and again
// after feedback submission; the receiving webhook is assumed to upsert.
type CallRecord struct {
	LeadData LeadProfile `json:"lead_data"`
	CallData CallData    `json:"call_data"`
	Feedback Feedback    `json:"feedback"`
}

// FormatDuration renders a call duration as MM:SS. Minutes are not capped at
// 59, so a one-hour call renders as "60:00".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
