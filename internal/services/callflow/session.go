package callflow

import (
	"sync"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/jinzhu/copier"
)

// Session is the single mutable session object for one visitor's call flow.
// Lead profile, call state and feedback all live behind one mutex, and SDK
// event handlers close over the Session itself, so every read observes the
// values current at the moment the event fires.
//
// Writer contract: the lead profile is only ever written through SetLead
// (called from Flow.UpdateLeadData); call fields are only written from the
// flow's operations and event handlers.
type Session struct {
	mu       sync.Mutex
	lead     *domain.LeadProfile
	call     domain.CallSession
	feedback domain.Feedback
	overlay  bool
}

// NewSession creates a session with an idle call
func NewSession() *Session {
	return &Session{call: domain.CallSession{State: domain.CallStateIdle}}
}

// SetLead replaces the lead profile with a defensive copy
func (s *Session) SetLead(lead *domain.LeadProfile) error {
	stored := &domain.LeadProfile{}
	if err := copier.Copy(stored, lead); err != nil {
		return err
	}

	s.mu.Lock()
	s.lead = stored
	s.mu.Unlock()
	return nil
}

// Lead returns a copy of the lead profile, or nil when none is set
func (s *Session) Lead() *domain.LeadProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lead == nil {
		return nil
	}
	lead := &domain.LeadProfile{}
	if err := copier.Copy(lead, s.lead); err != nil {
		return nil
	}
	return lead
}

// HasLead reports whether a lead profile is present
func (s *Session) HasLead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lead != nil
}

// UpdateCall mutates the call session under the lock
func (s *Session) UpdateCall(fn func(call *domain.CallSession)) {
	s.mu.Lock()
	fn(&s.call)
	s.mu.Unlock()
}

// Call returns a copy of the call session
func (s *Session) Call() domain.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call
}

// SetFeedback stores the post-call feedback fields
func (s *Session) SetFeedback(f domain.Feedback) {
	s.mu.Lock()
	s.feedback = f
	s.mu.Unlock()
}

// SetOverlay flips the "an overlay is active" flag the presentation layer
// derives its scroll lock from.
func (s *Session) SetOverlay(active bool) {
	s.mu.Lock()
	s.overlay = active
	s.mu.Unlock()
}

// Overlay returns the overlay flag
func (s *Session) Overlay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

// BuildCallRecord assembles a call record from a point-in-time snapshot of
// the lead, the call timing and the current feedback, all read under one lock
// acquisition so the record is internally consistent.
func (s *Session) BuildCallRecord() (*domain.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &domain.CallRecord{
		CallData: domain.CallData{
			StartedAt:  s.call.StartedAt,
			EndedAt:    s.call.EndedAt,
			Duration:   domain.FormatDuration(s.call.DurationSeconds),
			VapiCallID: s.call.ExternalCallID,
		},
		Feedback: s.feedback,
	}
	if s.lead != nil {
		if err := copier.Copy(&record.LeadData, s.lead); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// ResetCall zeroes every call-scoped field. The lead profile survives; the
// call session lives only between initiation and feedback dismissal.
func (s *Session) ResetCall() {
	s.mu.Lock()
	s.call = domain.CallSession{State: domain.CallStateIdle}
	s.feedback = domain.Feedback{}
	s.overlay = false
	s.mu.Unlock()
}
