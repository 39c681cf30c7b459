// Package callflow coordinates the voice-call lifecycle for one visitor: UI
// intents on one side, the voice SDK's event stream on the other, with the
// state machine arbitrating which transitions are real and the webhook
// gateway receiving the resulting call records.
package callflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NexaFlowAI/voice-widget-service/internal/callstate"
	"github.com/NexaFlowAI/voice-widget-service/internal/continuity"
	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/NexaFlowAI/voice-widget-service/internal/metrics"
	"github.com/NexaFlowAI/voice-widget-service/internal/ratelimit"
	"github.com/NexaFlowAI/voice-widget-service/internal/store"
	"github.com/NexaFlowAI/voice-widget-service/internal/voice"
	"github.com/NexaFlowAI/voice-widget-service/internal/webhook"
	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"go.uber.org/zap"
)

const persistTimeout = 10 * time.Second

var (
	// ErrNoLead is returned when a call operation runs without a lead profile
	ErrNoLead = fmt.Errorf("no lead profile on file, please fill the form again")
	// ErrCallActive is returned when a second call is initiated mid-call
	ErrCallActive = fmt.Errorf("a call is already in progress")
	// ErrNoActiveCall is returned when there is no call to act on
	ErrNoActiveCall = fmt.Errorf("no active call")
)

// Notice is a user-facing notification (rendered as a toast by the widget)
type Notice struct {
	Level   string `json:"level"` // "error" or "info"
	Message string `json:"message"`
}

// FlowConfig carries the call-related configuration a flow needs
type FlowConfig struct {
	AssistantID     string
	CallSource      string
	ConnectTimeout  time.Duration
	RateLimitWindow time.Duration

	// How long the post-call feedback card stays up before the call state
	// resets itself. Feedback submission re-arms the countdown.
	FeedbackDismissAfter time.Duration
}

// Flow is the per-visitor call orchestrator. SDK event handlers are bound
// exactly once, at construction, and close over the Flow; they read current
// state through the Session, never through captured values.
type Flow struct {
	visitorID string
	cfg       FlowConfig

	machine  *callstate.Machine
	session  *Session
	store    store.Store
	webhooks *webhook.Client
	limiter  *ratelimit.Limiter
	client   voice.Client
	guard    *continuity.Guard

	// now is swappable for tests
	now func() time.Time

	mu           sync.Mutex
	notices      []Notice
	timerStop    chan struct{}
	connectTimer *time.Timer
	dismissTimer *time.Timer
	releaseGuard func()
	lastActivity time.Time
}

// NewFlow creates a flow and binds the SDK event handlers once
func NewFlow(visitorID string, cfg FlowConfig, st store.Store, webhooks *webhook.Client, client voice.Client) *Flow {
	f := &Flow{
		visitorID:    visitorID,
		cfg:          cfg,
		machine:      callstate.NewMachine(),
		session:      NewSession(),
		store:        st,
		webhooks:     webhooks,
		limiter:      ratelimit.NewLimiter(st, cfg.RateLimitWindow),
		client:       client,
		guard:        continuity.NewGuard(),
		now:          time.Now,
		lastActivity: time.Now(),
	}

	client.On(voice.EventCallStart, f.onCallStart)
	client.On(voice.EventCallEnd, f.onCallEnd)
	client.On(voice.EventSpeechStart, f.onSpeechStart)
	client.On(voice.EventSpeechEnd, f.onSpeechEnd)
	client.On(voice.EventMessage, f.onMessage)
	client.On(voice.EventError, f.onError)

	return f
}

// UpdateLeadData writes the lead profile through to both the session and the
// visitor store. Every lead mutation funnels through here so the two stay in
// sync.
func (f *Flow) UpdateLeadData(ctx context.Context, lead *domain.LeadProfile) error {
	f.touch()
	lead.UpdatedAt = f.now()

	if err := f.session.SetLead(lead); err != nil {
		return fmt.Errorf("failed to set lead profile: %w", err)
	}
	if err := f.store.SaveProfile(ctx, f.visitorID, lead); err != nil {
		return fmt.Errorf("failed to persist lead profile: %w", err)
	}
	return nil
}

// LoadStoredLead hydrates the session from the visitor store, for returning
// visitors whose profile outlived the flow.
func (f *Flow) LoadStoredLead(ctx context.Context) (*domain.LeadProfile, error) {
	if lead := f.session.Lead(); lead != nil {
		return lead, nil
	}

	lead, err := f.store.GetProfile(ctx, f.visitorID)
	if err != nil || lead == nil {
		return nil, err
	}
	if err := f.session.SetLead(lead); err != nil {
		return nil, err
	}
	return lead, nil
}

// ValidateAndCheckRateLimit gates call initiation: a lead profile must exist
// and the cool-down window must have passed. On success the profile is pushed
// to the save-profile webhook best-effort; that save never blocks the flow.
func (f *Flow) ValidateAndCheckRateLimit(ctx context.Context) (ratelimit.Decision, error) {
	f.touch()

	lead := f.session.Lead()
	if lead == nil {
		return ratelimit.Decision{}, ErrNoLead
	}

	decision, err := f.limiter.Check(ctx, f.visitorID, lead)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	if !decision.Allowed {
		return decision, nil
	}

	go func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := f.webhooks.SaveProfile(saveCtx, lead); err != nil {
			logger.Base().Warn("best-effort profile save failed",
				zap.String("visitor_id", f.visitorID), zap.Error(err))
		}
	}()

	return decision, nil
}

// InitiateCall starts a voice call. The state moves to connecting before the
// SDK start resolves so status reads reflect the attempt immediately; the
// move to connected is driven only by the SDK's call-start event, because the
// SDK may acknowledge start before audio is actually flowing.
func (f *Flow) InitiateCall(ctx context.Context, userAgent string) error {
	f.touch()

	lead := f.session.Lead()
	if lead == nil {
		f.notify("error", "We lost your details. Please fill the form again.")
		return ErrNoLead
	}

	if !f.machine.TransitionTo(domain.CallStateConnecting) {
		return ErrCallActive
	}
	f.session.UpdateCall(func(call *domain.CallSession) {
		call.State = domain.CallStateConnecting
	})

	meta := voice.CallMetadata{
		Name:       lead.Name,
		Email:      lead.Email,
		Company:    lead.Company,
		Role:       lead.Role,
		Phone:      lead.Phone,
		CallSource: f.cfg.CallSource,
	}

	if err := f.client.Start(ctx, f.cfg.AssistantID, meta); err != nil {
		logger.Base().Error("voice SDK start failed",
			zap.String("visitor_id", f.visitorID), zap.Error(err))
		f.machine.TransitionTo(domain.CallStateEnded)
		f.session.UpdateCall(func(call *domain.CallSession) {
			call.State = domain.CallStateEnded
		})
		metrics.CallsEnded.WithLabelValues("failed").Inc()
		f.notify("error", "We couldn't start the call. Please check microphone permissions and try again.")
		return fmt.Errorf("failed to start call: %w", err)
	}

	// The call counts against the cool-down from the moment the SDK accepted
	// the start, not from when it connects.
	if err := f.store.SetLastCallTime(ctx, f.visitorID, f.now()); err != nil {
		logger.Base().Warn("failed to record last-call time", zap.Error(err))
	}

	f.mu.Lock()
	f.releaseGuard = f.guard.StartCall(userAgent, pingerFor(f.client), f.resumeAudio)
	f.mu.Unlock()

	f.armConnectTimeout()
	metrics.CallsStarted.Inc()
	metrics.ActiveCalls.Inc()

	logger.Base().Info("call initiated",
		zap.String("visitor_id", f.visitorID),
		zap.String("assistant_id", f.cfg.AssistantID))
	return nil
}

// EndCall requests a cooperative teardown. From a connected call the final
// transition to ended is driven by the SDK's call-end event; a still-ringing
// call is canceled immediately, since no call-end will ever arrive for it.
func (f *Flow) EndCall(ctx context.Context) error {
	f.touch()

	// If call-start races this check, the transition fails and we fall
	// through to the connected-call path below.
	if f.machine.Is(domain.CallStateConnecting) && f.machine.TransitionTo(domain.CallStateEnded) {
		f.cancelConnectTimeout()
		f.releaseContinuity()
		f.session.UpdateCall(func(call *domain.CallSession) {
			call.State = domain.CallStateEnded
			call.EndedAt = f.now()
		})
		f.session.SetOverlay(false)

		logger.Base().Info("canceled ringing call", zap.String("visitor_id", f.visitorID))

		if err := f.client.Stop(ctx); err != nil {
			logger.Base().Warn("voice SDK stop after cancel failed", zap.Error(err))
		}

		metrics.ActiveCalls.Dec()
		metrics.CallsEnded.WithLabelValues("canceled").Inc()
		return nil
	}

	if !f.machine.TransitionTo(domain.CallStateEnding) {
		return ErrNoActiveCall
	}
	f.session.UpdateCall(func(call *domain.CallSession) {
		call.State = domain.CallStateEnding
	})

	if err := f.client.Stop(ctx); err != nil {
		logger.Base().Warn("voice SDK stop failed", zap.Error(err))
	}
	return nil
}

// ToggleMute flips the mute flag and forwards it to the SDK
func (f *Flow) ToggleMute() (bool, error) {
	f.touch()

	var muted bool
	f.session.UpdateCall(func(call *domain.CallSession) {
		call.Muted = !call.Muted
		muted = call.Muted
	})

	if err := f.client.SetMuted(muted); err != nil {
		return muted, fmt.Errorf("failed to set mute: %w", err)
	}
	return muted, nil
}

// SubmitFeedback records the post-call rating and re-sends the call record.
// The backend upserts on the call id, so the second send overwrites the null
// feedback sent at call end.
func (f *Flow) SubmitFeedback(ctx context.Context, feedback domain.Feedback) error {
	f.touch()
	f.session.SetFeedback(feedback)

	record, err := f.session.BuildCallRecord()
	if err != nil {
		return fmt.Errorf("failed to build call record: %w", err)
	}

	if err := f.webhooks.SaveCallRecord(ctx, record); err != nil {
		// Feedback persistence is a side channel; losing it never surfaces
		logger.Base().Warn("failed to save call record with feedback",
			zap.String("visitor_id", f.visitorID), zap.Error(err))
	}

	f.armFeedbackDismiss()
	return nil
}

// ResetCall zeroes all call-scoped state. Called when the visitor dismisses
// the post-call feedback card.
func (f *Flow) ResetCall() {
	f.touch()
	f.stopDurationTimer()
	f.cancelConnectTimeout()
	f.cancelFeedbackDismiss()
	f.releaseContinuity()

	f.session.ResetCall()
	f.machine.Reset()
}

// Snapshot is the flow state the UI polls
type Snapshot struct {
	State          domain.CallState `json:"state"`
	Duration       string           `json:"duration"`
	DurationSecs   int              `json:"duration_seconds"`
	Muted          bool             `json:"muted"`
	SpeakingStatus string           `json:"speaking_status,omitempty"`
	ExternalCallID string           `json:"external_call_id,omitempty"`
	EntryVisible   bool             `json:"entry_visible"`
	OverlayActive  bool             `json:"overlay_active"`
	Notices        []Notice         `json:"notices,omitempty"`
}

// Snapshot returns the current state and drains pending notices
func (f *Flow) Snapshot() Snapshot {
	call := f.session.Call()

	f.mu.Lock()
	notices := f.notices
	f.notices = nil
	f.mu.Unlock()

	return Snapshot{
		State:          call.State,
		Duration:       domain.FormatDuration(call.DurationSeconds),
		DurationSecs:   call.DurationSeconds,
		Muted:          call.Muted,
		SpeakingStatus: call.SpeakingStatus,
		ExternalCallID: call.ExternalCallID,
		EntryVisible:   !f.machine.Active(),
		OverlayActive:  f.session.Overlay(),
		Notices:        notices,
	}
}

// Visibility forwards a page visibility change to the continuity guard
func (f *Flow) Visibility(visible bool) {
	f.touch()
	f.guard.Visibility(visible)
}

// LastActivity returns when the flow was last used (for idle eviction)
func (f *Flow) LastActivity() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActivity
}

// Active reports whether a call session exists
func (f *Flow) Active() bool {
	return f.machine.Active()
}

// --- SDK event handlers, bound once at construction ---

func (f *Flow) onCallStart(voice.Event) {
	if !f.machine.TransitionTo(domain.CallStateConnected) {
		// Stray event: the call already ended or never started
		return
	}

	f.cancelConnectTimeout()
	f.session.UpdateCall(func(call *domain.CallSession) {
		call.State = domain.CallStateConnected
		call.StartedAt = f.now()
		call.DurationSeconds = 0
		call.SpeakingStatus = domain.SpeakingStatusListening
	})
	f.session.SetOverlay(true)
	f.startDurationTimer()

	logger.Base().Info("call connected", zap.String("visitor_id", f.visitorID))
}

func (f *Flow) onCallEnd(voice.Event) {
	// The SDK's call-end can arrive from connected (remote hangup), from
	// ending (we asked), or from connecting (never answered). connected has
	// no direct edge to ended, so route through ending.
	if f.machine.Is(domain.CallStateConnected) {
		f.machine.TransitionTo(domain.CallStateEnding)
	}
	if !f.machine.TransitionTo(domain.CallStateEnded) {
		return
	}

	f.stopDurationTimer()
	f.cancelConnectTimeout()
	f.releaseContinuity()

	var durationSecs int
	f.session.UpdateCall(func(call *domain.CallSession) {
		call.State = domain.CallStateEnded
		call.EndedAt = f.now()
		call.SpeakingStatus = ""
		if !call.StartedAt.IsZero() {
			// Wall clock is authoritative; ticks only feed the live counter
			call.DurationSeconds = int(call.EndedAt.Sub(call.StartedAt).Seconds())
		}
		durationSecs = call.DurationSeconds
	})
	f.session.SetOverlay(false)

	metrics.ActiveCalls.Dec()
	metrics.CallsEnded.WithLabelValues("completed").Inc()
	metrics.CallDuration.Observe(float64(durationSecs))

	// Build and send the record synchronously so it captures the freshest
	// state; the null-feedback record goes out exactly once per call end.
	record, err := f.session.BuildCallRecord()
	if err != nil {
		logger.Base().Error("failed to build call record", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := f.webhooks.SaveCallRecord(ctx, record); err != nil {
		logger.Base().Warn("failed to save call record",
			zap.String("visitor_id", f.visitorID), zap.Error(err))
	}

	f.armFeedbackDismiss()

	logger.Base().Info("call ended",
		zap.String("visitor_id", f.visitorID),
		zap.String("duration", record.CallData.Duration))
}

func (f *Flow) onSpeechStart(voice.Event) {
	if !f.machine.Is(domain.CallStateConnected) {
		return
	}
	f.session.UpdateCall(func(call *domain.CallSession) {
		call.SpeakingStatus = domain.SpeakingStatusSpeaking
	})
}

func (f *Flow) onSpeechEnd(voice.Event) {
	if !f.machine.Is(domain.CallStateConnected) {
		return
	}
	f.session.UpdateCall(func(call *domain.CallSession) {
		call.SpeakingStatus = domain.SpeakingStatusListening
	})
}

func (f *Flow) onMessage(event voice.Event) {
	if event.CallID == "" {
		return
	}
	f.session.UpdateCall(func(call *domain.CallSession) {
		call.ExternalCallID = event.CallID
	})
}

// onError treats SDK errors as fatal to the current call only: force the
// machine to a terminal state and clear the overlay, but leave the flow
// usable for the next call.
func (f *Flow) onError(event voice.Event) {
	logger.Base().Error("voice SDK error",
		zap.String("visitor_id", f.visitorID), zap.Error(event.Err))

	if f.machine.Is(domain.CallStateConnected) {
		f.machine.TransitionTo(domain.CallStateEnding)
	}
	if !f.machine.TransitionTo(domain.CallStateEnded) {
		return
	}

	f.stopDurationTimer()
	f.cancelConnectTimeout()
	f.releaseContinuity()

	f.session.UpdateCall(func(call *domain.CallSession) {
		call.State = domain.CallStateEnded
		call.EndedAt = f.now()
		call.SpeakingStatus = ""
	})
	f.session.SetOverlay(false)

	metrics.ActiveCalls.Dec()
	metrics.CallsEnded.WithLabelValues("failed").Inc()
	f.notify("error", "The call ran into a problem and was disconnected.")
}

// --- timers and helpers ---

// startDurationTimer arms the 1-second live duration counter. Any previous
// timer is stopped first; exactly one runs at a time.
func (f *Flow) startDurationTimer() {
	f.stopDurationTimer()

	stop := make(chan struct{})
	f.mu.Lock()
	f.timerStop = stop
	f.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f.session.UpdateCall(func(call *domain.CallSession) {
					call.DurationSeconds++
				})
			}
		}
	}()
}

func (f *Flow) stopDurationTimer() {
	f.mu.Lock()
	if f.timerStop != nil {
		close(f.timerStop)
		f.timerStop = nil
	}
	f.mu.Unlock()
}

// armConnectTimeout gives the SDK a bounded window to emit call-start. If it
// never does, the flow would otherwise sit in connecting forever with no
// client-side escape.
func (f *Flow) armConnectTimeout() {
	if f.cfg.ConnectTimeout <= 0 {
		return
	}

	f.mu.Lock()
	if f.connectTimer != nil {
		f.connectTimer.Stop()
	}
	f.connectTimer = time.AfterFunc(f.cfg.ConnectTimeout, f.onConnectTimeout)
	f.mu.Unlock()
}

func (f *Flow) cancelConnectTimeout() {
	f.mu.Lock()
	if f.connectTimer != nil {
		f.connectTimer.Stop()
		f.connectTimer = nil
	}
	f.mu.Unlock()
}

func (f *Flow) onConnectTimeout() {
	if !f.machine.Is(domain.CallStateConnecting) {
		return
	}
	if !f.machine.TransitionTo(domain.CallStateEnded) {
		return
	}

	logger.Base().Warn("call never connected within timeout",
		zap.String("visitor_id", f.visitorID),
		zap.Duration("timeout", f.cfg.ConnectTimeout))

	f.releaseContinuity()
	f.session.UpdateCall(func(call *domain.CallSession) {
		call.State = domain.CallStateEnded
		call.EndedAt = f.now()
	})
	f.session.SetOverlay(false)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := f.client.Stop(ctx); err != nil {
		logger.Base().Warn("voice SDK stop after connect timeout failed", zap.Error(err))
	}

	metrics.ActiveCalls.Dec()
	metrics.CallsEnded.WithLabelValues("timeout").Inc()
	f.notify("error", "The call couldn't connect. Please try again.")
}

// armFeedbackDismiss starts the countdown after which the post-call card
// clears itself. Interacting with the card (submitting feedback) re-arms it.
func (f *Flow) armFeedbackDismiss() {
	if f.cfg.FeedbackDismissAfter <= 0 {
		return
	}

	f.mu.Lock()
	if f.dismissTimer != nil {
		f.dismissTimer.Stop()
	}
	f.dismissTimer = time.AfterFunc(f.cfg.FeedbackDismissAfter, func() {
		if !f.machine.Is(domain.CallStateEnded) {
			return
		}
		f.ResetCall()
	})
	f.mu.Unlock()
}

func (f *Flow) cancelFeedbackDismiss() {
	f.mu.Lock()
	if f.dismissTimer != nil {
		f.dismissTimer.Stop()
		f.dismissTimer = nil
	}
	f.mu.Unlock()
}

func (f *Flow) releaseContinuity() {
	f.mu.Lock()
	release := f.releaseGuard
	f.releaseGuard = nil
	f.mu.Unlock()

	if release != nil {
		release()
	}
}

// resumeAudio re-asserts the current mute state on the SDK after the client
// returns to the foreground, nudging the audio path back to life.
func (f *Flow) resumeAudio() error {
	return f.client.SetMuted(f.session.Call().Muted)
}

func (f *Flow) notify(level, message string) {
	f.mu.Lock()
	f.notices = append(f.notices, Notice{Level: level, Message: message})
	// Bounded: the UI polls frequently, but a stuck client must not grow this
	if len(f.notices) > 20 {
		f.notices = f.notices[len(f.notices)-20:]
	}
	f.mu.Unlock()
}

func (f *Flow) touch() {
	f.mu.Lock()
	f.lastActivity = time.Now()
	f.mu.Unlock()
}

// pingerFor returns the client's keepalive surface when it has one
func pingerFor(client voice.Client) continuity.Pinger {
	if p, ok := client.(continuity.Pinger); ok {
		return p
	}
	return nil
}
