package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/NexaFlowAI/voice-widget-service/internal/services/callflow"
	"github.com/gorilla/mux"
)

// CallHandler exposes the voice-call lifecycle to the widget
type CallHandler struct {
	flows *callflow.Manager
}

// NewCallHandler creates a new call handler
func NewCallHandler(flows *callflow.Manager) *CallHandler {
	return &CallHandler{flows: flows}
}

// SetupCallRoutes registers the call routes on the API subrouter
func (h *CallHandler) SetupCallRoutes(router *mux.Router) {
	router.HandleFunc("/call/check", h.CheckCall).Methods("POST")
	router.HandleFunc("/call/start", h.StartCall).Methods("POST")
	router.HandleFunc("/call/end", h.EndCall).Methods("POST")
	router.HandleFunc("/call/mute", h.ToggleMute).Methods("POST")
	router.HandleFunc("/call/status", h.CallStatus).Methods("GET")
	router.HandleFunc("/call/feedback", h.SubmitFeedback).Methods("POST")
	router.HandleFunc("/call/reset", h.ResetCall).Methods("POST")
	router.HandleFunc("/call/visibility", h.Visibility).Methods("POST")
}

// CheckCall godoc
// @Summary Check whether the visitor may start a call
// @Description Validates the lead profile and the cool-down window. A denied check is a 200 with allowed=false, not an error.
// @Tags calls
// @Produce json
// @Success 200 {object} ratelimit.Decision "Rate-limit decision"
// @Failure 400 {object} map[string]string "No lead profile on file"
// @Router /api/call/check [post]
func (h *CallHandler) CheckCall(w http.ResponseWriter, r *http.Request) {
	flow := h.flows.GetFlow(visitorID(w, r))

	decision, err := flow.ValidateAndCheckRateLimit(r.Context())
	if err != nil {
		if errors.Is(err, callflow.ErrNoLead) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to check call availability")
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// StartCall godoc
// @Summary Start a voice call for this visitor
// @Tags calls
// @Produce json
// @Success 200 {object} callflow.Snapshot "Flow state after the start"
// @Failure 400 {object} map[string]string "No lead profile on file"
// @Failure 409 {object} map[string]string "A call is already in progress"
// @Failure 502 {object} map[string]string "The voice backend rejected the start"
// @Router /api/call/start [post]
func (h *CallHandler) StartCall(w http.ResponseWriter, r *http.Request) {
	flow := h.flows.GetFlow(visitorID(w, r))

	if err := flow.InitiateCall(r.Context(), r.UserAgent()); err != nil {
		switch {
		case errors.Is(err, callflow.ErrNoLead):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, callflow.ErrCallActive):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadGateway, "We couldn't start the call. Please try again.")
		}
		return
	}

	writeJSON(w, http.StatusOK, flow.Snapshot())
}

// EndCall godoc
// @Summary End the visitor's active call
// @Tags calls
// @Produce json
// @Success 200 {object} callflow.Snapshot "Flow state after the end request"
// @Failure 409 {object} map[string]string "No active call"
// @Router /api/call/end [post]
func (h *CallHandler) EndCall(w http.ResponseWriter, r *http.Request) {
	flow := h.flows.GetFlow(visitorID(w, r))

	if err := flow.EndCall(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, flow.Snapshot())
}

// ToggleMute godoc
// @Summary Toggle the microphone mute state
// @Tags calls
// @Produce json
// @Success 200 {object} map[string]bool "New mute state"
// @Router /api/call/mute [post]
func (h *CallHandler) ToggleMute(w http.ResponseWriter, r *http.Request) {
	flow := h.flows.GetFlow(visitorID(w, r))

	muted, err := flow.ToggleMute()
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to change the mute state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"muted": muted})
}

// CallStatus godoc
// @Summary Poll the current call state
// @Description Returns the flow snapshot the widget renders from. Pending notices are drained by this read.
// @Tags calls
// @Produce json
// @Success 200 {object} callflow.Snapshot "Current flow state"
// @Router /api/call/status [get]
func (h *CallHandler) CallStatus(w http.ResponseWriter, r *http.Request) {
	flow := h.flows.GetFlow(visitorID(w, r))
	writeJSON(w, http.StatusOK, flow.Snapshot())
}

// SubmitFeedback godoc
// @Summary Submit post-call feedback
// @Description Attaches the rating to the finished call and re-sends its record
// @Tags calls
// @Accept json
// @Produce json
// @Param feedback body domain.Feedback true "Feedback"
// @Success 200 {object} map[string]string "Acknowledgement"
// @Failure 400 {object} map[string]string "Invalid request body"
// @Router /api/call/feedback [post]
func (h *CallHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var feedback domain.Feedback
	if err := json.NewDecoder(r.Body).Decode(&feedback); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if feedback.Rating != nil && (*feedback.Rating < 1 || *feedback.Rating > 5) {
		writeError(w, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}

	flow := h.flows.GetFlow(visitorID(w, r))
	if err := flow.SubmitFeedback(r.Context(), feedback); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record feedback")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResetCall godoc
// @Summary Reset call state after the feedback card is dismissed
// @Tags calls
// @Produce json
// @Success 200 {object} callflow.Snapshot "Flow state after the reset"
// @Router /api/call/reset [post]
func (h *CallHandler) ResetCall(w http.ResponseWriter, r *http.Request) {
	flow := h.flows.GetFlow(visitorID(w, r))
	flow.ResetCall()
	writeJSON(w, http.StatusOK, flow.Snapshot())
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

// Visibility godoc
// @Summary Report a page visibility change
// @Description Drives the mobile audio continuity keepalive when the page is backgrounded or foregrounded
// @Tags calls
// @Accept json
// @Produce json
// @Param request body visibilityRequest true "Visibility state"
// @Success 200 {object} map[string]string "Acknowledgement"
// @Router /api/call/visibility [post]
func (h *CallHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flow := h.flows.GetFlow(visitorID(w, r))
	flow.Visibility(req.Visible)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
