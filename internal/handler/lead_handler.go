package handler

import (
	"encoding/json"
	"net/http"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/NexaFlowAI/voice-widget-service/internal/services/callflow"
	"github.com/NexaFlowAI/voice-widget-service/internal/webhook"
	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// LeadHandler handles lead lookup and profile capture for the widget
type LeadHandler struct {
	flows    *callflow.Manager
	webhooks *webhook.Client
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(flows *callflow.Manager, webhooks *webhook.Client) *LeadHandler {
	return &LeadHandler{
		flows:    flows,
		webhooks: webhooks,
	}
}

// SetupLeadRoutes registers the lead routes on the API subrouter
func (h *LeadHandler) SetupLeadRoutes(router *mux.Router) {
	router.HandleFunc("/leads/lookup", h.LookupLead).Methods("POST")
	router.HandleFunc("/leads", h.UpsertLead).Methods("POST")
	router.HandleFunc("/leads", h.GetLead).Methods("GET")
}

// LookupLead godoc
// @Summary Look up a returning visitor by email
// @Description Asks the automation backend whether this email already has a lead record
// @Tags leads
// @Accept json
// @Produce json
// @Param request body webhook.LookupRequest true "Lookup request"
// @Success 200 {object} webhook.LookupResponse "Lookup result"
// @Failure 400 {object} map[string]string "Invalid email"
// @Router /api/leads/lookup [post]
func (h *LeadHandler) LookupLead(w http.ResponseWriter, r *http.Request) {
	var req webhook.LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validEmail(req.Email) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"errors": map[string]string{"email": "Please enter a valid email address"},
		})
		return
	}

	result, err := h.webhooks.LookupUser(r.Context(), req.Email)
	if err != nil {
		// A lookup failure degrades to the blank form, never blocks the widget
		logger.Base().Warn("lead lookup failed", zap.Error(err))
		writeJSON(w, http.StatusOK, &webhook.LookupResponse{Found: false})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// UpsertLead godoc
// @Summary Create or update the visitor's lead profile
// @Description Validates the lead form field by field and stores the profile for this visitor
// @Tags leads
// @Accept json
// @Produce json
// @Param lead body domain.LeadProfile true "Lead profile"
// @Success 200 {object} domain.LeadProfile "Stored profile"
// @Failure 400 {object} map[string]map[string]string "Per-field validation errors"
// @Router /api/leads [post]
func (h *LeadHandler) UpsertLead(w http.ResponseWriter, r *http.Request) {
	var lead domain.LeadProfile
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Field errors are caught here, before any webhook or store traffic
	if errs := validateLead(&lead); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
		return
	}

	if lead.Source == "" {
		lead.Source = "website_widget"
	}

	flow := h.flows.GetFlow(visitorID(w, r))
	if err := flow.UpdateLeadData(r.Context(), &lead); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save your details. Please try again.")
		return
	}

	writeJSON(w, http.StatusOK, &lead)
}

// GetLead godoc
// @Summary Get the visitor's stored lead profile
// @Tags leads
// @Produce json
// @Success 200 {object} map[string]interface{} "found flag plus the profile when present"
// @Router /api/leads [get]
func (h *LeadHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	flow := h.flows.GetFlow(visitorID(w, r))

	lead, err := flow.LoadStoredLead(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load your details")
		return
	}
	if lead == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"found": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"found": true, "data": lead})
}
