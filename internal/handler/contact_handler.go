package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/NexaFlowAI/voice-widget-service/internal/webhook"
	"github.com/gorilla/mux"
)

// ContactHandler forwards contact-form submissions
type ContactHandler struct {
	webhooks *webhook.Client
}

// NewContactHandler creates a new contact handler
func NewContactHandler(webhooks *webhook.Client) *ContactHandler {
	return &ContactHandler{webhooks: webhooks}
}

// SetupContactRoutes registers the contact routes on the API subrouter
func (h *ContactHandler) SetupContactRoutes(router *mux.Router) {
	router.HandleFunc("/contact", h.SubmitContactForm).Methods("POST")
}

// SubmitContactForm godoc
// @Summary Submit the contact form
// @Tags contact
// @Accept json
// @Produce json
// @Param form body webhook.ContactForm true "Contact form"
// @Success 200 {object} map[string]string "Acknowledgement"
// @Failure 400 {object} map[string]map[string]string "Per-field validation errors"
// @Failure 502 {object} map[string]string "Automation backend unavailable"
// @Router /api/contact [post]
func (h *ContactHandler) SubmitContactForm(w http.ResponseWriter, r *http.Request) {
	var form webhook.ContactForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	errs := make(map[string]string)
	if strings.TrimSpace(form.Name) == "" {
		errs["name"] = "Name is required"
	}
	if !validEmail(form.Email) {
		errs["email"] = "Please enter a valid email address"
	}
	if strings.TrimSpace(form.Message) == "" {
		errs["message"] = "Message is required"
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
		return
	}

	if form.Source == "" {
		form.Source = "website_widget"
	}

	if err := h.webhooks.SubmitContactForm(r.Context(), &form); err != nil {
		writeError(w, http.StatusBadGateway, "We couldn't send your message. Please try again.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
