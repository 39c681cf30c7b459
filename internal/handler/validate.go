package handler

import (
	"regexp"
	"strings"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// Digits with optional leading +, tolerating common separators
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\s\-().]{6,19}$`)
)

// validateLead checks the lead form field by field so the widget can highlight
// every invalid input at once. An empty map means the profile is acceptable.
func validateLead(lead *domain.LeadProfile) map[string]string {
	errs := make(map[string]string)

	if strings.TrimSpace(lead.Name) == "" {
		errs["name"] = "Name is required"
	} else if len(strings.TrimSpace(lead.Name)) < 2 {
		errs["name"] = "Name must be at least 2 characters"
	}

	if lead.Email == "" {
		errs["email"] = "Email is required"
	} else if !emailPattern.MatchString(lead.Email) {
		errs["email"] = "Please enter a valid email address"
	}

	if lead.Phone != "" && !phonePattern.MatchString(lead.Phone) {
		errs["phone"] = "Please enter a valid phone number"
	}

	if !lead.Consent {
		errs["consent"] = "Consent is required to start a call"
	}

	return errs
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}
