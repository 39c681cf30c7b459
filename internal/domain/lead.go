package domain

import "time"

// LeadProfile represents a website visitor's contact profile.
// Created on first successful form submission or webhook lookup and mutated
// whenever the visitor updates their info. Never explicitly deleted; its
// lifetime is the lifetime of the visitor store entry.
type LeadProfile struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Role    string `json:"role"`
	Consent bool   `json:"consent"`

	// Acquisition metadata
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ChatSession identifies a durable chat conversation for a visitor.
// Minted once per visitor and immutable thereafter.
type ChatSession struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}
