package handler

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	visitorHeader = "X-Visitor-ID"
	visitorCookie = "nf_visitor_id"

	// Matches the profile TTL in the visitor store
	visitorCookieMaxAge = 180 * 24 * 60 * 60
)

// visitorID resolves the stable visitor identity. The embed script sends it in
// a header; plain browser requests fall back to a cookie. A visitor seen for
// the first time is minted an id on the spot.
func visitorID(w http.ResponseWriter, r *http.Request) string {
	if id := r.Header.Get(visitorHeader); id != "" {
		return id
	}
	if cookie, err := r.Cookie(visitorCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   visitorCookieMaxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
	return id
}
