package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	CookieName = "ragconsole_session"
	// CookieMaxAge outlives the in-memory session TTL; an expired session is
	// simply recreated under the same id.
	CookieMaxAge = 12 * time.Hour
)

// SetSessionCookie marks the cookie Secure when the request came in over TLS
// or through a TLS-terminating proxy.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   isTLS(r),
	})
}

func ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   isTLS(r),
	})
}

func isTLS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// sessionID reads the cookie, then the X-Session-Id header used by the CLI
// and tests.
func sessionID(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-Session-Id")
}

func getOrCreateSessionID(w http.ResponseWriter, r *http.Request) string {
	sid := sessionID(r)
	if sid == "" {
		sid = uuid.NewString()
		SetSessionCookie(w, r, sid)
	}
	w.Header().Set("X-Session-Id", sid)
	return sid
}
