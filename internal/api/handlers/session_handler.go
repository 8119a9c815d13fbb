package handlers

import (
	"net/http"
	"time"

	"github.com/zatekoja/quizfunnel/internal/domain/funnel"
)

// sessionCookieMaxAge keeps the visitor id for a year.
const sessionCookieMaxAge = 365 * 24 * 60 * 60

// cookieStore is a funnel.KeyValueStore over the request and response cookies.
type cookieStore struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool
}

func (s *cookieStore) Get(key string) (string, bool) {
	c, err := s.r.Cookie(key)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

func (s *cookieStore) Set(key, value string) error {
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	})
	return nil
}

// SessionHandler hands out the visitor's stable session id
type SessionHandler struct {
	now func() time.Time
}

// NewSessionHandler creates a new session handler
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{now: time.Now}
}

// GetSession handles GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	store := &cookieStore{w: w, r: r, secure: r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"}

	session := funnel.GetOrCreate(store, h.now())
	if !session.Initialized() {
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	respondWithJSON(w, http.StatusOK, map[string]string{"sessionId": session.ID()})
}
