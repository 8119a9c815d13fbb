package funnel

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

// SessionStorageKey is the namespaced key under which a visitor's session id
// is persisted.
const SessionStorageKey = "quiz_session_id"

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// SessionContext identifies the visitor a tracking call belongs to. The zero
// value is Uninitialized and means tracking is disabled for the call.
type SessionContext struct {
	id string
}

// Uninitialized is the session context of a caller without a stable id.
var Uninitialized = SessionContext{}

// SessionFromID wraps a session id received from a client.
func SessionFromID(id string) SessionContext {
	return SessionContext{id: strings.TrimSpace(id)}
}

// Initialized reports whether the context carries an id.
func (s SessionContext) Initialized() bool { return s.id != "" }

// ID returns the session id, or "" for Uninitialized.
func (s SessionContext) ID() string { return s.id }

func (s SessionContext) String() string {
	if !s.Initialized() {
		return "<uninitialized>"
	}
	return s.id
}

// KeyValueStore is the persistent storage a session id lives in.
type KeyValueStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// GetOrCreate returns the stored session, creating and storing one if
// needed. Without working storage the result is Uninitialized.
func GetOrCreate(store KeyValueStore, now time.Time) SessionContext {
	if store == nil {
		return Uninitialized
	}
	if id, ok := store.Get(SessionStorageKey); ok && strings.TrimSpace(id) != "" {
		return SessionFromID(id)
	}

	id, err := NewSessionID(now)
	if err != nil {
		return Uninitialized
	}
	if err := store.Set(SessionStorageKey, id); err != nil {
		return Uninitialized
	}
	return SessionFromID(id)
}

// NewSessionID returns sess_<unixMillis>_<9 random base36 chars>.
func NewSessionID(now time.Time) (string, error) {
	suffix, err := randomBase36(9)
	if err != nil {
		return "", err
	}
	return "sess_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix, nil
}

func randomBase36(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = base36[int(b)%len(base36)]
	}
	return string(buf), nil
}

// NewEventID returns the deduplication key shared by the pixel call and the
// Conversions API call of one event: <sessionId>_<eventName>_<unixMillis>.
func NewEventID(session SessionContext, eventName string, now time.Time) string {
	if !session.Initialized() {
		return ""
	}
	return session.ID() + "_" + eventName + "_" + strconv.FormatInt(now.UnixMilli(), 10)
}
