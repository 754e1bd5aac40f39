package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	sessionName  = "session"
	authStateKey = "oauth_state"
)

// Sessions keeps flash messages and the pending OAuth state in a signed
// cookie. The payload is readable by the client but cannot be altered without
// the key.
type Sessions struct {
	store *sessions.CookieStore
}

// NewSessions signs cookies with secret. An empty secret gets a random key,
// which invalidates sessions on every restart.
func NewSessions(secret string, secure bool) (*Sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("api: generate session key")
		}
	}
	store := sessions.NewCookieStore(key)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	return &Sessions{store: store}, nil
}

// Session is one request's view of the cookie. Changes are written by Save.
type Session struct {
	sess *sessions.Session
	r    *http.Request
}

// Get reads the session carried by r. A missing or tampered cookie yields an
// empty session.
func (s *Sessions) Get(r *http.Request) *Session {
	// On a decode error the store still returns a fresh session.
	sess, _ := s.store.Get(r, sessionName)
	return &Session{sess: sess, r: r}
}

// AddFlash queues msg for the next rendered page.
func (s *Session) AddFlash(msg string) {
	s.sess.AddFlash(msg)
}

// Flashes returns the queued messages and clears them.
func (s *Session) Flashes() []string {
	raw := s.sess.Flashes()
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if msg, ok := v.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (s *Session) SetAuthState(state string) {
	if state == "" {
		delete(s.sess.Values, authStateKey)
		return
	}
	s.sess.Values[authStateKey] = state
}

// AuthState returns the OAuth state remembered for the callback.
func (s *Session) AuthState() string {
	state, _ := s.sess.Values[authStateKey].(string)
	return state
}

func (s *Session) Save(w http.ResponseWriter) error {
	return s.sess.Save(s.r, w)
}
