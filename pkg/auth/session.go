package auth

import (
	"crypto/sha256"
	"net/http"
	"net/url"

	"github.com/gorilla/sessions"
)

// SessionName is the cookie holding platform OAuth state between redirect and callback.
const SessionName = "platform-oauth"

// Session value keys.
const (
	SessionKeyState     = "state"
	SessionKeyReturnURL = "return_url"
)

// SessionStore wraps a cookie store scoped to the platform OAuth redirect.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore builds a cookie store keyed by SHA-256 of secret.
// The cookie lives 10 minutes, the length of one consent round-trip. Secure is derived from
// baseURL so local http development still receives the cookie.
func NewSessionStore(secret, baseURL string) *SessionStore {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/api/oauth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   isHTTPS(baseURL),
		// Lax: the callback is a top-level cross-site navigation from the platform.
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{store: store}
}

// Put records state and return URL in the session cookie.
func (s *SessionStore) Put(w http.ResponseWriter, r *http.Request, state, returnURL string) error {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		// A stale cookie signed with an old secret; start fresh.
		session, _ = s.store.New(r, SessionName)
	}
	session.Values[SessionKeyState] = state
	session.Values[SessionKeyReturnURL] = returnURL
	return session.Save(r, w)
}

// Take reads and clears state and return URL. Empty strings mean no session.
func (s *SessionStore) Take(w http.ResponseWriter, r *http.Request) (state, returnURL string, err error) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return "", "", nil
	}
	state, _ = session.Values[SessionKeyState].(string)
	returnURL, _ = session.Values[SessionKeyReturnURL].(string)

	session.Options.MaxAge = -1
	return state, returnURL, session.Save(r, w)
}

func isHTTPS(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" {
		return true
	}
	return u.Scheme != "http"
}
