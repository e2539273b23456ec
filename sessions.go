package authcore

import (
	"net/http"
	"time"
)

// Session is the result of every successful login: the public user, the
// signed token and the cookie that carries it.
type Session struct {
	User   PublicUser
	Token  SessionToken
	Cookie *http.Cookie
}

// Sessions turns an authenticated user into a Session. Credential signin,
// OAuth provisioning and SAML all go through the same Sessions value.
type Sessions struct {
	Tokens  *TokenIssuer
	Cookies SessionCookiePolicy

	// SessionTTL applies to regular logins, RememberTTL when the user asked
	// to be remembered
	SessionTTL  time.Duration
	RememberTTL time.Duration
}

func (s *Sessions) EnsureDefaults() {
	if s.SessionTTL <= 0 {
		s.SessionTTL = DefaultSessionTTL
	}
	if s.RememberTTL <= 0 {
		s.RememberTTL = DefaultRememberTTL
	}
	s.Cookies.EnsureDefaults()
}

// NewSessions creates a Sessions with defaults applied
func NewSessions(tokens *TokenIssuer, cookies SessionCookiePolicy) *Sessions {
	out := &Sessions{Tokens: tokens, Cookies: cookies}
	out.EnsureDefaults()
	return out
}

// TTL returns the token lifetime for the remember flag
func (s *Sessions) TTL(rememberMe bool) time.Duration {
	if rememberMe {
		if s.RememberTTL > 0 {
			return s.RememberTTL
		}
		return DefaultRememberTTL
	}
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return DefaultSessionTTL
}

// Establish issues a token for user and wraps it into a Session
func (s *Sessions) Establish(user *User, rememberMe bool) (*Session, error) {
	token, err := s.Tokens.Issue(user.ID, user.Email, s.TTL(rememberMe))
	if err != nil {
		return nil, Internal("issue token", err)
	}
	return &Session{
		User:   user.Public(),
		Token:  token,
		Cookie: s.Cookies.Cookie(token),
	}, nil
}

// Write sets the session cookie on w
func (s *Sessions) Write(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, session.Cookie)
}

// Clear removes the session cookie
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.Cookies.Clear())
}
