package authcore

import (
	"net/http"
	"time"
)

// DefaultCookieName is the cookie carrying the session token
const DefaultCookieName = "access_token"

// SessionCookiePolicy maps a session token onto transport attributes. One
// policy is shared by every flow that establishes a session so credential
// and federated logins get identical cookies.
type SessionCookiePolicy struct {
	Name     string
	Domain   string
	Path     string
	SameSite http.SameSite

	// Secure is set for production deployments served over TLS
	Secure bool
}

// NewSessionCookiePolicy returns the default policy. Cookies are always
// HttpOnly and SameSite=Lax; Secure follows production.
func NewSessionCookiePolicy(name string, production bool) SessionCookiePolicy {
	out := SessionCookiePolicy{Name: name, Secure: production}
	out.EnsureDefaults()
	return out
}

func (p *SessionCookiePolicy) EnsureDefaults() {
	if p.Name == "" {
		p.Name = DefaultCookieName
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if p.SameSite == 0 || p.SameSite == http.SameSiteDefaultMode || p.SameSite == http.SameSiteNoneMode {
		p.SameSite = http.SameSiteLaxMode
	}
}

// Cookie builds the session cookie for token. Its lifetime equals the
// token's.
func (p SessionCookiePolicy) Cookie(token SessionToken) *http.Cookie {
	p.EnsureDefaults()
	maxAge := int(token.TTL() / time.Second)
	return &http.Cookie{
		Name:     p.Name,
		Value:    token.Token,
		Domain:   p.Domain,
		Path:     p.Path,
		Expires:  token.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

// Clear builds a cookie that removes the session cookie from the browser
func (p SessionCookiePolicy) Clear() *http.Cookie {
	p.EnsureDefaults()
	return &http.Cookie{
		Name:     p.Name,
		Value:    "",
		Domain:   p.Domain,
		Path:     p.Path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}
