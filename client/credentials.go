// Package client is a Go client for an authcore server. It signs in with
// email and password, keeps the issued session token in a CredentialStore
// and attaches it as a Bearer token to later requests.
package client

import (
	"time"
)

// ExpiryGrace treats a token this close to expiry as already expired, so a
// request is not sent with a token the server rejects in flight.
const ExpiryGrace = 30 * time.Second

// ServerCredential is the session a client holds for one server
type ServerCredential struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	UserID      string    `json:"user_id,omitempty"`
	UserEmail   string    `json:"user_email,omitempty"`
	Username    string    `json:"username,omitempty"`
	RememberMe  bool      `json:"remember_me,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsExpired returns true if the access token has expired
func (c *ServerCredential) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// IsExpiringSoon returns true if the token expires within the given duration
func (c *ServerCredential) IsExpiringSoon(within time.Duration) bool {
	return !c.ExpiresAt.IsZero() && time.Now().Add(within).After(c.ExpiresAt)
}

// Usable reports whether the credential can still be sent
func (c *ServerCredential) Usable() bool {
	return c != nil && c.AccessToken != "" && !c.IsExpiringSoon(ExpiryGrace)
}

// CredentialStore persists credentials per server
type CredentialStore interface {
	// GetCredential returns the credential for serverURL, or nil if none
	GetCredential(serverURL string) (*ServerCredential, error)

	SetCredential(serverURL string, cred *ServerCredential) error

	RemoveCredential(serverURL string) error

	// ListServers returns every server with a stored credential
	ListServers() ([]string, error)

	// Save flushes pending changes, if the store buffers them
	Save() error
}
