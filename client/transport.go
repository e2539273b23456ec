package client

import (
	"net/http"
)

// AuthTransport adds a fixed Bearer token to every request. Use it when the
// token comes from somewhere other than Login, e.g. a token minted by a
// TokenIssuer for a service call.
type AuthTransport struct {
	Base  http.RoundTripper
	Token string
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Token != "" {
		req2 := req.Clone(req.Context())
		req2.Header.Set("Authorization", "Bearer "+t.Token)
		req = req2
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewAuthTransport creates an AuthTransport over http.DefaultTransport
func NewAuthTransport(token string) *AuthTransport {
	return NewAuthTransportWithBase(http.DefaultTransport, token)
}

// NewAuthTransportWithBase creates an AuthTransport with a custom base transport
func NewAuthTransportWithBase(base http.RoundTripper, token string) *AuthTransport {
	return &AuthTransport{
		Base:  base,
		Token: token,
	}
}
