package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/estately/authcore"
)

// Default endpoint paths on an authcore server
const (
	DefaultSigninPath  = "/api/auth/signin"
	DefaultSignoutPath = "/api/auth/signout"
)

// AuthClient is an HTTP client that signs in once and then sends the
// session token with every request
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	signinPath    string
	signoutPath   string
	cookieName    string
}

// APIError is a non-2xx response from the server
type APIError struct {
	authcore.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%d): %s [%s]", e.Code, e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithSigninPath sets a custom signin endpoint path
func WithSigninPath(path string) ClientOption {
	return func(c *AuthClient) {
		c.signinPath = path
	}
}

// WithSignoutPath sets a custom signout endpoint path
func WithSignoutPath(path string) ClientOption {
	return func(c *AuthClient) {
		c.signoutPath = path
	}
}

// WithCookieName sets the name of the session cookie the server issues
func WithCookieName(name string) ClientOption {
	return func(c *AuthClient) {
		c.cookieName = name
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client != nil && client.Transport != nil {
			c.baseTransport = client.Transport
		}
		if client != nil {
			c.httpClient.Timeout = client.Timeout
			c.httpClient.CheckRedirect = client.CheckRedirect
		}
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a new authenticated HTTP client for a server
func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		signinPath:    DefaultSigninPath,
		signoutPath:   DefaultSignoutPath,
		cookieName:    authcore.DefaultCookieName,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = &sessionTransport{
		client: c,
		base:   c.baseTransport,
	}
	return c
}

// HTTPClient returns the underlying HTTP client with auth handling
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// GetToken returns the current session token. An expired credential is
// dropped from the store and "" is returned; the caller must log in again.
func (c *AuthClient) GetToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", nil
	}
	if !cred.Usable() {
		return "", c.forgetLocked()
	}
	return cred.AccessToken, nil
}

// GetCredential returns the stored credential for this server
func (c *AuthClient) GetCredential() (*ServerCredential, error) {
	return c.store.GetCredential(c.serverURL)
}

// Login signs in with email and password and stores the session. With
// rememberMe the server issues a long-lived session.
func (c *AuthClient) Login(email, password string, rememberMe bool) (*ServerCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := json.Marshal(authcore.SigninRequest{
		Email:      email,
		Password:   password,
		RememberMe: rememberMe,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	// Use base transport directly so a stale token is never sent
	httpClient := &http.Client{Transport: c.baseTransport, Timeout: c.httpClient.Timeout}
	resp, err := httpClient.Post(c.serverURL+c.signinPath, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var user authcore.PublicUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}

	cred, err := c.credentialFromResponse(resp)
	if err != nil {
		return nil, err
	}
	cred.UserID = user.ID
	cred.UserEmail = user.Email
	cred.Username = user.Username
	cred.RememberMe = rememberMe

	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return cred, nil
}

// credentialFromResponse reads the session cookie the server set
func (c *AuthClient) credentialFromResponse(resp *http.Response) (*ServerCredential, error) {
	now := time.Now()
	for _, cookie := range resp.Cookies() {
		if cookie.Name != c.cookieName || cookie.Value == "" {
			continue
		}
		cred := &ServerCredential{
			AccessToken: cookie.Value,
			TokenType:   "Bearer",
			CreatedAt:   now,
		}
		switch {
		case cookie.MaxAge > 0:
			cred.ExpiresAt = now.Add(time.Duration(cookie.MaxAge) * time.Second)
		case !cookie.Expires.IsZero():
			cred.ExpiresAt = cookie.Expires
		}
		return cred, nil
	}
	return nil, fmt.Errorf("server did not set the %s cookie", c.cookieName)
}

// Logout tells the server to clear the session and removes the local
// credential. The local credential is removed even if the server is
// unreachable, since sessions are not tracked server side.
func (c *AuthClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	httpClient := &http.Client{Transport: c.baseTransport, Timeout: c.httpClient.Timeout}
	resp, err := httpClient.Post(c.serverURL+c.signoutPath, "application/json", nil)
	if err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	if ferr := c.forgetLocked(); ferr != nil {
		return ferr
	}
	if err != nil {
		return fmt.Errorf("signout request failed: %w", err)
	}
	return nil
}

// IsLoggedIn returns true if there is a usable credential
func (c *AuthClient) IsLoggedIn() bool {
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil {
		return false
	}
	return cred.Usable()
}

// forgetLocked drops the stored credential. Caller must hold c.mu
func (c *AuthClient) forgetLocked() error {
	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &apiErr.ErrorResponse); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}

// sessionTransport adds the session token and forgets it once the server
// rejects it
type sessionTransport struct {
	client *AuthClient
	base   http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.GetToken()
	if err != nil {
		return nil, err
	}

	resp, err := NewAuthTransportWithBase(t.base, token).RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// There is no refresh: a rejected token means signing in again
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		t.client.mu.Lock()
		cred, _ := t.client.store.GetCredential(t.client.serverURL)
		if cred != nil && cred.AccessToken == token {
			t.client.forgetLocked()
		}
		t.client.mu.Unlock()
	}
	return resp, nil
}
