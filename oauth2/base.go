// Package oauth2 runs the server-side authorization code flow against
// Google and GitHub and hands the resulting identity to authcore as an
// Assertion.
//
// Each provider serves two routes relative to where it is mounted:
//
//	/          redirect to the provider (optional ?callbackURL=<path>)
//	/callback  code exchange, user info lookup, AssertionHandler
//
// The anti-forgery state, the PKCE verifier and the post-login return path
// live in a short-lived scs session, not in cookies of their own.
package oauth2

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/oauth2"

	"github.com/estately/authcore"
)

// AssertionHandler completes a federated login. authcore.Server's
// CompleteFederatedLogin has this shape.
type AssertionHandler func(w http.ResponseWriter, r *http.Request, a authcore.Assertion, returnTo string)

const (
	sessionKeyState    = "oauth.state"
	sessionKeyVerifier = "oauth.verifier"
	sessionKeyReturnTo = "oauth.return_to"

	// DefaultAuthFailureURL receives the browser when a flow fails after
	// the state check.
	DefaultAuthFailureURL = "/signin?error=oauth"
)

var errNoEmail = errors.New("provider returned no email")

// NewFlowSessions returns a session manager suited to holding flow state:
// short lived, HttpOnly, SameSite=Lax so the provider's redirect carries it.
func NewFlowSessions(secure bool) *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = 10 * time.Minute
	sm.Cookie.Name = "oauth_flow"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = secure
	sm.Cookie.Persist = false
	return sm
}

// BaseOAuth2 holds what the Google and GitHub flows share
type BaseOAuth2 struct {
	Provider       string
	ClientId       string
	ClientSecret   string
	CallbackURL    string
	AuthFailureUrl string

	HandleAssertion AssertionHandler
	Sessions        *scs.SessionManager

	// HTTPClient is used for the code exchange and user info calls.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     *slog.Logger

	oauthConfig oauth2.Config
	fetchUser   func(ctx context.Context, token *oauth2.Token) (authcore.Assertion, error)
	mux         *http.ServeMux
}

func NewBaseOAuth2(provider, clientId, clientSecret, callbackUrl string, sessions *scs.SessionManager, handle AssertionHandler) *BaseOAuth2 {
	if sessions == nil {
		sessions = NewFlowSessions(false)
	}
	out := &BaseOAuth2{
		Provider:        provider,
		ClientId:        clientId,
		ClientSecret:    clientSecret,
		CallbackURL:     callbackUrl,
		AuthFailureUrl:  DefaultAuthFailureURL,
		HandleAssertion: handle,
		Sessions:        sessions,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
		mux: http.NewServeMux(),
	}
	out.mux.HandleFunc("/", out.handleRedirect)
	out.mux.HandleFunc("/callback", out.handleCallback)
	return out
}

// Config exposes the underlying oauth2 configuration, e.g. to point the
// endpoints at a test server.
func (b *BaseOAuth2) Config() *oauth2.Config {
	return &b.oauthConfig
}

// Handler serves the redirect and callback routes. Mount it with the
// prefix stripped.
func (b *BaseOAuth2) Handler() http.Handler {
	return b.Sessions.LoadAndSave(b.mux)
}

func (b *BaseOAuth2) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *BaseOAuth2) httpClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

// ExchangeContext makes the oauth2 library use our HTTP client
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient())
}

func (b *BaseOAuth2) handleRedirect(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	state, err := generateState()
	if err != nil {
		b.logger().Error("failed to generate oauth state", "provider", b.Provider, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	verifier := oauth2.GenerateVerifier()

	ctx := r.Context()
	b.Sessions.Put(ctx, sessionKeyState, state)
	b.Sessions.Put(ctx, sessionKeyVerifier, verifier)
	if callbackURL := r.URL.Query().Get("callbackURL"); callbackURL != "" {
		b.Sessions.Put(ctx, sessionKeyReturnTo, callbackURL)
	}

	u := b.oauthConfig.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	http.Redirect(w, r, u, http.StatusFound)
}

func (b *BaseOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := b.Sessions.PopString(ctx, sessionKeyState)
	verifier := b.Sessions.PopString(ctx, sessionKeyVerifier)
	returnTo := b.Sessions.PopString(ctx, sessionKeyReturnTo)

	if state == "" || r.FormValue("state") != state {
		b.logger().Info("oauth state mismatch", "provider", b.Provider)
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	if reason := r.FormValue("error"); reason != "" {
		b.logger().Info("provider denied authorization", "provider", b.Provider, "reason", reason)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	token, err := b.oauthConfig.Exchange(b.ExchangeContext(ctx), r.FormValue("code"), oauth2.VerifierOption(verifier))
	if err != nil {
		b.logger().Info("invalid code exchange", "provider", b.Provider, "error", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}

	assertion, err := b.fetchUser(ctx, token)
	if err != nil {
		b.logger().Info("failed to load user info", "provider", b.Provider, "error", err)
		http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
		return
	}
	b.HandleAssertion(w, r, assertion, returnTo)
}
