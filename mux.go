package authcore

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

// Server wires the identity core together and exposes it over HTTP
type Server struct {
	Config        Config
	Hasher        *BcryptHasher
	Tokens        *TokenIssuer
	Sessions      *Sessions
	Authenticator *CredentialAuthenticator
	Provisioner   *OAuthProvisioner
	Guard         *AuthorizationGuard
	Accounts      *AccountService
	Listings      *ListingService
	Logger        *slog.Logger

	// Identity verifies credentials posted to /api/auth/google. Without one
	// that route rejects every request.
	Identity IdentityVerifier

	router *mux.Router
}

// New builds a Server from configuration and the two directories
func New(cfg Config, users UserDirectory, listings ListingDirectory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	hasher := NewBcryptHasher(cfg.BcryptCost, cfg.HashConcurrency)
	tokens := NewTokenIssuer([]byte(cfg.JWTSecret), WithIssuer(cfg.JWTIssuer))
	cookies := NewSessionCookiePolicy(cfg.CookieName, cfg.Production)
	cookies.Domain = cfg.CookieDomain

	sessions := NewSessions(tokens, cookies)
	if cfg.SessionTTL > 0 {
		sessions.SessionTTL = cfg.SessionTTL
	}
	if cfg.RememberTTL > 0 {
		sessions.RememberTTL = cfg.RememberTTL
	}

	authn := &CredentialAuthenticator{
		Users:    users,
		Hasher:   hasher,
		Policy:   DefaultPasswordPolicy(),
		Sessions: sessions,
		Logger:   logger,
	}

	s := &Server{
		Config:        cfg,
		Hasher:        hasher,
		Tokens:        tokens,
		Sessions:      sessions,
		Authenticator: authn,
		Provisioner: &OAuthProvisioner{
			Users:    users,
			Hasher:   hasher,
			Sessions: sessions,
			Logger:   logger,
		},
		Guard: &AuthorizationGuard{
			Tokens:     tokens,
			CookieName: cookies.Name,
			Logger:     logger,
		},
		Accounts: &AccountService{
			Users:         users,
			Authenticator: authn,
			Logger:        logger,
		},
		Listings: &ListingService{
			Listings: listings,
			Users:    users,
			Logger:   logger,
		},
		Logger: logger,
	}
	s.Guard.EnsureReasonableDefaults()
	return s
}

// Handler returns the HTTP handler for all routes
func (s *Server) Handler() http.Handler {
	return s.Router()
}

// Router returns the route table, creating it on first use. Callers may
// mount extra handlers (OAuth redirects, SAML) on it.
func (s *Server) Router() *mux.Router {
	if s.router != nil {
		return s.router
	}
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	auth.HandleFunc("/signin", s.handleSignin).Methods(http.MethodPost)
	auth.HandleFunc("/google", s.handleOAuth).Methods(http.MethodPost)
	auth.HandleFunc("/signout", s.handleSignout).Methods(http.MethodGet, http.MethodPost)

	user := api.PathPrefix("/user").Subrouter()
	user.Use(s.Guard.EnsureUser)
	user.HandleFunc("/update/{id}", s.handleUpdateUser).Methods(http.MethodPost)
	user.HandleFunc("/delete/{id}", s.handleDeleteUser).Methods(http.MethodDelete)
	user.HandleFunc("/listings/{id}", s.handleUserListings).Methods(http.MethodGet)

	listing := api.PathPrefix("/listing").Subrouter()
	listing.HandleFunc("/get/{id}", s.handleGetListing).Methods(http.MethodGet)
	guarded := listing.NewRoute().Subrouter()
	guarded.Use(s.Guard.EnsureUser)
	guarded.HandleFunc("/create", s.handleCreateListing).Methods(http.MethodPost)
	guarded.HandleFunc("/update/{id}", s.handleEditListing).Methods(http.MethodPost)
	guarded.HandleFunc("/delete/{id}", s.handleDeleteListing).Methods(http.MethodDelete)

	s.router = r
	return r
}

// CompleteFederatedLogin provisions the asserted identity, sets the session
// cookie and redirects to returnTo. It is the landing point of the OAuth
// and SAML redirect flows.
func (s *Server) CompleteFederatedLogin(w http.ResponseWriter, r *http.Request, a Assertion, returnTo string) {
	session, err := s.Provisioner.Provision(r.Context(), a)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	s.Sessions.Write(w, session)
	http.Redirect(w, r, s.safeRedirect(returnTo), http.StatusFound)
}

// safeRedirect only allows relative paths or URLs on the configured base
func (s *Server) safeRedirect(target string) string {
	if target == "" {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil {
		return "/"
	}
	if u.Scheme == "" && u.Host == "" && len(u.Path) > 0 && u.Path[0] == '/' && (len(u.Path) < 2 || u.Path[1] != '/') {
		return u.String()
	}
	base, err := url.Parse(s.Config.BaseURL)
	if err == nil && base.Host != "" && u.Scheme == base.Scheme && u.Host == base.Host {
		return u.String()
	}
	return "/"
}
