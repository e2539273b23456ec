// Package saml lets a SAML 2.0 identity provider sign users in. The IdP's
// assertion is reduced to an authcore.Assertion and handed to the same
// completion handler the OAuth flows use.
//
// Routes, relative to the router passed to Register:
//
//	/saml/metadata  SP metadata for the IdP
//	/saml/login     redirect to the IdP (optional ?returnTo=<path>)
//	/saml/acs       assertion consumer service
package saml

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	"github.com/gorilla/mux"

	"github.com/estately/authcore"
)

// AssertionHandler completes a federated login
type AssertionHandler func(w http.ResponseWriter, r *http.Request, a authcore.Assertion, returnTo string)

// Options configures the service provider
type Options struct {
	// RootURL is the externally visible URL the /saml routes hang off,
	// e.g. https://example.com/auth/
	RootURL string

	// IDPMetadata is used as-is when set; otherwise it is fetched from
	// MetadataURL.
	IDPMetadata *saml.EntityDescriptor
	MetadataURL string

	// LoginURL overrides the IdP's advertised redirect-binding SSO URL.
	LoginURL string

	Key         *rsa.PrivateKey
	Certificate *x509.Certificate

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// ServiceProvider is a configured SAML SP
type ServiceProvider struct {
	middleware *samlsp.Middleware
	loginURL   string
	handle     AssertionHandler
	logger     *slog.Logger
}

// LoadKeyPair reads the SP signing certificate and key from PEM files
func LoadKeyPair(certFile, keyFile string) (*rsa.PrivateKey, *x509.Certificate, error) {
	keyPair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load saml key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(keyPair.Certificate[0])
	if err != nil {
		return nil, nil, fmt.Errorf("parse saml certificate: %w", err)
	}
	key, ok := keyPair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, errors.New("saml key must be RSA")
	}
	return key, leaf, nil
}

// New builds a service provider, fetching IdP metadata if needed
func New(ctx context.Context, opts Options, handle AssertionHandler) (*ServiceProvider, error) {
	if handle == nil {
		return nil, errors.New("saml: assertion handler required")
	}
	if opts.Key == nil || opts.Certificate == nil {
		return nil, errors.New("saml: key and certificate required")
	}
	rootURL, err := url.Parse(opts.RootURL)
	if err != nil || rootURL.Host == "" {
		return nil, fmt.Errorf("saml: invalid root url %q", opts.RootURL)
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	idpMetadata := opts.IDPMetadata
	if idpMetadata == nil {
		metadataURL, err := url.Parse(opts.MetadataURL)
		if err != nil || opts.MetadataURL == "" {
			return nil, fmt.Errorf("saml: invalid metadata url %q", opts.MetadataURL)
		}
		idpMetadata, err = samlsp.FetchMetadata(ctx, client, *metadataURL)
		if err != nil {
			return nil, fmt.Errorf("saml: fetch idp metadata: %w", err)
		}
	}

	m, err := samlsp.New(samlsp.Options{
		URL:         *rootURL,
		Key:         opts.Key,
		Certificate: opts.Certificate,
		IDPMetadata: idpMetadata,
		HTTPClient:  client,
		// some IdP require the SLO request to be signed
		SignRequest:    true,
		CookieSameSite: http.SameSiteLaxMode,
	})
	if err != nil {
		return nil, fmt.Errorf("saml: %w", err)
	}

	loginURL := opts.LoginURL
	if loginURL == "" {
		loginURL = m.ServiceProvider.GetSSOBindingLocation(saml.HTTPRedirectBinding)
	}
	return &ServiceProvider{
		middleware: m,
		loginURL:   loginURL,
		handle:     handle,
		logger:     logger,
	}, nil
}

// Register mounts the SAML routes on r. crewjam's RequireAccount flow is
// not used: login is a plain redirect so the app keeps its own sign-in page.
func (sp *ServiceProvider) Register(r *mux.Router) {
	r.HandleFunc("/saml/metadata", sp.middleware.ServeMetadata).Methods(http.MethodGet)
	r.HandleFunc("/saml/login", sp.handleLogin).Methods(http.MethodGet)
	r.HandleFunc("/saml/acs", sp.handleACS).Methods(http.MethodPost)
}

func (sp *ServiceProvider) handleLogin(w http.ResponseWriter, r *http.Request) {
	m := sp.middleware
	authReq, err := m.ServiceProvider.MakeAuthenticationRequest(sp.loginURL, saml.HTTPRedirectBinding, m.ResponseBinding)
	if err != nil {
		sp.fail(w, "failed to create authn request", err)
		return
	}

	// The tracker remembers the request URL; hand it the return path instead
	returnTo, err := url.Parse(r.URL.Query().Get("returnTo"))
	if err != nil || returnTo.String() == "" {
		returnTo = &url.URL{Path: "/"}
	}
	relayState, err := m.RequestTracker.TrackRequest(w, &http.Request{URL: returnTo}, authReq.ID)
	if err != nil {
		sp.fail(w, "failed to track authn request", err)
		return
	}

	redirectURL, err := authReq.Redirect(relayState, &m.ServiceProvider)
	if err != nil {
		sp.fail(w, "failed to build idp redirect", err)
		return
	}
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

func (sp *ServiceProvider) handleACS(w http.ResponseWriter, r *http.Request) {
	m := sp.middleware
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid saml response", http.StatusBadRequest)
		return
	}

	var possibleRequestIDs []string
	if m.ServiceProvider.AllowIDPInitiated {
		possibleRequestIDs = append(possibleRequestIDs, "")
	}
	for _, tr := range m.RequestTracker.GetTrackedRequests(r) {
		possibleRequestIDs = append(possibleRequestIDs, tr.SAMLRequestID)
	}

	assertion, err := m.ServiceProvider.ParseResponse(r, possibleRequestIDs)
	if err != nil {
		var ire *saml.InvalidResponseError
		if errors.As(err, &ire) {
			sp.logger.Info("rejected saml response", "reason", ire.PrivateErr)
		}
		http.Error(w, "invalid saml response", http.StatusForbidden)
		return
	}

	returnTo := ""
	if relayState := r.Form.Get("RelayState"); relayState != "" {
		if tr, err := m.RequestTracker.GetTrackedRequest(r, relayState); err == nil {
			returnTo = tr.URI
			_ = m.RequestTracker.StopTrackingRequest(w, r, relayState)
		}
	}

	a, err := AssertionFromSAML(assertion)
	if err != nil {
		sp.logger.Info("saml assertion unusable", "error", err)
		http.Error(w, "invalid saml response", http.StatusForbidden)
		return
	}
	sp.handle(w, r, a, returnTo)
}

func (sp *ServiceProvider) fail(w http.ResponseWriter, msg string, err error) {
	sp.logger.Error(msg, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

var (
	emailAttributes = []string{
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
		"urn:oid:0.9.2342.19200300.100.1.3",
		"email",
		"mail",
	}
	nameAttributes = []string{
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
		"urn:oid:2.16.840.1.113730.3.1.241",
		"displayName",
		"name",
		"cn",
	}
	photoAttributes = []string{
		"picture",
		"photo",
	}
)

// AssertionFromSAML extracts email, display name and photo. An email-shaped
// NameID is used when no email attribute is present.
func AssertionFromSAML(assertion *saml.Assertion) (authcore.Assertion, error) {
	attrs := map[string]string{}
	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			attrs[attr.Name] = attr.Values[0].Value
			if attr.FriendlyName != "" {
				attrs[attr.FriendlyName] = attr.Values[0].Value
			}
		}
	}
	first := func(names []string) string {
		for _, n := range names {
			if v := strings.TrimSpace(attrs[n]); v != "" {
				return v
			}
		}
		return ""
	}

	out := authcore.Assertion{
		Email:       first(emailAttributes),
		DisplayName: first(nameAttributes),
		AvatarURL:   first(photoAttributes),
	}
	if out.Email == "" && assertion.Subject != nil && assertion.Subject.NameID != nil {
		if id := strings.TrimSpace(assertion.Subject.NameID.Value); authcore.ValidEmail(id) {
			out.Email = id
		}
	}
	if out.Email == "" {
		return out, errors.New("no email in saml assertion")
	}
	return out, nil
}
