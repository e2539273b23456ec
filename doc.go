// Package authcore is the identity and session-authorization core of the
// listings application.
//
// It turns a submitted credential (email and password, or a federated
// assertion from Google, GitHub or a SAML IdP) into a verified identity,
// issues a signed stateless session token, and gates every mutating
// operation behind an ownership check against that identity.
//
// # Components
//
//   - PasswordHasher: salted bcrypt hashing on a bounded worker budget
//   - PasswordPolicy: complexity rules for new and changed passwords
//   - CredentialAuthenticator: signup and signin
//   - OAuthProvisioner: federated assertion to existing or new account
//   - TokenIssuer: HS256 session tokens, verification without shared state
//   - SessionCookiePolicy: one cookie shape for every login flow
//   - AuthorizationGuard: request authentication, AuthorizeOwner, AuthorizeSelf
//
// Storage is delegated to a UserDirectory and a ListingDirectory. The
// stores subpackages provide filesystem, PostgreSQL, GORM and Cloud
// Datastore implementations; all of them enforce email and username
// uniqueness themselves rather than relying on a lookup before insert.
//
// # Basic Usage
//
//	cfg, err := authcore.LoadConfig()
//	store := fs.NewStore(cfg.StorePath)
//	srv := authcore.New(cfg, store, store, slog.Default())
//	http.ListenAndServe(cfg.Addr, srv.Handler())
//
// # Errors
//
// Every operation returns *Error tagged with a Kind. Kind.StatusCode is the
// only mapping from kinds to HTTP statuses; internal errors are logged with
// their cause and reach clients only as a generic message.
package authcore
