package authcore

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type authContextKey struct{}

// AuthorizationContext is the verified subject of one request. It is never
// persisted.
type AuthorizationContext struct {
	SubjectID    string
	SubjectEmail string
	ExpiresAt    time.Time
}

// AuthorizationGuard resolves the subject of a request and enforces
// ownership before mutations reach storage.
type AuthorizationGuard struct {
	Tokens *TokenIssuer

	// Name of the session cookie. Defaults to DefaultCookieName.
	CookieName string

	// Header checked for a "Bearer <token>" value. Defaults to Authorization.
	AuthTokenHeaderName string

	Logger *slog.Logger
}

// EnsureReasonableDefaults fills unset fields. Call it once before the
// guard is shared; Authenticate never writes to the guard.
func (g *AuthorizationGuard) EnsureReasonableDefaults() {
	g.CookieName = g.cookieName()
	g.AuthTokenHeaderName = g.headerName()
}

func (g *AuthorizationGuard) cookieName() string {
	if g.CookieName == "" {
		return DefaultCookieName
	}
	return g.CookieName
}

func (g *AuthorizationGuard) headerName() string {
	if g.AuthTokenHeaderName == "" {
		return "Authorization"
	}
	return g.AuthTokenHeaderName
}

func (g *AuthorizationGuard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// Authenticate extracts and verifies the session token carried by r, from
// the session cookie or a bearer header.
func (g *AuthorizationGuard) Authenticate(r *http.Request) (*AuthorizationContext, error) {
	var candidates []string
	if cookie, err := r.Cookie(g.cookieName()); err == nil && cookie.Value != "" {
		candidates = append(candidates, cookie.Value)
	}
	if tok := BearerToken(r.Header.Get(g.headerName())); tok != "" {
		candidates = append(candidates, tok)
	}
	if len(candidates) == 0 {
		return nil, NewError(KindUnauthenticated, "Unauthorized", "")
	}

	var lastErr error
	for _, tok := range candidates {
		ac, err := g.AuthenticateToken(tok)
		if err == nil {
			return ac, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// AuthenticateToken verifies a raw session token
func (g *AuthorizationGuard) AuthenticateToken(token string) (*AuthorizationContext, error) {
	st, err := g.Tokens.Verify(token)
	if err != nil {
		msg := "Invalid token"
		if errors.Is(err, ErrTokenExpired) {
			msg = "Token expired"
		}
		g.logger().Debug("token rejected", "error", err)
		return nil, &Error{Kind: KindUnauthenticated, Message: msg, Err: err}
	}
	return &AuthorizationContext{
		SubjectID:    st.SubjectID,
		SubjectEmail: st.SubjectEmail,
		ExpiresAt:    st.ExpiresAt,
	}, nil
}

// AuthorizeOwner allows the mutation only when the subject owns resource.
func AuthorizeOwner(ac *AuthorizationContext, resource OwnedResource) error {
	if ac == nil {
		return NewError(KindUnauthenticated, "Unauthorized", "")
	}
	if resource == nil || ac.SubjectID == "" || ac.SubjectID != resource.OwnerRef() {
		return NewError(KindForbidden, "You can only modify your own resources!", "")
	}
	return nil
}

// AuthorizeSelf allows self-service operations on the subject's own account.
func AuthorizeSelf(ac *AuthorizationContext, targetID string) error {
	if ac == nil {
		return NewError(KindUnauthenticated, "Unauthorized", "")
	}
	if ac.SubjectID == "" || ac.SubjectID != targetID {
		return NewError(KindForbidden, "You can only update your own account!", "")
	}
	return nil
}

// EnsureUser rejects requests without a valid session with 401 and stores
// the AuthorizationContext on the request context for downstream handlers.
func (g *AuthorizationGuard) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, err := g.Authenticate(r)
		if err != nil {
			writeError(w, g.logger(), err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), ac)))
	})
}

// ExtractUser attaches the AuthorizationContext when one is present but
// lets anonymous requests through.
func (g *AuthorizationGuard) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ac, err := g.Authenticate(r); err == nil {
			r = r.WithContext(ContextWithAuth(r.Context(), ac))
		}
		next.ServeHTTP(w, r)
	})
}

// ContextWithAuth returns ctx carrying ac
func ContextWithAuth(ctx context.Context, ac *AuthorizationContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// AuthFromContext returns the AuthorizationContext stored by EnsureUser
func AuthFromContext(ctx context.Context) (*AuthorizationContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(*AuthorizationContext)
	return ac, ok && ac != nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
