package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default session lifetimes
const (
	DefaultSessionTTL  = 7 * 24 * time.Hour
	DefaultRememberTTL = 30 * 24 * time.Hour
)

// Claims carried by a session token
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionToken is a signed, stateless session credential. It is never
// persisted; validity is signature plus expiry.
type SessionToken struct {
	Token        string    `json:"-"`
	SubjectID    string    `json:"subject_id"`
	SubjectEmail string    `json:"subject_email"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TTL is the lifetime the token was issued with
func (t SessionToken) TTL() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// TokenIssuer signs and verifies HS256 session tokens. It holds only
// immutable config and is safe for concurrent use.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// TokenOption configures a TokenIssuer
type TokenOption func(*TokenIssuer)

// WithIssuer sets and enforces the iss claim
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) { t.issuer = issuer }
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) { t.now = now }
}

// NewTokenIssuer creates an issuer for the given signing key
func NewTokenIssuer(secret []byte, opts ...TokenOption) *TokenIssuer {
	out := &TokenIssuer{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// Issue signs a token for the subject that expires after ttl
func (t *TokenIssuer) Issue(subjectID, subjectEmail string, ttl time.Duration) (SessionToken, error) {
	if subjectID == "" {
		return SessionToken{}, fmt.Errorf("subject id required")
	}
	if ttl <= 0 {
		return SessionToken{}, fmt.Errorf("ttl must be positive")
	}

	now := t.now()
	claims := Claims{
		Email: subjectEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return SessionToken{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return SessionToken{
		Token:        signed,
		SubjectID:    subjectID,
		SubjectEmail: subjectEmail,
		IssuedAt:     claims.IssuedAt.Time,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// Verify checks signature and expiry. It returns ErrTokenExpired once the
// clock has passed the expiry and ErrTokenInvalid for anything else.
func (t *TokenIssuer) Verify(tokenString string) (SessionToken, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionToken{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return SessionToken{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return SessionToken{}, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return SessionToken{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	out := SessionToken{
		Token:        tokenString,
		SubjectID:    claims.Subject,
		SubjectEmail: claims.Email,
		ExpiresAt:    claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
