package authcore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Assertion is a verified identity handed over by an external provider
// (Google, GitHub, a SAML IdP).
type Assertion struct {
	DisplayName string `json:"name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"photo"`
}

// IdentityVerifier checks a credential minted by a federated identity
// provider (an ID token) and returns the identity it vouches for.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, credential string) (Assertion, error)
}

// FederatedSigninRequest carries a provider credential for
// POST /api/auth/google.
type FederatedSigninRequest struct {
	Credential string `json:"credential"`
}

const (
	usernameSuffixLen = 4
	suffixAlphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// OAuthProvisioner maps a federated assertion to an existing or new account
// and establishes a session for it.
type OAuthProvisioner struct {
	Users    UserDirectory
	Hasher   PasswordHasher
	Sessions *Sessions
	Logger   *slog.Logger

	// MaxAttempts bounds how often creation is retried after losing a
	// uniqueness race. Defaults to 5.
	MaxAttempts uint64

	// Now is the clock used for record timestamps
	Now func() time.Time
}

func (p *OAuthProvisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *OAuthProvisioner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Provision returns a session for the account owning a.Email, creating a
// federated account if none exists. Losing a concurrent creation race for
// the same email resolves to the winner's account.
func (p *OAuthProvisioner) Provision(ctx context.Context, a Assertion) (*Session, error) {
	a.Email = NormalizeEmail(a.Email)
	a.DisplayName = strings.TrimSpace(a.DisplayName)
	if a.Email == "" {
		return nil, NewError(KindValidation, "Email is required", "email")
	}

	user, err := p.Users.FindByEmail(ctx, a.Email)
	if err == nil {
		return p.Sessions.Establish(user, false)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, p.internal("find user", err)
	}

	placeholder, err := RandomSecret(16)
	if err != nil {
		return nil, p.internal("generate placeholder", err)
	}
	hash, err := p.Hasher.Hash(ctx, placeholder)
	if err != nil {
		return nil, p.internal("hash placeholder", err)
	}

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 5
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewConstant(10*time.Millisecond))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		username, err := FederatedUsername(a.DisplayName, a.Email)
		if err != nil {
			return err
		}
		now := p.now()
		candidate := &User{
			ID:           uuid.NewString(),
			Username:     username,
			Email:        a.Email,
			PasswordHash: hash,
			Avatar:       a.AvatarURL,
			AuthMethod:   AuthMethodFederated,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if candidate.Avatar == "" {
			candidate.Avatar = DefaultAvatar
		}

		cerr := p.Users.CreateUser(ctx, candidate)
		if cerr == nil {
			user = candidate
			p.logger().Info("federated user provisioned", "user_id", user.ID)
			return nil
		}
		if !errors.Is(cerr, ErrUniquenessConflict) {
			return cerr
		}

		// Someone else may have created this email in the meantime
		existing, ferr := p.Users.FindByEmail(ctx, a.Email)
		if ferr == nil {
			p.logger().Info("federated provisioning lost race", "user_id", existing.ID)
			user = existing
			return nil
		}
		if !errors.Is(ferr, ErrNotFound) {
			return ferr
		}
		// Username collision; try again with a fresh suffix
		return retry.RetryableError(cerr)
	})
	if err != nil {
		if errors.Is(err, ErrUniquenessConflict) {
			return nil, duplicateIdentity(err)
		}
		return nil, p.internal("provision user", err)
	}

	return p.Sessions.Establish(user, false)
}

func (p *OAuthProvisioner) internal(op string, err error) error {
	p.logger().Error("oauth provisioning failed", "op", op, "error", err)
	return Internal(op, err)
}

// FederatedUsername derives a username from a display name: lowercased,
// whitespace stripped, plus a random suffix. Falls back to the local part
// of the email when the display name is empty.
func FederatedUsername(displayName, email string) (string, error) {
	base := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, displayName)
	if base == "" {
		base, _, _ = strings.Cut(email, "@")
		base = strings.ToLower(base)
	}
	if runes := []rune(base); len(runes) > maxUsernameLength-usernameSuffixLen {
		base = string(runes[:maxUsernameLength-usernameSuffixLen])
	}

	b := make([]byte, usernameSuffixLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate suffix: %w", err)
	}
	for i := range b {
		b[i] = suffixAlphabet[int(b[i])%len(suffixAlphabet)]
	}
	return base + string(b), nil
}

// RandomSecret returns n random bytes, hex encoded
func RandomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
