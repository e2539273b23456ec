package authcore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CredentialAuthenticator handles password signup and signin
type CredentialAuthenticator struct {
	// Durable user store; enforces email and username uniqueness
	Users UserDirectory

	// Hashes and verifies passwords
	Hasher PasswordHasher

	// Complexity rules for new passwords
	Policy PasswordPolicy

	// Issues the session on successful signin
	Sessions *Sessions

	Logger *slog.Logger

	// Now is the clock used for record timestamps
	Now func() time.Time

	dummyOnce sync.Once
	dummyHash string
	dummyErr  error
}

func (a *CredentialAuthenticator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *CredentialAuthenticator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Signup validates the request, hashes the password and creates the user.
// No session is issued.
func (a *CredentialAuthenticator) Signup(ctx context.Context, req SignupRequest) (PublicUser, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return PublicUser{}, err
	}
	if err := a.Policy.Check(req.Password); err != nil {
		return PublicUser{}, err
	}

	hash, err := a.Hasher.Hash(ctx, req.Password)
	if err != nil {
		return PublicUser{}, a.internal("hash password", err)
	}

	now := a.now()
	user := &User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Avatar:       DefaultAvatar,
		AuthMethod:   AuthMethodCredential,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUniquenessConflict) {
			a.logger().Info("signup rejected", "reason", "duplicate", "field", conflictField(err))
			return PublicUser{}, duplicateIdentity(err)
		}
		return PublicUser{}, a.internal("create user", err)
	}

	a.logger().Info("user registered", "user_id", user.ID)
	return user.Public(), nil
}

// Signin verifies email and password and issues a session. Unknown emails
// and wrong passwords produce the same error after the same amount of
// hashing work.
func (a *CredentialAuthenticator) Signin(ctx context.Context, req SigninRequest) (*Session, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := a.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, a.internal("find user", err)
		}
		if err := a.burnVerify(ctx, req.Password); err != nil {
			return nil, err
		}
		a.logger().Debug("signin failed", "reason", "unknown email")
		return nil, invalidCredentials()
	}

	ok, err := a.checkPassword(ctx, user, req.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		a.logger().Debug("signin failed", "reason", "password mismatch", "user_id", user.ID)
		return nil, invalidCredentials()
	}

	return a.Sessions.Establish(user, req.RememberMe)
}

// VerifyPassword re-checks the current password of an existing user
func (a *CredentialAuthenticator) VerifyPassword(ctx context.Context, user *User, password string) error {
	ok, err := a.checkPassword(ctx, user, password)
	if err != nil {
		return err
	}
	if !ok {
		return NewError(KindInvalidCredentials, "Invalid current password.", "currentPassword")
	}
	return nil
}

func (a *CredentialAuthenticator) checkPassword(ctx context.Context, user *User, password string) (bool, error) {
	if user.PasswordHash == "" {
		return false, a.burnVerify(ctx, password)
	}
	ok, err := a.Hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		if ctx.Err() != nil {
			return false, a.internal("verify password", err)
		}
		// A corrupt stored hash never authenticates
		a.logger().Error("stored password hash unusable", "user_id", user.ID, "error", err)
		return false, nil
	}
	return ok, nil
}

// burnVerify spends the same work as a real verification so a missing
// account cannot be told apart by latency.
func (a *CredentialAuthenticator) burnVerify(ctx context.Context, password string) error {
	a.dummyOnce.Do(func() {
		a.dummyHash, a.dummyErr = a.Hasher.Hash(context.Background(), "authcore-dummy-password")
	})
	if a.dummyErr != nil {
		return a.internal("dummy hash", a.dummyErr)
	}
	if _, err := a.Hasher.Verify(ctx, password, a.dummyHash); err != nil {
		return a.internal("dummy verify", err)
	}
	return nil
}

func (a *CredentialAuthenticator) internal(op string, err error) error {
	a.logger().Error("credential auth failed", "op", op, "error", err)
	return Internal(op, err)
}

func invalidCredentials() error {
	return NewError(KindInvalidCredentials, "Invalid credentials", "")
}
