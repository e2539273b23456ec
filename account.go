package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// AccountUpdate is a self-service change to the caller's account. Empty
// fields are left untouched. Changing Email or Password requires
// CurrentPassword.
type AccountUpdate struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	Avatar          string `json:"avatar"`
	CurrentPassword string `json:"currentPassword"`
}

// AccountService implements self-service account changes. Every operation
// is authorized against the caller before anything is read or written.
type AccountService struct {
	Users  UserDirectory
	Logger *slog.Logger

	// Authenticator supplies password verification, hashing and policy
	Authenticator *CredentialAuthenticator
}

func (s *AccountService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// UpdateAccount applies upd to the account targetID, which must be the
// caller's own.
func (s *AccountService) UpdateAccount(ctx context.Context, ac *AuthorizationContext, targetID string, upd AccountUpdate) (PublicUser, error) {
	if err := AuthorizeSelf(ac, targetID); err != nil {
		return PublicUser{}, err
	}

	var patch UserPatch
	if name := strings.TrimSpace(upd.Username); name != "" {
		if utf8.RuneCountInString(name) > maxUsernameLength {
			return PublicUser{}, NewError(KindValidation, "Username is too long", "username")
		}
		patch.Username = &name
	}
	if upd.Avatar != "" {
		patch.Avatar = &upd.Avatar
	}

	if upd.Email != "" || upd.Password != "" {
		if upd.CurrentPassword == "" {
			return PublicUser{}, NewError(KindValidation, "Current password is required to make these changes.", "currentPassword")
		}
		user, err := s.Users.FindByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return PublicUser{}, NewError(KindNotFound, "User not found", "")
			}
			return PublicUser{}, s.internal("find user", err)
		}
		if err := s.Authenticator.VerifyPassword(ctx, user, upd.CurrentPassword); err != nil {
			return PublicUser{}, err
		}

		if upd.Email != "" {
			email := NormalizeEmail(upd.Email)
			if !ValidEmail(email) {
				return PublicUser{}, NewError(KindValidation, "Invalid email format", "email")
			}
			patch.Email = &email
		}
		if upd.Password != "" {
			if err := s.Authenticator.Policy.Check(upd.Password); err != nil {
				return PublicUser{}, err
			}
			hash, err := s.Authenticator.Hasher.Hash(ctx, upd.Password)
			if err != nil {
				return PublicUser{}, s.internal("hash password", err)
			}
			patch.PasswordHash = &hash
		}
	}

	if patch.IsEmpty() {
		user, err := s.Users.FindByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return PublicUser{}, NewError(KindNotFound, "User not found", "")
			}
			return PublicUser{}, s.internal("find user", err)
		}
		return user.Public(), nil
	}

	updated, err := s.Users.UpdateUser(ctx, targetID, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrUniquenessConflict):
			return PublicUser{}, duplicateIdentity(err)
		case errors.Is(err, ErrNotFound):
			return PublicUser{}, NewError(KindNotFound, "User not found", "")
		}
		return PublicUser{}, s.internal("update user", err)
	}

	s.logger().Info("account updated", "user_id", targetID)
	return updated.Public(), nil
}

// DeleteAccount removes the caller's own account
func (s *AccountService) DeleteAccount(ctx context.Context, ac *AuthorizationContext, targetID string) error {
	if err := AuthorizeSelf(ac, targetID); err != nil {
		return err
	}
	if err := s.Users.DeleteUser(ctx, targetID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewError(KindNotFound, "User not found", "")
		}
		return s.internal("delete user", err)
	}
	s.logger().Info("account deleted", "user_id", targetID)
	return nil
}

func (s *AccountService) internal(op string, err error) error {
	s.logger().Error("account operation failed", "op", op, "error", err)
	return Internal(op, err)
}
