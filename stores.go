package authcore

import (
	"context"
	"strings"
	"time"
)

// AuthMethod records how an account was first established
type AuthMethod string

const (
	AuthMethodCredential AuthMethod = "credential"
	AuthMethodFederated  AuthMethod = "federated"
)

// DefaultAvatar is used when an account is created without one
const DefaultAvatar = "https://cdn-icons-png.flaticon.com/512/149/149071.png"

// User is the full account record held by a UserDirectory
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash"`
	Avatar       string     `json:"avatar"`
	AuthMethod   AuthMethod `json:"auth_method"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PublicUser is the only projection of a User that leaves the core.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

// Public strips everything but the public fields
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.Avatar,
	}
}

// UserPatch holds the fields to change on an existing user. Nil fields are
// left untouched.
type UserPatch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	Avatar       *string
}

// IsEmpty reports whether the patch changes nothing
func (p UserPatch) IsEmpty() bool {
	return p.Username == nil && p.Email == nil && p.PasswordHash == nil && p.Avatar == nil
}

// Apply copies the set fields onto u
func (p UserPatch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
}

// UserDirectory is the durable user store.
//
// Implementations must enforce uniqueness of email and username atomically:
// two concurrent CreateUser calls for the same email must not both succeed,
// and the loser gets an error matching ErrUniquenessConflict (preferably a
// *ConflictError naming the field). Lookups of missing users return
// ErrNotFound.
type UserDirectory interface {
	// CreateUser inserts a new user. user.ID is assigned by the caller.
	CreateUser(ctx context.Context, user *User) error

	// FindByEmail looks up a user by normalized email
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID looks up a user by id
	FindByID(ctx context.Context, id string) (*User, error)

	// UpdateUser applies patch to the user with the given id and returns
	// the updated record
	UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error)

	// DeleteUser removes the user and releases its email and username
	DeleteUser(ctx context.Context, id string) error
}

// OwnedResource is anything whose mutation is restricted to its owner.
type OwnedResource interface {
	OwnerRef() string
}

// NormalizeEmail trims and lowercases an email for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername is the key directories use for username uniqueness
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
