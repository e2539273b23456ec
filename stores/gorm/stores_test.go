//go:build !wasm
// +build !wasm

package gorm

import (
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/estately/authcore"
)

func TestStringSlice(t *testing.T) {
	v, err := StringSlice{"a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)

	v, err = StringSlice(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var s StringSlice
	require.NoError(t, s.Scan([]byte(`["x"]`)))
	assert.Equal(t, StringSlice{"x"}, s)
	require.NoError(t, s.Scan(`["y","z"]`))
	assert.Equal(t, StringSlice{"y", "z"}, s)
	require.NoError(t, s.Scan(nil))
	assert.Nil(t, s)
	assert.Error(t, s.Scan(42))
}

func TestUserToModelNormalizesKeys(t *testing.T) {
	now := time.Now()
	user := &authcore.User{
		ID:           "u1",
		Username:     "Jane",
		Email:        " Jane@Example.COM ",
		PasswordHash: "hash",
		AuthMethod:   authcore.AuthMethodFederated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	model := UserToModel(user)
	assert.Equal(t, "jane", model.UsernameKey)
	assert.Equal(t, "Jane", model.Username)
	assert.Equal(t, "jane@example.com", model.Email)

	back := model.ToUser()
	assert.Equal(t, authcore.AuthMethodFederated, back.AuthMethod)
	assert.Equal(t, "jane@example.com", back.Email)
}

func TestListingModelRoundTrip(t *testing.T) {
	l := &authcore.Listing{ID: "l1", Name: "Loft", Address: "1 Main", Type: "sale", ImageURLs: []string{"a"}, UserRef: "u1"}
	assert.Equal(t, l, ListingToModel(l).ToListing())
}

func TestConflictOf(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantField string
		wantOK    bool
	}{
		{"email index", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_unique"}, "email", true},
		{"username index", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_username_unique"}), "username", true},
		{"translated", gorm.ErrDuplicatedKey, "", true},
		{"other pg error", &pgconn.PgError{Code: pgerrcode.NotNullViolation}, "", false},
		{"not found", gorm.ErrRecordNotFound, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, ok := conflictOf(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantField, field)
		})
	}
}
