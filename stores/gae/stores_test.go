//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estately/authcore"
)

func TestEntityConversion(t *testing.T) {
	key := datastore.NameKey(KindUser, "u1", nil)
	user := &authcore.User{ID: "u1", Username: "Jane", Email: "Jane@Example.com", AuthMethod: authcore.AuthMethodCredential}
	back := UserToEntity(user, key).ToUser()
	assert.Equal(t, "u1", back.ID)
	assert.Equal(t, "jane@example.com", back.Email)
	assert.Equal(t, "Jane", back.Username)

	lkey := datastore.NameKey(KindListing, "l1", nil)
	listing := &authcore.Listing{ID: "l1", Name: "Loft", UserRef: "u1", ImageURLs: []string{"a"}}
	assert.Equal(t, listing, ListingToEntity(listing, lkey).ToListing())
}

// newEmulatorStore returns a store in a fresh namespace on the Datastore
// emulator, or skips when no emulator is configured.
func newEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	client, err := datastore.NewClient(context.Background(), "authcore-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewStore(client, "test-"+uuid.NewString()[:8])
}

func TestStoreUniqueness(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &authcore.User{ID: "u1", Username: "jane", Email: "jane@example.com"}))

	err := store.CreateUser(ctx, &authcore.User{ID: "u2", Username: "other", Email: "JANE@example.com"})
	assert.ErrorIs(t, err, authcore.ErrUniquenessConflict)

	err = store.CreateUser(ctx, &authcore.User{ID: "u3", Username: "Jane", Email: "x@example.com"})
	assert.ErrorIs(t, err, authcore.ErrUniquenessConflict)

	got, err := store.FindByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = store.FindByID(ctx, "u2")
	assert.ErrorIs(t, err, authcore.ErrNotFound)
}

func TestStoreConcurrentCreate(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.CreateUser(ctx, &authcore.User{
				ID:       fmt.Sprintf("u%d", i),
				Username: fmt.Sprintf("name%d", i),
				Email:    "race@example.com",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestStoreUpdateAndDelete(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &authcore.User{ID: "u1", Username: "jane", Email: "jane@example.com"}))
	email := "jane.doe@example.com"
	updated, err := store.UpdateUser(ctx, "u1", authcore.UserPatch{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)

	_, err = store.FindByEmail(ctx, "jane@example.com")
	assert.ErrorIs(t, err, authcore.ErrNotFound)

	require.NoError(t, store.DeleteUser(ctx, "u1"))
	assert.ErrorIs(t, store.DeleteUser(ctx, "u1"), authcore.ErrNotFound)
	require.NoError(t, store.CreateUser(ctx, &authcore.User{ID: "u2", Username: "jane", Email: email}))
}

func TestStoreListings(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	listing := &authcore.Listing{ID: "l1", Name: "Loft", Address: "1 Main", Type: "rent", UserRef: "u1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateListing(ctx, listing))
	assert.ErrorIs(t, store.CreateListing(ctx, listing), authcore.ErrUniquenessConflict)

	got, err := store.FindListing(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerRef())

	assert.ErrorIs(t, store.UpdateListing(ctx, &authcore.Listing{ID: "missing"}), authcore.ErrNotFound)
	require.NoError(t, store.DeleteListing(ctx, "l1"))
	assert.ErrorIs(t, store.DeleteListing(ctx, "l1"), authcore.ErrNotFound)
}
