//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/estately/authcore"
)

// Kind constants for Datastore entities
const (
	KindUser     = "User"
	KindEmail    = "Email"
	KindUsername = "Username"
	KindListing  = "Listing"
)

// Store implements authcore.UserDirectory and authcore.ListingDirectory
// using Google Cloud Datastore
type Store struct {
	client    *datastore.Client
	namespace string
	now       func() time.Time
}

// NewStore creates a new Datastore-backed store
func NewStore(client *datastore.Client, namespace string) *Store {
	return &Store{
		client:    client,
		namespace: namespace,
		now:       time.Now,
	}
}

func (s *Store) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

// claim fails with a conflict on field if key is held by another user
func claim(tx *datastore.Transaction, key *datastore.Key, userID, field string, now time.Time) error {
	var existing IndexEntity
	err := tx.Get(key, &existing)
	switch {
	case err == nil && existing.UserID != userID:
		return authcore.NewConflict(field)
	case err == nil:
		return nil
	case errors.Is(err, datastore.ErrNoSuchEntity):
		_, err = tx.Put(key, &IndexEntity{Key: key, UserID: userID, CreatedAt: now})
		return err
	default:
		return err
	}
}

// ============================================================================
// Users
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *authcore.User) error {
	now := s.now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	key := s.namespacedKey(KindUser, user.ID)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing UserEntity
		if err := tx.Get(key, &existing); err == nil {
			return authcore.NewConflict("id")
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if err := claim(tx, s.namespacedKey(KindEmail, authcore.NormalizeEmail(user.Email)), user.ID, "email", now); err != nil {
			return err
		}
		if err := claim(tx, s.namespacedKey(KindUsername, authcore.NormalizeUsername(user.Username)), user.ID, "username", now); err != nil {
			return err
		}
		_, err := tx.Put(key, UserToEntity(user, key))
		return err
	})
	return err
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	key := s.namespacedKey(KindUser, id)
	var entity UserEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

// FindByEmail resolves through the Email index entity, which is strongly
// consistent unlike a property query.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	var ix IndexEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindEmail, authcore.NormalizeEmail(email)), &ix); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return s.FindByID(ctx, ix.UserID)
}

func (s *Store) UpdateUser(ctx context.Context, id string, patch authcore.UserPatch) (*authcore.User, error) {
	key := s.namespacedKey(KindUser, id)
	var updated *authcore.User

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authcore.ErrNotFound
			}
			return err
		}
		user := entity.ToUser()
		oldEmail := authcore.NormalizeEmail(user.Email)
		oldUsername := authcore.NormalizeUsername(user.Username)

		patch.Apply(user)
		now := s.now()
		user.UpdatedAt = now

		if email := authcore.NormalizeEmail(user.Email); email != oldEmail {
			if err := claim(tx, s.namespacedKey(KindEmail, email), id, "email", now); err != nil {
				return err
			}
			if err := tx.Delete(s.namespacedKey(KindEmail, oldEmail)); err != nil {
				return err
			}
		}
		if username := authcore.NormalizeUsername(user.Username); username != oldUsername {
			if err := claim(tx, s.namespacedKey(KindUsername, username), id, "username", now); err != nil {
				return err
			}
			if err := tx.Delete(s.namespacedKey(KindUsername, oldUsername)); err != nil {
				return err
			}
		}

		next := UserToEntity(user, key)
		next.Version = entity.Version + 1
		if _, err := tx.Put(key, next); err != nil {
			return err
		}
		updated = next.ToUser()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	key := s.namespacedKey(KindUser, id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authcore.ErrNotFound
			}
			return err
		}
		return tx.DeleteMulti([]*datastore.Key{
			key,
			s.namespacedKey(KindEmail, authcore.NormalizeEmail(entity.Email)),
			s.namespacedKey(KindUsername, authcore.NormalizeUsername(entity.Username)),
		})
	})
	return err
}

// ============================================================================
// Listings
// ============================================================================

func (s *Store) FindListing(ctx context.Context, id string) (*authcore.Listing, error) {
	var entity ListingEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindListing, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return entity.ToListing(), nil
}

// ListingsByOwner returns the listings owned by userRef, newest first
func (s *Store) ListingsByOwner(ctx context.Context, userRef string) ([]*authcore.Listing, error) {
	query := datastore.NewQuery(KindListing).
		FilterField("user_ref", "=", userRef).
		Order("-created_at")
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var listings []*authcore.Listing
	it := s.client.Run(ctx, query)
	for {
		var entity ListingEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		listings = append(listings, entity.ToListing())
	}
	return listings, nil
}

func (s *Store) CreateListing(ctx context.Context, listing *authcore.Listing) error {
	key := s.namespacedKey(KindListing, listing.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing ListingEntity
		if err := tx.Get(key, &existing); err == nil {
			return authcore.NewConflict("id")
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err := tx.Put(key, ListingToEntity(listing, key))
		return err
	})
	return err
}

func (s *Store) UpdateListing(ctx context.Context, listing *authcore.Listing) error {
	key := s.namespacedKey(KindListing, listing.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing ListingEntity
		if err := tx.Get(key, &existing); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authcore.ErrNotFound
			}
			return err
		}
		_, err := tx.Put(key, ListingToEntity(listing, key))
		return err
	})
	return err
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	key := s.namespacedKey(KindListing, id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity ListingEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authcore.ErrNotFound
			}
			return err
		}
		return tx.Delete(key)
	})
	return err
}
