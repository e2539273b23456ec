// Package fs provides filesystem-backed implementations of the authcore
// UserDirectory and ListingDirectory, storing one JSON file per record.
//
// # File Structure
//
//	{StoragePath}/
//	├── users/{id}.json
//	├── emails/{email}.json        # uniqueness index
//	├── usernames/{username}.json  # uniqueness index, lowercase
//	└── listings/{id}.json
//
// Uniqueness is enforced by exclusive creation of the index files, so it
// holds across goroutines and processes sharing the directory. Updates of
// a single record are serialized within the process.
package fs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/estately/authcore"
)

// Store implements authcore.UserDirectory and authcore.ListingDirectory
type Store struct {
	StoragePath string

	emails    uniqueIndex
	usernames uniqueIndex

	mu sync.Mutex
}

// NewStore creates a store rooted at storagePath
func NewStore(storagePath string) *Store {
	return &Store{
		StoragePath: storagePath,
		emails:      uniqueIndex{dir: filepath.Join(storagePath, "emails")},
		usernames:   uniqueIndex{dir: filepath.Join(storagePath, "usernames")},
	}
}

func (s *Store) userPath(id string) string {
	return filepath.Join(s.StoragePath, "users", url.PathEscape(id)+".json")
}

func (s *Store) listingPath(id string) string {
	return filepath.Join(s.StoragePath, "listings", url.PathEscape(id)+".json")
}

// =============================================================================
// Users
// =============================================================================

// CreateUser writes the record first and then claims its username and
// email, so an index entry never points at a missing file and the email
// entry only appears once the record is fully committed.
func (s *Store) CreateUser(ctx context.Context, user *authcore.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user.ID == "" {
		return fmt.Errorf("user id required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	path := s.userPath(user.ID)
	if _, err := os.Stat(path); err == nil {
		return authcore.NewConflict("id")
	}
	if err := writeJSONFile(path, user); err != nil {
		return err
	}

	username := authcore.NormalizeUsername(user.Username)
	if err := s.usernames.reserve(username, user.ID); err != nil {
		os.Remove(path)
		return reserveError(err, "username")
	}
	// FindByEmail resolves through this entry, so it is published last
	email := authcore.NormalizeEmail(user.Email)
	if err := s.emails.reserve(email, user.ID); err != nil {
		s.usernames.release(username, user.ID)
		os.Remove(path)
		return reserveError(err, "email")
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user authcore.User
	if err := readJSONFile(s.userPath(id), &user); err != nil {
		if os.IsNotExist(err) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := s.emails.lookup(authcore.NormalizeEmail(email))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// UpdateUser claims any new email or username before rewriting the record
// and releases the old ones afterwards.
func (s *Store) UpdateUser(ctx context.Context, id string, patch authcore.UserPatch) (*authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldEmail := authcore.NormalizeEmail(user.Email)
	oldUsername := authcore.NormalizeUsername(user.Username)

	var claimed []func()
	rollback := func() {
		for _, undo := range claimed {
			undo()
		}
	}

	if patch.Email != nil {
		newEmail := authcore.NormalizeEmail(*patch.Email)
		if newEmail != oldEmail {
			if err := s.emails.reserve(newEmail, id); err != nil {
				return nil, reserveError(err, "email")
			}
			claimed = append(claimed, func() { s.emails.release(newEmail, id) })
		}
	}
	if patch.Username != nil {
		newUsername := authcore.NormalizeUsername(*patch.Username)
		if newUsername != oldUsername {
			if err := s.usernames.reserve(newUsername, id); err != nil {
				rollback()
				return nil, reserveError(err, "username")
			}
			claimed = append(claimed, func() { s.usernames.release(newUsername, id) })
		}
	}

	patch.Apply(user)
	user.UpdatedAt = time.Now()
	if err := writeJSONFile(s.userPath(id), user); err != nil {
		rollback()
		return nil, err
	}

	if newEmail := authcore.NormalizeEmail(user.Email); newEmail != oldEmail {
		s.emails.release(oldEmail, id)
	}
	if newUsername := authcore.NormalizeUsername(user.Username); newUsername != oldUsername {
		s.usernames.release(oldUsername, id)
	}
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.emails.release(authcore.NormalizeEmail(user.Email), id); err != nil {
		return err
	}
	if err := s.usernames.release(authcore.NormalizeUsername(user.Username), id); err != nil {
		return err
	}
	if err := os.Remove(s.userPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func reserveError(err error, field string) error {
	if err == errTaken {
		return authcore.NewConflict(field)
	}
	return err
}

// =============================================================================
// Listings
// =============================================================================

func (s *Store) FindListing(ctx context.Context, id string) (*authcore.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var listing authcore.Listing
	if err := readJSONFile(s.listingPath(id), &listing); err != nil {
		if os.IsNotExist(err) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// ListingsByOwner scans the listings directory; it is linear in the number
// of listings.
func (s *Store) ListingsByOwner(ctx context.Context, userRef string) ([]*authcore.Listing, error) {
	entries, err := os.ReadDir(filepath.Join(s.StoragePath, "listings"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*authcore.Listing
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var listing authcore.Listing
		if err := readJSONFile(filepath.Join(s.StoragePath, "listings", name), &listing); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		if listing.UserRef == userRef {
			out = append(out, &listing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateListing(ctx context.Context, listing *authcore.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if listing.ID == "" {
		return fmt.Errorf("listing id required")
	}
	return writeJSONFile(s.listingPath(listing.ID), listing)
}

func (s *Store) UpdateListing(ctx context.Context, listing *authcore.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.FindListing(ctx, listing.ID); err != nil {
		return err
	}
	return writeJSONFile(s.listingPath(listing.ID), listing)
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.listingPath(id)); err != nil {
		if os.IsNotExist(err) {
			return authcore.ErrNotFound
		}
		return err
	}
	return nil
}
