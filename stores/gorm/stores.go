//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/estately/authcore"
)

// AutoMigrate runs database migrations for the authcore tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&ListingModel{},
	)
}

// Store implements authcore.UserDirectory and authcore.ListingDirectory
// using GORM
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var indexFields = map[string]string{
	"users_email_unique":    "email",
	"users_username_unique": "username",
	"users_pkey":            "id",
	"listings_pkey":         "id",
}

// conflictOf reports whether err is a unique violation and, if the driver
// tells us which index fired, the field it guards.
func conflictOf(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		if f, known := indexFields[pgErr.ConstraintName]; known {
			return f, true
		}
		return pgErr.ConstraintName, true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", true
	}
	return "", false
}

// userConflict builds the conflict error for a failed write of model. When
// the driver does not name the index, the holder of the email is looked up;
// if that lookup fails the field is left unnamed.
func (s *Store) userConflict(ctx context.Context, field string, model *UserModel) error {
	if field == "" && model.Email != "" {
		var count int64
		err := s.db.WithContext(ctx).Model(&UserModel{}).
			Where("email = ? AND id <> ?", model.Email, model.ID).
			Count(&count).Error
		switch {
		case err != nil:
			field = ""
		case count > 0:
			field = "email"
		default:
			field = "username"
		}
	} else if field == "" {
		field = "username"
	}
	return authcore.NewConflict(field)
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, user *authcore.User) error {
	model := UserToModel(user)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if field, ok := conflictOf(err); ok {
			return s.userConflict(ctx, field, model)
		}
		return fmt.Errorf("create user: %w", err)
	}
	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "email = ?", authcore.NormalizeEmail(email)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, patch authcore.UserPatch) (*authcore.User, error) {
	var updated *UserModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return authcore.ErrNotFound
			}
			return err
		}

		user := model.ToUser()
		patch.Apply(user)
		next := UserToModel(user)
		if err := tx.Save(next).Error; err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		if field, ok := conflictOf(err); ok {
			candidate := &UserModel{ID: id}
			if patch.Email != nil {
				candidate.Email = authcore.NormalizeEmail(*patch.Email)
			}
			return nil, s.userConflict(ctx, field, candidate)
		}
		return nil, err
	}
	return updated.ToUser(), nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

// =============================================================================
// Listings
// =============================================================================

func (s *Store) FindListing(ctx context.Context, id string) (*authcore.Listing, error) {
	var model ListingModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authcore.ErrNotFound
		}
		return nil, err
	}
	return model.ToListing(), nil
}

// ListingsByOwner returns the listings owned by userRef, newest first
func (s *Store) ListingsByOwner(ctx context.Context, userRef string) ([]*authcore.Listing, error) {
	var models []ListingModel
	if err := s.db.WithContext(ctx).Where("user_ref = ?", userRef).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	listings := make([]*authcore.Listing, len(models))
	for i := range models {
		listings[i] = models[i].ToListing()
	}
	return listings, nil
}

func (s *Store) CreateListing(ctx context.Context, listing *authcore.Listing) error {
	model := ListingToModel(listing)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if field, ok := conflictOf(err); ok {
			if field == "" {
				field = "id"
			}
			return authcore.NewConflict(field)
		}
		return err
	}
	listing.CreatedAt = model.CreatedAt
	listing.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *Store) UpdateListing(ctx context.Context, listing *authcore.Listing) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ListingModel
		if err := tx.Select("id").First(&existing, "id = ?", listing.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return authcore.ErrNotFound
			}
			return err
		}
		return tx.Save(ListingToModel(listing)).Error
	})
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&ListingModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrNotFound
	}
	return nil
}
