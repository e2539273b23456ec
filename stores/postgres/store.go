// Package postgres implements the authcore UserDirectory and
// ListingDirectory on PostgreSQL through pgx.
//
// Email and username uniqueness are table constraints; a violation is
// returned as an authcore.ConflictError naming the field.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/estately/authcore"
)

//go:embed schema.sql
var schema string

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements authcore.UserDirectory and authcore.ListingDirectory.
type Store struct {
	pool Pool
	now  func() time.Time
}

// NewStore creates a store over pool.
func NewStore(pool Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return oops.Code("MIGRATE_FAILED").Wrap(err)
	}
	return nil
}

// constraintFields maps unique constraints to the field they guard.
var constraintFields = map[string]string{
	"users_email_unique":    "email",
	"users_username_unique": "username",
	"users_pkey":            "id",
	"listings_pkey":         "id",
}

// conflict converts a unique violation into an authcore conflict.
func conflict(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil, false
	}
	field, ok := constraintFields[pgErr.ConstraintName]
	if !ok {
		field = pgErr.ConstraintName
	}
	return authcore.NewConflict(field), true
}

// =============================================================================
// Users
// =============================================================================

const userColumns = `id, username, email, password_hash, avatar, auth_method, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, user *authcore.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, username_key, email, password_hash,
			avatar, auth_method, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID,
		user.Username,
		authcore.NormalizeUsername(user.Username),
		authcore.NormalizeEmail(user.Email),
		user.PasswordHash,
		user.Avatar,
		string(user.AuthMethod),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if cerr, ok := conflict(err); ok {
			return oops.Code("USER_CONFLICT").With("id", user.ID).Wrap(cerr)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID).
			Wrap(err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(authcore.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("id", id).Wrap(err)
	}
	return user, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, authcore.NormalizeEmail(email))
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(authcore.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("operation", "get user by email").Wrap(err)
	}
	return user, nil
}

// UpdateUser applies the patch in a single statement; nil fields keep
// their current value.
func (s *Store) UpdateUser(ctx context.Context, id string, patch authcore.UserPatch) (*authcore.User, error) {
	var usernameKey, email *string
	if patch.Username != nil {
		k := authcore.NormalizeUsername(*patch.Username)
		usernameKey = &k
	}
	if patch.Email != nil {
		e := authcore.NormalizeEmail(*patch.Email)
		email = &e
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE users SET
			username      = COALESCE($2, username),
			username_key  = COALESCE($3, username_key),
			email         = COALESCE($4, email),
			password_hash = COALESCE($5, password_hash),
			avatar        = COALESCE($6, avatar),
			updated_at    = $7
		WHERE id = $1
		RETURNING `+userColumns,
		id, patch.Username, usernameKey, email, patch.PasswordHash, patch.Avatar, s.now(),
	)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(authcore.ErrNotFound)
	}
	if err != nil {
		if cerr, ok := conflict(err); ok {
			return nil, oops.Code("USER_CONFLICT").With("id", id).Wrap(cerr)
		}
		return nil, oops.Code("USER_UPDATE_FAILED").With("id", id).Wrap(err)
	}
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(authcore.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*authcore.User, error) {
	var user authcore.User
	var method string
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Avatar,
		&method,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.AuthMethod = authcore.AuthMethod(method)
	return &user, nil
}

// =============================================================================
// Listings
// =============================================================================

const listingColumns = `id, name, description, address, regular_price, discount_price,
	bathrooms, bedrooms, furnished, parking, type, offer, image_urls, user_ref,
	created_at, updated_at`

func (s *Store) FindListing(ctx context.Context, id string) (*authcore.Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	listing, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("LISTING_NOT_FOUND").With("id", id).Wrap(authcore.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("LISTING_GET_FAILED").With("id", id).Wrap(err)
	}
	return listing, nil
}

// ListingsByOwner returns the listings owned by userRef, newest first.
func (s *Store) ListingsByOwner(ctx context.Context, userRef string) ([]*authcore.Listing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE user_ref = $1
		ORDER BY created_at DESC
	`, userRef)
	if err != nil {
		return nil, oops.Code("LISTING_QUERY_FAILED").With("user_ref", userRef).Wrap(err)
	}
	defer rows.Close()

	var out []*authcore.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, oops.Code("LISTING_SCAN_FAILED").Wrap(err)
		}
		out = append(out, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("LISTING_QUERY_FAILED").With("user_ref", userRef).Wrap(err)
	}
	return out, nil
}

func (s *Store) CreateListing(ctx context.Context, l *authcore.Listing) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, listingArgs(l)...)
	if err != nil {
		if cerr, ok := conflict(err); ok {
			return oops.Code("LISTING_CONFLICT").With("id", l.ID).Wrap(cerr)
		}
		return oops.Code("LISTING_CREATE_FAILED").With("id", l.ID).Wrap(err)
	}
	return nil
}

func (s *Store) UpdateListing(ctx context.Context, l *authcore.Listing) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE listings SET
			name = $2, description = $3, address = $4,
			regular_price = $5, discount_price = $6,
			bathrooms = $7, bedrooms = $8, furnished = $9, parking = $10,
			type = $11, offer = $12, image_urls = $13, user_ref = $14,
			created_at = $15, updated_at = $16
		WHERE id = $1
	`, listingArgs(l)...)
	if err != nil {
		return oops.Code("LISTING_UPDATE_FAILED").With("id", l.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("LISTING_NOT_FOUND").With("id", l.ID).Wrap(authcore.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteListing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return oops.Code("LISTING_DELETE_FAILED").With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("LISTING_NOT_FOUND").With("id", id).Wrap(authcore.ErrNotFound)
	}
	return nil
}

func listingArgs(l *authcore.Listing) []any {
	images := l.ImageURLs
	if images == nil {
		images = []string{}
	}
	return []any{
		l.ID, l.Name, l.Description, l.Address,
		l.RegularPrice, l.DiscountPrice,
		l.Bathrooms, l.Bedrooms, l.Furnished, l.Parking,
		l.Type, l.Offer, images, l.UserRef,
		l.CreatedAt, l.UpdatedAt,
	}
}

func scanListing(row pgx.Row) (*authcore.Listing, error) {
	var l authcore.Listing
	if err := row.Scan(
		&l.ID, &l.Name, &l.Description, &l.Address,
		&l.RegularPrice, &l.DiscountPrice,
		&l.Bathrooms, &l.Bedrooms, &l.Furnished, &l.Parking,
		&l.Type, &l.Offer, &l.ImageURLs, &l.UserRef,
		&l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}
