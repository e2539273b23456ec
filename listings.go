package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Listing is a property listing owned by the user in UserRef
type Listing struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Address       string    `json:"address"`
	RegularPrice  float64   `json:"regularPrice"`
	DiscountPrice float64   `json:"discountPrice"`
	Bathrooms     int       `json:"bathrooms"`
	Bedrooms      int       `json:"bedrooms"`
	Furnished     bool      `json:"furnished"`
	Parking       bool      `json:"parking"`
	Type          string    `json:"type"`
	Offer         bool      `json:"offer"`
	ImageURLs     []string  `json:"imageUrls"`
	UserRef       string    `json:"userRef"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// OwnerRef makes Listing an OwnedResource
func (l *Listing) OwnerRef() string { return l.UserRef }

// ListingInput is the mutable part of a listing. The owner is never taken
// from input.
type ListingInput struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Address       string   `json:"address"`
	RegularPrice  float64  `json:"regularPrice"`
	DiscountPrice float64  `json:"discountPrice"`
	Bathrooms     int      `json:"bathrooms"`
	Bedrooms      int      `json:"bedrooms"`
	Furnished     bool     `json:"furnished"`
	Parking       bool     `json:"parking"`
	Type          string   `json:"type"`
	Offer         bool     `json:"offer"`
	ImageURLs     []string `json:"imageUrls"`
}

// Validate checks the required listing fields
func (in *ListingInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return NewError(KindValidation, "Name is required", "name")
	case strings.TrimSpace(in.Address) == "":
		return NewError(KindValidation, "Address is required", "address")
	case in.Type != "rent" && in.Type != "sale":
		return NewError(KindValidation, "Type must be rent or sale", "type")
	case in.RegularPrice < 0 || in.DiscountPrice < 0:
		return NewError(KindValidation, "Prices must not be negative", "regularPrice")
	case in.Offer && in.DiscountPrice >= in.RegularPrice:
		return NewError(KindValidation, "Discount price must be lower than regular price", "discountPrice")
	}
	return nil
}

func (in *ListingInput) apply(l *Listing) {
	l.Name = strings.TrimSpace(in.Name)
	l.Description = in.Description
	l.Address = strings.TrimSpace(in.Address)
	l.RegularPrice = in.RegularPrice
	l.DiscountPrice = in.DiscountPrice
	l.Bathrooms = in.Bathrooms
	l.Bedrooms = in.Bedrooms
	l.Furnished = in.Furnished
	l.Parking = in.Parking
	l.Type = in.Type
	l.Offer = in.Offer
	l.ImageURLs = append([]string(nil), in.ImageURLs...)
}

// ListingDirectory is the listing store. Lookups of missing listings return
// ErrNotFound.
type ListingDirectory interface {
	FindListing(ctx context.Context, id string) (*Listing, error)
	ListingsByOwner(ctx context.Context, userRef string) ([]*Listing, error)
	CreateListing(ctx context.Context, listing *Listing) error
	UpdateListing(ctx context.Context, listing *Listing) error
	DeleteListing(ctx context.Context, id string) error
}

// ListingDetail is a listing together with its owner's public profile
type ListingDetail struct {
	*Listing
	Owner *PublicUser `json:"owner,omitempty"`
}

// ListingService runs listing mutations behind the ownership guard
type ListingService struct {
	Listings ListingDirectory
	Logger   *slog.Logger
	Now      func() time.Time

	// Users resolves listing owners for Describe. Optional.
	Users UserDirectory
}

func (s *ListingService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *ListingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Get returns a listing; reading is public
func (s *ListingService) Get(ctx context.Context, id string) (*Listing, error) {
	listing, err := s.Listings.FindListing(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewError(KindNotFound, "Listing not found", "")
		}
		return nil, s.internal("find listing", err)
	}
	return listing, nil
}

// Describe returns a listing with its owner's public fields. Owner is nil
// when the owning account no longer exists.
func (s *ListingService) Describe(ctx context.Context, id string) (*ListingDetail, error) {
	listing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &ListingDetail{Listing: listing}
	if s.Users == nil {
		return detail, nil
	}

	owner, err := s.Users.FindByID(ctx, listing.UserRef)
	switch {
	case err == nil:
		public := owner.Public()
		detail.Owner = &public
	case errors.Is(err, ErrNotFound):
	default:
		return nil, s.internal("find listing owner", err)
	}
	return detail, nil
}

// ListByOwner returns the listings of userID, which must be the caller
func (s *ListingService) ListByOwner(ctx context.Context, ac *AuthorizationContext, userID string) ([]*Listing, error) {
	if err := AuthorizeSelf(ac, userID); err != nil {
		return nil, err
	}
	listings, err := s.Listings.ListingsByOwner(ctx, userID)
	if err != nil {
		return nil, s.internal("list listings", err)
	}
	return listings, nil
}

// Create stores a new listing owned by the caller
func (s *ListingService) Create(ctx context.Context, ac *AuthorizationContext, in ListingInput) (*Listing, error) {
	if ac == nil || ac.SubjectID == "" {
		return nil, NewError(KindUnauthenticated, "Unauthorized", "")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	listing := &Listing{ID: uuid.NewString(), UserRef: ac.SubjectID, CreatedAt: now, UpdatedAt: now}
	in.apply(listing)
	if err := s.Listings.CreateListing(ctx, listing); err != nil {
		return nil, s.internal("create listing", err)
	}
	return listing, nil
}

// Edit replaces the mutable fields of a listing the caller owns
func (s *ListingService) Edit(ctx context.Context, ac *AuthorizationContext, id string, in ListingInput) (*Listing, error) {
	listing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeOwner(ac, listing); err != nil {
		s.logger().Info("listing edit denied", "listing_id", id, "subject", subjectOf(ac))
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	in.apply(listing)
	listing.UpdatedAt = s.now()
	if err := s.Listings.UpdateListing(ctx, listing); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewError(KindNotFound, "Listing not found", "")
		}
		return nil, s.internal("update listing", err)
	}
	return listing, nil
}

// Delete removes a listing the caller owns
func (s *ListingService) Delete(ctx context.Context, ac *AuthorizationContext, id string) error {
	listing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := AuthorizeOwner(ac, listing); err != nil {
		s.logger().Info("listing delete denied", "listing_id", id, "subject", subjectOf(ac))
		return err
	}
	if err := s.Listings.DeleteListing(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewError(KindNotFound, "Listing not found", "")
		}
		return s.internal("delete listing", err)
	}
	return nil
}

func (s *ListingService) internal(op string, err error) error {
	s.logger().Error("listing operation failed", "op", op, "error", err)
	return Internal(op, err)
}

func subjectOf(ac *AuthorizationContext) string {
	if ac == nil {
		return ""
	}
	return ac.SubjectID
}
