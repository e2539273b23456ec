//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	"github.com/estately/authcore"
)

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Username     string         `datastore:"username"`
	Email        string         `datastore:"email"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	Avatar       string         `datastore:"avatar,noindex"`
	AuthMethod   string         `datastore:"auth_method"`
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
	Version      int            `datastore:"version"`
}

func (e *UserEntity) ToUser() *authcore.User {
	return &authcore.User{
		ID:           e.Key.Name,
		Username:     e.Username,
		Email:        e.Email,
		PasswordHash: e.PasswordHash,
		Avatar:       e.Avatar,
		AuthMethod:   authcore.AuthMethod(e.AuthMethod),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func UserToEntity(u *authcore.User, key *datastore.Key) *UserEntity {
	return &UserEntity{
		Key:          key,
		Username:     u.Username,
		Email:        authcore.NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		Avatar:       u.Avatar,
		AuthMethod:   string(u.AuthMethod),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// IndexEntity claims a unique email or username for one user.
// Key format: the normalized value
type IndexEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// ListingEntity is the Datastore entity for listings
type ListingEntity struct {
	Key           *datastore.Key `datastore:"__key__"`
	Name          string         `datastore:"name"`
	Description   string         `datastore:"description,noindex"`
	Address       string         `datastore:"address"`
	RegularPrice  float64        `datastore:"regular_price"`
	DiscountPrice float64        `datastore:"discount_price"`
	Bathrooms     int            `datastore:"bathrooms"`
	Bedrooms      int            `datastore:"bedrooms"`
	Furnished     bool           `datastore:"furnished"`
	Parking       bool           `datastore:"parking"`
	Type          string         `datastore:"type"`
	Offer         bool           `datastore:"offer"`
	ImageURLs     []string       `datastore:"image_urls,noindex"`
	UserRef       string         `datastore:"user_ref"`
	CreatedAt     time.Time      `datastore:"created_at"`
	UpdatedAt     time.Time      `datastore:"updated_at"`
}

func (e *ListingEntity) ToListing() *authcore.Listing {
	return &authcore.Listing{
		ID:            e.Key.Name,
		Name:          e.Name,
		Description:   e.Description,
		Address:       e.Address,
		RegularPrice:  e.RegularPrice,
		DiscountPrice: e.DiscountPrice,
		Bathrooms:     e.Bathrooms,
		Bedrooms:      e.Bedrooms,
		Furnished:     e.Furnished,
		Parking:       e.Parking,
		Type:          e.Type,
		Offer:         e.Offer,
		ImageURLs:     e.ImageURLs,
		UserRef:       e.UserRef,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func ListingToEntity(l *authcore.Listing, key *datastore.Key) *ListingEntity {
	return &ListingEntity{
		Key:           key,
		Name:          l.Name,
		Description:   l.Description,
		Address:       l.Address,
		RegularPrice:  l.RegularPrice,
		DiscountPrice: l.DiscountPrice,
		Bathrooms:     l.Bathrooms,
		Bedrooms:      l.Bedrooms,
		Furnished:     l.Furnished,
		Parking:       l.Parking,
		Type:          l.Type,
		Offer:         l.Offer,
		ImageURLs:     l.ImageURLs,
		UserRef:       l.UserRef,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}
