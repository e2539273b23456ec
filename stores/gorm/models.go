//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/estately/authcore"
)

// StringSlice is a helper type for storing string slices in GORM
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringSlice) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}
}

// UserModel is the GORM model for users
type UserModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Username     string    `gorm:"size:64;not null"`
	UsernameKey  string    `gorm:"size:64;not null;uniqueIndex:users_username_unique"`
	Email        string    `gorm:"size:255;not null;uniqueIndex:users_email_unique"`
	PasswordHash string    `gorm:"size:128;not null"`
	Avatar       string    `gorm:"size:1024"`
	AuthMethod   string    `gorm:"size:32;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *authcore.User {
	return &authcore.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Avatar:       m.Avatar,
		AuthMethod:   authcore.AuthMethod(m.AuthMethod),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// UserToModel fills in the normalized keys the unique indexes rely on.
func UserToModel(u *authcore.User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		UsernameKey:  authcore.NormalizeUsername(u.Username),
		Email:        authcore.NormalizeEmail(u.Email),
		PasswordHash: u.PasswordHash,
		Avatar:       u.Avatar,
		AuthMethod:   string(u.AuthMethod),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// ListingModel is the GORM model for listings
type ListingModel struct {
	ID            string      `gorm:"primaryKey;size:64"`
	Name          string      `gorm:"size:255;not null"`
	Description   string      `gorm:"type:text"`
	Address       string      `gorm:"size:512;not null"`
	RegularPrice  float64
	DiscountPrice float64
	Bathrooms     int
	Bedrooms      int
	Furnished     bool
	Parking       bool
	Type          string      `gorm:"size:16;not null"`
	Offer         bool
	ImageURLs     StringSlice `gorm:"type:text"`
	UserRef       string      `gorm:"size:64;not null;index"`
	CreatedAt     time.Time   `gorm:"autoCreateTime"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime"`
}

func (ListingModel) TableName() string {
	return "listings"
}

func (m *ListingModel) ToListing() *authcore.Listing {
	return &authcore.Listing{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Address:       m.Address,
		RegularPrice:  m.RegularPrice,
		DiscountPrice: m.DiscountPrice,
		Bathrooms:     m.Bathrooms,
		Bedrooms:      m.Bedrooms,
		Furnished:     m.Furnished,
		Parking:       m.Parking,
		Type:          m.Type,
		Offer:         m.Offer,
		ImageURLs:     []string(m.ImageURLs),
		UserRef:       m.UserRef,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func ListingToModel(l *authcore.Listing) *ListingModel {
	return &ListingModel{
		ID:            l.ID,
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
		ImageURLs:     StringSlice(l.ImageURLs),
		UserRef:       l.UserRef,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}
