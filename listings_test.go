package authcore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estately/authcore"
)

func TestListingInputValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(in *authcore.ListingInput)
		field string
	}{
		{"valid", func(in *authcore.ListingInput) {}, ""},
		{"missing name", func(in *authcore.ListingInput) { in.Name = "  " }, "name"},
		{"missing address", func(in *authcore.ListingInput) { in.Address = "" }, "address"},
		{"unknown type", func(in *authcore.ListingInput) { in.Type = "lease" }, "type"},
		{"negative price", func(in *authcore.ListingInput) { in.RegularPrice = -1 }, "regularPrice"},
		{"discount above price", func(in *authcore.ListingInput) {
			in.Offer = true
			in.DiscountPrice = 2000
		}, "discountPrice"},
		{"valid offer", func(in *authcore.ListingInput) {
			in.Offer = true
			in.DiscountPrice = 1200
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validListing()
			tt.edit(&in)
			err := in.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var e *authcore.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, authcore.KindValidation, e.Kind)
			assert.Equal(t, tt.field, e.Field)
		})
	}
}

func TestListingServiceOwnership(t *testing.T) {
	srv, _ := setupServer(t)
	ctx := context.Background()
	owner := &authcore.AuthorizationContext{SubjectID: "u1"}
	intruder := &authcore.AuthorizationContext{SubjectID: "u2"}

	listing, err := srv.Listings.Create(ctx, owner, validListing())
	require.NoError(t, err)
	assert.Equal(t, "u1", listing.OwnerRef())

	_, err = srv.Listings.Create(ctx, nil, validListing())
	assert.Equal(t, authcore.KindUnauthenticated, authcore.KindOf(err))

	_, err = srv.Listings.Edit(ctx, intruder, listing.ID, validListing())
	assert.Equal(t, authcore.KindForbidden, authcore.KindOf(err))
	assert.Equal(t, authcore.KindForbidden, authcore.KindOf(srv.Listings.Delete(ctx, intruder, listing.ID)))

	// Ownership is checked before the input, so an intruder learns nothing
	// from validation errors
	bad := validListing()
	bad.Name = ""
	_, err = srv.Listings.Edit(ctx, intruder, listing.ID, bad)
	assert.Equal(t, authcore.KindForbidden, authcore.KindOf(err))

	_, err = srv.Listings.Edit(ctx, owner, "missing", validListing())
	assert.Equal(t, authcore.KindNotFound, authcore.KindOf(err))

	require.NoError(t, srv.Listings.Delete(ctx, owner, listing.ID))
	_, err = srv.Listings.Get(ctx, listing.ID)
	assert.Equal(t, authcore.KindNotFound, authcore.KindOf(err))
}

func TestUserListings(t *testing.T) {
	srv, _ := setupServer(t)
	clock := newClock()
	srv.Listings.Now = clock.Now

	jane := signup(t, srv, "jane", "jane@example.com", "Valid123!")
	bob := signup(t, srv, "bob", "bob@example.com", "Valid123!")
	janeAC := &authcore.AuthorizationContext{SubjectID: jane.ID}

	first, err := srv.Listings.Create(context.Background(), janeAC, validListing())
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := srv.Listings.Create(context.Background(), janeAC, validListing())
	require.NoError(t, err)
	_, err = srv.Listings.Create(context.Background(), &authcore.AuthorizationContext{SubjectID: bob.ID}, validListing())
	require.NoError(t, err)

	session := signin(t, srv, "jane@example.com", "Valid123!")
	rr := do(srv, http.MethodGet, "/api/user/listings/"+jane.ID, nil, session.Cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var listings []authcore.Listing
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listings))
	require.Len(t, listings, 2)
	assert.Equal(t, second.ID, listings[0].ID, "newest first")
	assert.Equal(t, first.ID, listings[1].ID)

	rr = do(srv, http.MethodGet, "/api/user/listings/"+bob.ID, nil, session.Cookie)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(srv, http.MethodGet, "/api/user/listings/"+jane.ID, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetListingIncludesOwner(t *testing.T) {
	srv, _ := setupServer(t)
	jane := signup(t, srv, "jane", "jane@example.com", "Valid123!")
	listing, err := srv.Listings.Create(context.Background(), &authcore.AuthorizationContext{SubjectID: jane.ID}, validListing())
	require.NoError(t, err)

	rr := do(srv, http.MethodGet, "/api/listing/get/"+listing.ID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "password")

	var got struct {
		authcore.Listing
		Owner *authcore.PublicUser `json:"owner"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, listing.ID, got.ID)
	assert.Equal(t, jane.ID, got.UserRef)
	require.NotNil(t, got.Owner)
	assert.Equal(t, "jane", got.Owner.Username)
	assert.Equal(t, "jane@example.com", got.Owner.Email)

	// A listing whose owner is gone is still readable
	require.NoError(t, srv.Accounts.DeleteAccount(context.Background(), &authcore.AuthorizationContext{SubjectID: jane.ID}, jane.ID))
	detail, err := srv.Listings.Describe(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Owner)
	assert.Equal(t, listing.ID, detail.ID)
}
