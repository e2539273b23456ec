//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the
// authcore UserDirectory and ListingDirectory, for deployment on Google
// Cloud Platform. Multi-tenancy is supported through Datastore namespaces.
//
// # Datastore Kinds
//
//   - User: accounts, keyed by user id
//   - Email: uniqueness index, keyed by normalized email
//   - Username: uniqueness index, keyed by lowercased username
//   - Listing: property listings, keyed by listing id
//
// A user and its two index entities are written in one transaction, so
// two concurrent signups with the same email cannot both commit.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewStore(client, "")  // default namespace
//	tenant := gae.NewStore(client, "tenant-123")
package gae
