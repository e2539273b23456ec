//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the authcore
// UserDirectory and ListingDirectory. It works with any database GORM
// supports; cmd/authcore opens it on PostgreSQL.
//
// # Database Schema
//
// AutoMigrate creates the following tables:
//   - users: accounts, with unique indexes on email and lowercased username
//   - listings: property listings, indexed by owning user
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	store := gormstore.NewStore(db)
package gorm
