// Package grpc carries authcore session tokens across gRPC calls. Clients
// attach the token as "authorization: Bearer <token>" metadata; the server
// interceptors verify it and expose the resulting AuthorizationContext to
// handlers.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/estately/authcore"
)

// Default metadata keys for authentication context.
const (
	// DefaultMetadataKeyAuthorization carries "Bearer <token>"
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyUserID is set on outgoing calls so downstream
	// services can log the caller without re-verifying the token
	DefaultMetadataKeyUserID = "x-user-id"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization is the gRPC metadata key for the bearer token.
	// Defaults to "authorization".
	MetadataKeyAuthorization string

	// MetadataKeyUserID defaults to "x-user-id".
	MetadataKeyUserID string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		MetadataKeyUserID:        DefaultMetadataKeyUserID,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
}

// TokenFromIncomingContext returns the bearer token from incoming metadata,
// or "" if there is none.
func TokenFromIncomingContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(config.MetadataKeyAuthorization) {
		if tok := authcore.BearerToken(v); tok != "" {
			return tok
		}
	}
	return ""
}

// TokenToOutgoingContext attaches token as bearer metadata to outgoing calls.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// ForwardAuth propagates the token and subject of an authenticated call to
// a downstream service.
func ForwardAuth(ctx context.Context) context.Context {
	if tok := TokenFromIncomingContext(ctx, nil); tok != "" {
		ctx = TokenToOutgoingContext(ctx, tok)
	}
	if ac, ok := authcore.AuthFromContext(ctx); ok {
		ctx = metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyUserID, ac.SubjectID)
	}
	return ctx
}

// UserIDFromContext returns the verified subject id, or "" when the call
// is unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if ac, ok := authcore.AuthFromContext(ctx); ok {
		return ac.SubjectID
	}
	return ""
}

// IsAuthenticated returns true if the interceptor verified a token for this call.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}
