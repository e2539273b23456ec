package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"

	"github.com/estately/authcore"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("expected %s, got %s", DefaultMetadataKeyAuthorization, config.MetadataKeyAuthorization)
	}
	if config.MetadataKeyUserID != DefaultMetadataKeyUserID {
		t.Errorf("expected %s, got %s", DefaultMetadataKeyUserID, config.MetadataKeyUserID)
	}
}

func TestConfigEnsureDefaults(t *testing.T) {
	config := &Config{}
	config.EnsureDefaults()
	if config.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Errorf("expected default authorization key, got %s", config.MetadataKeyAuthorization)
	}

	config = &Config{MetadataKeyAuthorization: "x-session"}
	config.EnsureDefaults()
	if config.MetadataKeyAuthorization != "x-session" {
		t.Errorf("custom key overwritten: %s", config.MetadataKeyAuthorization)
	}
}

func TestTokenFromIncomingContext(t *testing.T) {
	tests := []struct {
		name string
		md   metadata.MD
		want string
	}{
		{"no metadata", nil, ""},
		{"bearer", metadata.Pairs("authorization", "Bearer abc"), "abc"},
		{"lowercase scheme", metadata.Pairs("authorization", "bearer abc"), "abc"},
		{"wrong scheme", metadata.Pairs("authorization", "Basic abc"), ""},
		{"empty", metadata.Pairs("authorization", ""), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			if got := TokenFromIncomingContext(ctx, nil); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTokenFromIncomingContext_CustomKey(t *testing.T) {
	md := metadata.Pairs("x-session", "Bearer xyz")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if got := TokenFromIncomingContext(ctx, &Config{MetadataKeyAuthorization: "x-session"}); got != "xyz" {
		t.Errorf("expected xyz, got %q", got)
	}
	if got := TokenFromIncomingContext(ctx, nil); got != "" {
		t.Errorf("default key should not see custom header, got %q", got)
	}
}

func TestTokenToOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "tok")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer tok" {
		t.Errorf("unexpected authorization metadata: %v", got)
	}
}

func TestForwardAuth(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer tok"))
	ctx = authcore.ContextWithAuth(ctx, &authcore.AuthorizationContext{SubjectID: "user-1"})

	md, _ := metadata.FromOutgoingContext(ForwardAuth(ctx))
	if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer tok" {
		t.Errorf("token not forwarded: %v", got)
	}
	if got := md.Get(DefaultMetadataKeyUserID); len(got) != 1 || got[0] != "user-1" {
		t.Errorf("subject not forwarded: %v", got)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("expected unauthenticated context")
	}
	ctx := authcore.ContextWithAuth(context.Background(), &authcore.AuthorizationContext{SubjectID: "user-1"})
	if got := UserIDFromContext(ctx); got != "user-1" {
		t.Errorf("expected user-1, got %q", got)
	}
	if !IsAuthenticated(ctx) {
		t.Error("expected authenticated context")
	}
}
