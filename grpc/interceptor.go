package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/estately/authcore"
)

// TokenVerifier verifies a raw session token. *authcore.AuthorizationGuard
// satisfies it.
type TokenVerifier interface {
	AuthenticateToken(token string) (*authcore.AuthorizationContext, error)
}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	Verifier TokenVerifier

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(verifier TokenVerifier) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Verifier:      verifier,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(verifier TokenVerifier, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(verifier TokenVerifier) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// authenticate returns ctx with the verified AuthorizationContext attached.
// A bad token is rejected even on public methods.
func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	token := TokenFromIncomingContext(ctx, c.Config)
	if token == "" {
		if c.RequireAuth && !c.PublicMethods[method] {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	if c.Verifier == nil {
		return nil, status.Error(codes.Internal, "no token verifier configured")
	}
	ac, err := c.Verifier.AuthenticateToken(token)
	if err != nil {
		return nil, StatusFromError(err)
	}
	return authcore.ContextWithAuth(ctx, ac), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies the
// bearer token in the call metadata.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies the
// bearer token in the stream metadata.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}

type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context { return s.ctx }

// UnaryErrorInterceptor converts authcore errors returned by handlers into
// gRPC statuses.
func UnaryErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return resp, StatusFromError(err)
		}
		return resp, nil
	}
}

// StatusFromError maps an error kind onto a gRPC status. Internal errors
// carry a generic message.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var e *authcore.Error
	if !errors.As(err, &e) || e.Kind == authcore.KindInternal {
		return status.Error(codes.Internal, "Internal server error")
	}
	return status.Error(codeOf(e.Kind), e.Message)
}

func codeOf(k authcore.Kind) codes.Code {
	switch k {
	case authcore.KindValidation, authcore.KindPolicyViolation:
		return codes.InvalidArgument
	case authcore.KindDuplicateIdentity:
		return codes.AlreadyExists
	case authcore.KindInvalidCredentials, authcore.KindUnauthenticated:
		return codes.Unauthenticated
	case authcore.KindForbidden:
		return codes.PermissionDenied
	case authcore.KindNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}
