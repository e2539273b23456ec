package authcore

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the core can surface to a caller.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindPolicyViolation
	KindDuplicateIdentity
	KindInvalidCredentials
	KindUnauthenticated
	KindForbidden
	KindNotFound
)

// Stable machine readable codes, sent as the "code" field of error bodies
const (
	ErrCodeInternal           = "internal_error"
	ErrCodeValidation         = "validation_error"
	ErrCodePolicyViolation    = "policy_violation"
	ErrCodeDuplicateIdentity  = "duplicate_identity"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
)

func (k Kind) String() string {
	return k.Code()
}

// Code returns the wire code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return ErrCodeValidation
	case KindPolicyViolation:
		return ErrCodePolicyViolation
	case KindDuplicateIdentity:
		return ErrCodeDuplicateIdentity
	case KindInvalidCredentials:
		return ErrCodeInvalidCredentials
	case KindUnauthenticated:
		return ErrCodeUnauthenticated
	case KindForbidden:
		return ErrCodeForbidden
	case KindNotFound:
		return ErrCodeNotFound
	default:
		return ErrCodeInternal
	}
}

// StatusCode is the only place error kinds are mapped to HTTP statuses.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation, KindPolicyViolation:
		return http.StatusBadRequest
	case KindDuplicateIdentity:
		return http.StatusConflict
	case KindInvalidCredentials, KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is the tagged error returned by every core operation.
type Error struct {
	Kind       Kind
	Message    string
	Field      string
	Violations []Violation
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a tagged error for the given kind.
func NewError(kind Kind, message string, field string) *Error {
	return &Error{Kind: kind, Message: message, Field: field}
}

// Internal wraps an unexpected failure. The message shown to callers is
// always generic; the cause only goes to the logs.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the kind of err. Errors that were not tagged by the core
// are treated as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a tagged error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// Sentinel errors returned by directories and the token verifier.
var (
	ErrNotFound           = errors.New("not found")
	ErrUniquenessConflict = errors.New("uniqueness conflict")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
)

// ConflictError is returned by directories when a write collides with an
// existing email or username. It matches ErrUniquenessConflict.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return ErrUniquenessConflict.Error()
	}
	return fmt.Sprintf("%s: %s already taken", ErrUniquenessConflict, e.Field)
}

func (e *ConflictError) Is(target error) bool { return target == ErrUniquenessConflict }

// NewConflict returns a uniqueness conflict on the given field.
func NewConflict(field string) error {
	return &ConflictError{Field: field}
}

// conflictField extracts the colliding field, if the directory reported one.
func conflictField(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}

func duplicateIdentity(err error) *Error {
	field := conflictField(err)
	msg := "An account with these details already exists"
	switch field {
	case "email":
		msg = "Email is already registered"
	case "username":
		msg = "Username is already taken"
	}
	return &Error{Kind: KindDuplicateIdentity, Message: msg, Field: field, Err: err}
}
