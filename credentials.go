package authcore

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SignupRequest carries the fields submitted to create a credential account
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SigninRequest carries a credential login attempt
type SigninRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// maxUsernameLength is counted in runes, matching the varchar(64) columns
const maxUsernameLength = 64

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Normalize trims the username and normalizes the email in place
func (r *SignupRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = NormalizeEmail(r.Email)
}

// Validate checks presence and shape of the fields. Password complexity is
// left to the PasswordPolicy.
func (r *SignupRequest) Validate() error {
	switch {
	case r.Username == "":
		return NewError(KindValidation, "All fields are required.", "username")
	case r.Email == "":
		return NewError(KindValidation, "All fields are required.", "email")
	case r.Password == "":
		return NewError(KindValidation, "All fields are required.", "password")
	}
	if utf8.RuneCountInString(r.Username) > maxUsernameLength {
		return NewError(KindValidation, "Username is too long", "username")
	}
	if !ValidEmail(r.Email) {
		return NewError(KindValidation, "Invalid email format", "email")
	}
	return nil
}

// Validate checks that both fields are present
func (r *SigninRequest) Validate() error {
	if r.Email == "" {
		return NewError(KindValidation, "Email and password are required.", "email")
	}
	if r.Password == "" {
		return NewError(KindValidation, "Email and password are required.", "password")
	}
	return nil
}

// ValidEmail does a basic shape check of an email address
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}
