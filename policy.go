package authcore

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule names a single password complexity requirement
type Rule string

const (
	RuleMinLength Rule = "min_length"
	RuleMaxLength Rule = "max_length"
	RuleUppercase Rule = "uppercase"
	RuleLowercase Rule = "lowercase"
	RuleDigit     Rule = "digit"
	RuleSymbol    Rule = "symbol"
)

// DefaultSymbols is the set of characters that satisfy RuleSymbol
const DefaultSymbols = "@$!%*?&"

// bcrypt ignores everything past 72 bytes
const maxPasswordBytes = 72

// Violation is one failed rule
type Violation struct {
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

// PasswordPolicy holds the complexity rules applied to new and changed
// passwords. It is never applied to generated placeholder passwords.
type PasswordPolicy struct {
	MinLength int
	Symbols   string

	// StopAtFirst makes Validate return only the first violation found
	StopAtFirst bool
}

// DefaultPasswordPolicy requires 8 characters with upper, lower, digit and
// one of DefaultSymbols.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8, Symbols: DefaultSymbols}
}

func (p *PasswordPolicy) EnsureDefaults() {
	if p.MinLength <= 0 {
		p.MinLength = 8
	}
	if p.Symbols == "" {
		p.Symbols = DefaultSymbols
	}
}

// Validate returns the violated rules in a fixed order, or nil.
func (p PasswordPolicy) Validate(password string) []Violation {
	p.EnsureDefaults()

	var out []Violation
	add := func(rule Rule, msg string) bool {
		out = append(out, Violation{Rule: rule, Message: msg})
		return p.StopAtFirst
	}

	if utf8.RuneCountInString(password) < p.MinLength {
		if add(RuleMinLength, fmt.Sprintf("Password must be at least %d characters long.", p.MinLength)) {
			return out
		}
	}
	if len(password) > maxPasswordBytes {
		if add(RuleMaxLength, fmt.Sprintf("Password must be at most %d bytes long.", maxPasswordBytes)) {
			return out
		}
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(p.Symbols, r):
			symbol = true
		}
	}

	if !upper && add(RuleUppercase, "Password must contain at least one uppercase letter.") {
		return out
	}
	if !lower && add(RuleLowercase, "Password must contain at least one lowercase letter.") {
		return out
	}
	if !digit && add(RuleDigit, "Password must contain at least one number.") {
		return out
	}
	if !symbol && add(RuleSymbol, fmt.Sprintf("Password must contain at least one special character (%s).", p.Symbols)) {
		return out
	}
	return out
}

// Check wraps Validate into a PolicyViolation error.
func (p PasswordPolicy) Check(password string) error {
	violations := p.Validate(password)
	if len(violations) == 0 {
		return nil
	}
	return &Error{
		Kind:       KindPolicyViolation,
		Message:    violations[0].Message,
		Field:      "password",
		Violations: violations,
	}
}
