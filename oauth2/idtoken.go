package oauth2

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"

	"github.com/estately/authcore"
)

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

var errWrongIssuer = errors.New("id token not issued by google")

// PayloadValidator checks an ID token's signature, expiry and audience.
// *idtoken.Validator satisfies it.
type PayloadValidator interface {
	Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error)
}

// GoogleIDTokenVerifier verifies the credential a browser obtains from
// Google Identity Services and turns its claims into an Assertion. It is
// the authcore.IdentityVerifier behind POST /api/auth/google.
type GoogleIDTokenVerifier struct {
	// ClientID is the audience the token must be minted for
	ClientID  string
	Validator PayloadValidator
}

// NewGoogleIDTokenVerifier builds a verifier that fetches Google's signing
// keys with the given client options.
func NewGoogleIDTokenVerifier(ctx context.Context, clientID string, opts ...idtoken.ClientOption) (*GoogleIDTokenVerifier, error) {
	v, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create id token validator: %w", err)
	}
	return &GoogleIDTokenVerifier{ClientID: clientID, Validator: v}, nil
}

func (g *GoogleIDTokenVerifier) VerifyIdentity(ctx context.Context, credential string) (authcore.Assertion, error) {
	payload, err := g.Validator.Validate(ctx, credential, g.ClientID)
	if err != nil {
		return authcore.Assertion{}, fmt.Errorf("validate id token: %w", err)
	}
	return AssertionFromIDToken(payload)
}

// AssertionFromIDToken maps validated Google ID token claims. The email
// must be present and verified by Google.
func AssertionFromIDToken(p *idtoken.Payload) (authcore.Assertion, error) {
	if !googleIssuers[p.Issuer] {
		return authcore.Assertion{}, errWrongIssuer
	}
	email, _ := p.Claims["email"].(string)
	if email == "" || !claimTrue(p.Claims["email_verified"]) {
		return authcore.Assertion{}, errNoEmail
	}
	name, _ := p.Claims["name"].(string)
	picture, _ := p.Claims["picture"].(string)
	return authcore.Assertion{DisplayName: name, Email: email, AvatarURL: picture}, nil
}

// claimTrue accepts both encodings Google has used for boolean claims
func claimTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}
