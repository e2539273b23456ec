package oauth2

import (
	"context"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/estately/authcore"
)

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL defaults to Google's v2 userinfo endpoint.
	UserInfoURL string
}

type googleUser struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string, sessions *scs.SessionManager, handle AssertionHandler) *GoogleOAuth2 {
	out := &GoogleOAuth2{
		BaseOAuth2:  NewBaseOAuth2("google", clientId, clientSecret, callbackUrl, sessions, handle),
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
	}
	out.oauthConfig.Endpoint = google.Endpoint
	out.oauthConfig.Scopes = []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}
	out.fetchUser = out.getUserData
	return out
}

func (g *GoogleOAuth2) getUserData(ctx context.Context, token *oauth2.Token) (authcore.Assertion, error) {
	var u googleUser
	if err := getJSON(ctx, g.httpClient(), g.UserInfoURL, token, &u); err != nil {
		return authcore.Assertion{}, err
	}
	if u.Email == "" || !u.VerifiedEmail {
		return authcore.Assertion{}, errNoEmail
	}
	return authcore.Assertion{DisplayName: u.Name, Email: u.Email, AvatarURL: u.Picture}, nil
}
