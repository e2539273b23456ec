package oauth2

import (
	"context"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/estately/authcore"
)

type GithubOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL and EmailsURL default to GitHub's API. Can be overridden
	// for testing.
	UserInfoURL string
	EmailsURL   string
}

type githubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func NewGithubOAuth2(clientId string, clientSecret string, callbackUrl string, sessions *scs.SessionManager, handle AssertionHandler) *GithubOAuth2 {
	out := &GithubOAuth2{
		BaseOAuth2:  NewBaseOAuth2("github", clientId, clientSecret, callbackUrl, sessions, handle),
		UserInfoURL: "https://api.github.com/user",
		EmailsURL:   "https://api.github.com/user/emails",
	}
	out.oauthConfig.Endpoint = github.Endpoint
	out.oauthConfig.Scopes = []string{
		"read:user", "user:email",
	}
	out.fetchUser = out.getUserData
	return out
}

// getUserData prefers the primary verified address from /user/emails, since
// the profile email is empty when the user keeps it private.
func (g *GithubOAuth2) getUserData(ctx context.Context, token *oauth2.Token) (authcore.Assertion, error) {
	var u githubUser
	if err := getJSON(ctx, g.httpClient(), g.UserInfoURL, token, &u); err != nil {
		return authcore.Assertion{}, err
	}

	email := ""
	var emails []githubEmail
	if err := getJSON(ctx, g.httpClient(), g.EmailsURL, token, &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	} else {
		g.logger().Debug("github emails lookup failed", "error", err)
	}
	if email == "" {
		email = u.Email
	}
	if email == "" {
		return authcore.Assertion{}, errNoEmail
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}
	return authcore.Assertion{DisplayName: name, Email: email, AvatarURL: u.AvatarURL}, nil
}
