package authcore_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/estately/authcore"
)

func TestSessionCookiePolicy(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	token := authcore.SessionToken{Token: "tok", IssuedAt: issuedAt, ExpiresAt: issuedAt.Add(7 * 24 * time.Hour)}

	tests := []struct {
		name       string
		production bool
	}{
		{"development", false},
		{"production", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := authcore.NewSessionCookiePolicy("", tt.production)
			cookie := policy.Cookie(token)

			assert.Equal(t, authcore.DefaultCookieName, cookie.Name)
			assert.Equal(t, "tok", cookie.Value)
			assert.Equal(t, "/", cookie.Path)
			assert.True(t, cookie.HttpOnly)
			assert.Equal(t, tt.production, cookie.Secure)
			assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
			assert.Equal(t, 7*24*60*60, cookie.MaxAge)
			assert.Equal(t, token.ExpiresAt, cookie.Expires)
		})
	}
}

func TestSessionCookiePolicyNeverSameSiteNone(t *testing.T) {
	policy := authcore.SessionCookiePolicy{SameSite: http.SameSiteNoneMode}
	cookie := policy.Cookie(authcore.SessionToken{Token: "tok"})
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	policy = authcore.SessionCookiePolicy{SameSite: http.SameSiteStrictMode}
	assert.Equal(t, http.SameSiteStrictMode, policy.Cookie(authcore.SessionToken{Token: "tok"}).SameSite)
}

func TestSessionCookieClear(t *testing.T) {
	policy := authcore.NewSessionCookiePolicy("sid", true)
	policy.Domain = "example.com"

	rr := httptest.NewRecorder()
	http.SetCookie(rr, policy.Clear())
	cookies := rr.Result().Cookies()

	if assert.Len(t, cookies, 1) {
		c := cookies[0]
		assert.Equal(t, "sid", c.Name)
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
		assert.Equal(t, "example.com", c.Domain)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
	}
}
