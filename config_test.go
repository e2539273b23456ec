package authcore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estately/authcore"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", testSecret)
	t.Setenv("AUTHCORE_STORE", "postgres")
	t.Setenv("AUTHCORE_DATABASE_URL", "postgres://localhost/authcore")

	cfg, err := authcore.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.JWTSecret)
	assert.Equal(t, "authcore", cfg.JWTIssuer)
	assert.Equal(t, authcore.DefaultBcryptCost, cfg.BcryptCost)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RememberTTL)
	assert.Equal(t, authcore.DefaultCookieName, cfg.CookieName)
	assert.Equal(t, "postgres", cfg.Store)
	assert.False(t, cfg.Production)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("AUTHCORE_JWT_SECRET", "")
	_, err := authcore.LoadConfig()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() authcore.Config {
		return authcore.Config{
			JWTSecret:   testSecret,
			BcryptCost:  authcore.DefaultBcryptCost,
			SessionTTL:  time.Hour,
			RememberTTL: 2 * time.Hour,
			Store:       "fs",
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(c *authcore.Config){
		"short secret":  func(c *authcore.Config) { c.JWTSecret = "too-short" },
		"cost too low":  func(c *authcore.Config) { c.BcryptCost = 2 },
		"cost too high": func(c *authcore.Config) { c.BcryptCost = 40 },
		"zero lifetime": func(c *authcore.Config) { c.SessionTTL = 0 },
		"unknown store": func(c *authcore.Config) { c.Store = "redis" },
	}
	for name, edit := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			edit(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
