package authcore

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// Config is the immutable process configuration. It is loaded once at
// startup and passed by value.
type Config struct {
	JWTSecret string `env:"AUTHCORE_JWT_SECRET,required"`
	JWTIssuer string `env:"AUTHCORE_JWT_ISSUER" envDefault:"authcore"`

	BcryptCost      int `env:"AUTHCORE_BCRYPT_COST" envDefault:"10"`
	HashConcurrency int `env:"AUTHCORE_HASH_CONCURRENCY"`

	SessionTTL  time.Duration `env:"AUTHCORE_SESSION_TTL"  envDefault:"168h"`
	RememberTTL time.Duration `env:"AUTHCORE_REMEMBER_TTL" envDefault:"720h"`

	CookieName   string `env:"AUTHCORE_COOKIE_NAME" envDefault:"access_token"`
	CookieDomain string `env:"AUTHCORE_COOKIE_DOMAIN"`
	Production   bool   `env:"AUTHCORE_PRODUCTION"`

	Addr     string `env:"AUTHCORE_ADDR" envDefault:":3000"`
	GRPCAddr string `env:"AUTHCORE_GRPC_ADDR"`
	BaseURL  string `env:"AUTHCORE_BASE_URL" envDefault:"http://localhost:3000"`

	Store              string `env:"AUTHCORE_STORE" envDefault:"fs"`
	StorePath          string `env:"AUTHCORE_STORE_PATH" envDefault:"./data"`
	DatabaseURL        string `env:"AUTHCORE_DATABASE_URL"`
	DatastoreProject   string `env:"AUTHCORE_DATASTORE_PROJECT"`
	DatastoreNamespace string `env:"AUTHCORE_DATASTORE_NAMESPACE"`

	GoogleClientID     string `env:"AUTHCORE_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"AUTHCORE_GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"AUTHCORE_GOOGLE_CALLBACK_URL"`
	GithubClientID     string `env:"AUTHCORE_GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"AUTHCORE_GITHUB_CLIENT_SECRET"`
	GithubCallbackURL  string `env:"AUTHCORE_GITHUB_CALLBACK_URL"`

	SAMLMetadataURL string `env:"AUTHCORE_SAML_METADATA_URL"`
	SAMLCertFile    string `env:"AUTHCORE_SAML_CERT_FILE" envDefault:"saml_service.cert"`
	SAMLKeyFile     string `env:"AUTHCORE_SAML_KEY_FILE"  envDefault:"saml_service.key"`
}

const minSecretLength = 32

// LoadConfig parses Config from the environment and validates it
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot run safely with
func (c Config) Validate() error {
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("AUTHCORE_JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("AUTHCORE_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.SessionTTL <= 0 || c.RememberTTL <= 0 {
		return fmt.Errorf("session lifetimes must be positive")
	}
	switch c.Store {
	case "fs", "postgres", "gorm", "datastore":
	default:
		return fmt.Errorf("unknown AUTHCORE_STORE %q", c.Store)
	}
	return nil
}
