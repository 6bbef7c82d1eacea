package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env       string `mapstructure:"CMS_ENV"`
	HTTPAddr  string `mapstructure:"CMS_HTTP_ADDR"`
	PublicURL string `mapstructure:"CMS_PUBLIC_URL"`

	Session  SessionConfig `mapstructure:",squash"`
	Database DBConfig      `mapstructure:",squash"`
	Redis    RedisConfig   `mapstructure:",squash"`
	Blob     BlobConfig    `mapstructure:",squash"`
	OAuth    OAuthConfig   `mapstructure:",squash"`
	Kafka    KafkaConfig   `mapstructure:",squash"`
}

type SessionConfig struct {
	Secret    string        `mapstructure:"CMS_SESSION_SECRET"`
	JWTSecret string        `mapstructure:"CMS_JWT_SECRET"`
	TokenTTL  time.Duration `mapstructure:"CMS_TOKEN_TTL"`
}

type DBConfig struct {
	Driver string `mapstructure:"CMS_DB_DRIVER"` // mysql, postgres, sqlite
	DSN    string `mapstructure:"CMS_DB_DSN"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"CMS_REDIS_ADDR"`
	Password string `mapstructure:"CMS_REDIS_PASSWORD"`
	DB       int    `mapstructure:"CMS_REDIS_DB"`
}

type BlobConfig struct {
	Backend    string `mapstructure:"CMS_BLOB_BACKEND"` // azure, memory
	Account    string `mapstructure:"CMS_BLOB_ACCOUNT"`
	Container  string `mapstructure:"CMS_BLOB_CONTAINER"`
	StorageKey string `mapstructure:"CMS_BLOB_STORAGE_KEY"`
	// Endpoint overrides https://{account}.blob.core.windows.net/, e.g. for Azurite.
	Endpoint string `mapstructure:"CMS_BLOB_ENDPOINT"`
}

type OAuthConfig struct {
	ClientID        string        `mapstructure:"CMS_CLIENT_ID"`
	ClientSecret    string        `mapstructure:"CMS_CLIENT_SECRET"`
	Authority       string        `mapstructure:"CMS_AUTHORITY"`
	Scopes          []string      `mapstructure:"CMS_SCOPE"`
	RedirectPath    string        `mapstructure:"CMS_REDIRECT_PATH"`
	ExternalAccount string        `mapstructure:"CMS_EXTERNAL_ACCOUNT"`
	StateTTL        time.Duration `mapstructure:"CMS_STATE_TTL"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"CMS_KAFKA_BROKERS"`
	Topic   string   `mapstructure:"CMS_KAFKA_TOPIC"`
}

func loadDotEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("CMS_ENV", "dev")
	v.SetDefault("CMS_HTTP_ADDR", ":8080")
	v.SetDefault("CMS_PUBLIC_URL", "http://localhost:8080")
	v.SetDefault("CMS_SESSION_SECRET", "")
	v.SetDefault("CMS_JWT_SECRET", "")
	v.SetDefault("CMS_TOKEN_TTL", "30m")
	v.SetDefault("CMS_DB_DRIVER", "mysql")
	v.SetDefault("CMS_DB_DSN", "user:password@tcp(127.0.0.1:3306)/cmsdb?charset=utf8mb4&parseTime=True")
	v.SetDefault("CMS_REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("CMS_REDIS_PASSWORD", "")
	v.SetDefault("CMS_REDIS_DB", 0)
	v.SetDefault("CMS_BLOB_BACKEND", "azure")
	v.SetDefault("CMS_BLOB_ACCOUNT", "")
	v.SetDefault("CMS_BLOB_CONTAINER", "images")
	v.SetDefault("CMS_BLOB_STORAGE_KEY", "")
	v.SetDefault("CMS_BLOB_ENDPOINT", "")
	v.SetDefault("CMS_CLIENT_ID", "")
	v.SetDefault("CMS_CLIENT_SECRET", "")
	v.SetDefault("CMS_AUTHORITY", "https://login.microsoftonline.com/common")
	v.SetDefault("CMS_SCOPE", "User.Read")
	v.SetDefault("CMS_REDIRECT_PATH", "/getAToken")
	v.SetDefault("CMS_EXTERNAL_ACCOUNT", "admin")
	v.SetDefault("CMS_STATE_TTL", "10m")
	v.SetDefault("CMS_KAFKA_BROKERS", "")
	v.SetDefault("CMS_KAFKA_TOPIC", "cms.posts")

	// comma-separated lists
	for _, key := range []string{"CMS_SCOPE", "CMS_KAFKA_BROKERS"} {
		v.Set(key, splitList(v.GetString(key)))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Session.Secret == "" {
		return fmt.Errorf("CMS_SESSION_SECRET is required")
	}
	if c.Session.JWTSecret == "" {
		return fmt.Errorf("CMS_JWT_SECRET is required")
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid CMS_DB_DRIVER %q (must be mysql, postgres, or sqlite)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("CMS_DB_DSN is required")
	}
	switch c.Blob.Backend {
	case "azure":
		if c.Blob.Account == "" || c.Blob.StorageKey == "" {
			return fmt.Errorf("CMS_BLOB_ACCOUNT and CMS_BLOB_STORAGE_KEY are required for the azure backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid CMS_BLOB_BACKEND %q (must be azure or memory)", c.Blob.Backend)
	}
	if c.Blob.Container == "" {
		return fmt.Errorf("CMS_BLOB_CONTAINER is required")
	}
	if !strings.HasPrefix(c.OAuth.RedirectPath, "/") {
		return fmt.Errorf("CMS_REDIRECT_PATH must start with /")
	}
	if c.OAuth.ExternalAccount == "" {
		return fmt.Errorf("CMS_EXTERNAL_ACCOUNT is required")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// OAuthEnabled reports whether the external identity provider is configured.
func (c *Config) OAuthEnabled() bool {
	return c.OAuth.ClientID != "" && c.OAuth.ClientSecret != ""
}

// RedirectURL is the absolute callback URL; it must match the app registration byte for byte.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.PublicURL, "/") + c.OAuth.RedirectPath
}

// BlobEndpoint returns the service URL of the blob account, always ending in "/".
func (c *Config) BlobEndpoint() string {
	if c.Blob.Endpoint != "" {
		return strings.TrimRight(c.Blob.Endpoint, "/") + "/"
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.Blob.Account)
}
