package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for reviewpilot-engine.
// Values come from config.yaml (optional) with environment variable overrides.
// Secrets (passwords, keys, tokens) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr    string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port        string `yaml:"port" env:"PORT" env-default:"8080"`
	Env         string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL     string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	FrontendURL string `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:5173"`
	Version     string `yaml:"-"`

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// SessionSecret signs the short-lived cookie used during platform OAuth redirects.
	SessionSecret string `yaml:"-" env:"SESSION_SECRET"`

	// CredentialsKey encrypts platform OAuth tokens at rest.
	// Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"`

	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Platforms PlatformsConfig `yaml:"platforms"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Plans     PlansConfig     `yaml:"plans"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are validated.
	// Set to false for local development without an identity provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// Audience is the expected "aud" claim. Empty disables the audience check.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr.
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"reviewpilot"`
	Password       string `yaml:"-" env:"PGPASSWORD"`
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"reviewpilot"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis configuration. An empty Host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AIConfig selects the hosted chat-completion provider.
type AIConfig struct {
	Provider    string  `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	Model       string  `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o-mini"`
	BaseURL     string  `yaml:"base_url" env:"AI_BASE_URL" env-default:""`
	APIKey      string  `yaml:"-" env:"AI_API_KEY"`
	Temperature float64 `yaml:"temperature" env:"AI_TEMPERATURE" env-default:"0.7"`
}

// IsAvailable returns true if an AI provider can be called.
func (c *AIConfig) IsAvailable() bool {
	return c.APIKey != "" && c.Model != ""
}

// PlatformsConfig holds OAuth client settings for each review platform.
type PlatformsConfig struct {
	Google   GoogleConfig   `yaml:"google"`
	Yelp     YelpConfig     `yaml:"yelp"`
	Facebook FacebookConfig `yaml:"facebook"`
}

type GoogleConfig struct {
	ClientID     string `yaml:"client_id" env:"GOOGLE_CLIENT_ID" env-default:""`
	ClientSecret string `yaml:"-" env:"GOOGLE_CLIENT_SECRET"`
	PlacesAPIKey string `yaml:"-" env:"GOOGLE_PLACES_API_KEY"`
	// PubSubToken is the shared secret carried in the Pub/Sub push subscription URL.
	PubSubToken string `yaml:"-" env:"GOOGLE_PUBSUB_TOKEN"`
}

type YelpConfig struct {
	ClientID     string `yaml:"client_id" env:"YELP_CLIENT_ID" env-default:""`
	ClientSecret string `yaml:"-" env:"YELP_CLIENT_SECRET"`
	APIKey       string `yaml:"-" env:"YELP_API_KEY"`
}

type FacebookConfig struct {
	AppID        string `yaml:"app_id" env:"FACEBOOK_APP_ID" env-default:""`
	AppSecret    string `yaml:"-" env:"FACEBOOK_APP_SECRET"`
	VerifyToken  string `yaml:"-" env:"FACEBOOK_WEBHOOK_VERIFY_TOKEN"`
	GraphVersion string `yaml:"graph_version" env:"FACEBOOK_GRAPH_VERSION" env-default:"v19.0"`
}

// TwilioConfig holds SMS provider credentials.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid" env:"TWILIO_ACCOUNT_SID" env-default:""`
	AuthToken  string `yaml:"-" env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `yaml:"from_number" env:"TWILIO_FROM_NUMBER" env-default:""`
}

// IsAvailable returns true if Twilio credentials are configured.
func (c *TwilioConfig) IsAvailable() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// JobsConfig controls the background polling loops.
type JobsConfig struct {
	ReviewSyncInterval        time.Duration `yaml:"review_sync_interval" env:"JOBS_REVIEW_SYNC_INTERVAL" env-default:"1h"`
	ReviewSyncPlatforms       []string      `yaml:"review_sync_platforms" env:"JOBS_REVIEW_SYNC_PLATFORMS" env-separator:"," env-default:"yelp"`
	AutoReplyInterval         time.Duration `yaml:"auto_reply_interval" env:"JOBS_AUTO_REPLY_INTERVAL" env-default:"15m"`
	CompetitorRefreshInterval time.Duration `yaml:"competitor_refresh_interval" env:"JOBS_COMPETITOR_REFRESH_INTERVAL" env-default:"24h"`
	SmsSendDelay              time.Duration `yaml:"sms_send_delay" env:"JOBS_SMS_SEND_DELAY" env-default:"250ms"`
	Enabled                   bool          `yaml:"enabled" env:"JOBS_ENABLED" env-default:"true"`
}

// PlansConfig maps subscription plans to their monthly SMS quota.
type PlansConfig struct {
	FreeSmsQuota    int `yaml:"free_sms_quota" env:"PLAN_FREE_SMS_QUOTA" env-default:"50"`
	StarterSmsQuota int `yaml:"starter_sms_quota" env:"PLAN_STARTER_SMS_QUOTA" env-default:"500"`
	ProSmsQuota     int `yaml:"pro_sms_quota" env:"PLAN_PRO_SMS_QUOTA" env-default:"2500"`
}

// Quotas returns the monthly SMS quota keyed by plan name.
func (p *PlansConfig) Quotas() map[string]int {
	return map[string]int{
		"free":    p.FreeSmsQuota,
		"starter": p.StarterSmsQuota,
		"pro":     p.ProSmsQuota,
	}
}

// Load reads configuration from config.yaml (when present) with environment variable overrides.
// A .env file in the working directory is loaded into the environment first.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	// .env is optional; real environment variables take precedence over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)
	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CREDENTIALS_KEY is required")
	}

	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	if cfg.SessionSecret == "" {
		// Sessions only live for the OAuth redirect, so reusing the credentials key is acceptable locally.
		cfg.SessionSecret = cfg.CredentialsKey
	}

	return cfg, nil
}

// validateTLS ensures cert and key are provided together and exist on disk.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// IsLocal reports whether the server runs in local development mode.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "test"
}

// OAuthRedirectURL returns the callback URL registered with a review platform.
func (c *Config) OAuthRedirectURL(platform string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/api/oauth/" + platform + "/callback"
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
// Issuers are URLs themselves, so only the last '=' separates issuer from JWKS URL.
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		idx := strings.LastIndex(pair, "=")
		if idx <= 0 || idx == len(pair)-1 {
			continue
		}
		endpoints[strings.TrimSpace(pair[:idx])] = strings.TrimSpace(pair[idx+1:])
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL keyword/value connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns a PostgreSQL connection URL (used by golang-migrate and lib/pq).
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
