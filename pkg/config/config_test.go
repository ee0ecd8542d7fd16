package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp switches into a fresh temp directory for the duration of the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() {
		_ = os.Chdir(originalDir)
	})
	return tmpDir
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := chdirTemp(t)

	yamlContent := `
port: "9000"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
jobs:
  review_sync_interval: "30m"
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644))

	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")
	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("CREDENTIALS_KEY", "test-key")

	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "4443", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "http://localhost:4443", cfg.BaseURL)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.ReviewSyncInterval)
	if !IsRunningInDocker() {
		assert.Equal(t, "db.example.com", cfg.Database.Host)
	}
}

func TestLoad_WithoutConfigFileUsesDefaults(t *testing.T) {
	chdirTemp(t)
	os.Unsetenv("PORT")
	os.Unsetenv("BASE_URL")
	os.Unsetenv("JOBS_REVIEW_SYNC_PLATFORMS")
	t.Setenv("CREDENTIALS_KEY", "test-key")

	cfg, err := Load("dev")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"yelp"}, cfg.Jobs.ReviewSyncPlatforms)
	assert.Equal(t, time.Hour, cfg.Jobs.ReviewSyncInterval)
	assert.Equal(t, 15*time.Minute, cfg.Jobs.AutoReplyInterval)
	assert.Equal(t, "test-key", cfg.SessionSecret)
}

func TestLoad_RequiresCredentialsKey(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CREDENTIALS_KEY", "")

	_, err := Load("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREDENTIALS_KEY")
}

func TestLoad_DotEnvFile(t *testing.T) {
	tmpDir := chdirTemp(t)
	os.Unsetenv("TWILIO_FROM_NUMBER")
	t.Cleanup(func() { os.Unsetenv("TWILIO_FROM_NUMBER") })
	t.Setenv("CREDENTIALS_KEY", "test-key")

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("TWILIO_FROM_NUMBER=+15550001111\n"), 0644))

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.Equal(t, "+15550001111", cfg.Twilio.FromNumber)
}

func TestValidateTLS(t *testing.T) {
	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "cert.pem")
	keyPath := filepath.Join(tmpDir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, []byte("cert"), 0600))
	require.NoError(t, os.WriteFile(keyPath, []byte("key"), 0600))

	tests := []struct {
		name    string
		cert    string
		key     string
		wantErr bool
	}{
		{"neither", "", "", false},
		{"both", certPath, keyPath, false},
		{"cert only", certPath, "", true},
		{"key only", "", keyPath, true},
		{"missing files", filepath.Join(tmpDir, "nope.pem"), keyPath, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{TLSCertPath: tt.cert, TLSKeyPath: tt.key}
			err := cfg.validateTLS()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseJWKSEndpoints(t *testing.T) {
	got := parseJWKSEndpoints("https://tenant.auth0.com/=https://tenant.auth0.com/.well-known/jwks.json, https://other.example=https://other.example/jwks")
	assert.Equal(t, map[string]string{
		"https://tenant.auth0.com/": "https://tenant.auth0.com/.well-known/jwks.json",
		"https://other.example":     "https://other.example/jwks",
	}, got)

	assert.Empty(t, parseJWKSEndpoints(""))
	assert.Empty(t, parseJWKSEndpoints("garbage"))
}

func TestPlansConfig_Quotas(t *testing.T) {
	p := PlansConfig{FreeSmsQuota: 50, StarterSmsQuota: 500, ProSmsQuota: 2500}
	assert.Equal(t, map[string]int{"free": 50, "starter": 500, "pro": 2500}, p.Quotas())
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "rp", Password: "p@ss", Database: "reviews", SSLMode: "disable"}
	assert.Equal(t, "postgres://rp:p%40ss@db:5433/reviews?sslmode=disable", c.URL())
}

func TestConfig_OAuthRedirectURL(t *testing.T) {
	c := &Config{BaseURL: "https://api.example.com/"}
	assert.Equal(t, "https://api.example.com/api/oauth/google/callback", c.OAuthRedirectURL("google"))
}
