// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis host:port for the token revocation store. Empty falls back to the in-memory store.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the Redis password; empty for no auth.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the Redis database index.
	RedisDB int `mapstructure:"REDIS_DB"`

	// JWTAccessSecret signs access tokens. Must differ from JWTRefreshSecret.
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	// JWTRefreshSecret signs refresh tokens.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	// JWTIssuer is the iss claim (e.g. "leadflow-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "leadflow-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SessionIdleTimeout is how long a session may stay inactive before the sweeper deactivates it (e.g. "30m").
	SessionIdleTimeout string `mapstructure:"SESSION_IDLE_TIMEOUT"`
	// SweepInterval is how often cmd/worker runs the idle sweep (e.g. "5m").
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
	// GeoIPDBPath is the path to a MaxMind GeoLite2-City database; empty disables geo lookups.
	GeoIPDBPath string `mapstructure:"GEOIP_DB_PATH"`

	// HubSpotClientID is the OAuth client id for the HubSpot integration.
	HubSpotClientID string `mapstructure:"HUBSPOT_CLIENT_ID"`
	// HubSpotClientSecret is the OAuth client secret. Never logged.
	HubSpotClientSecret string `mapstructure:"HUBSPOT_CLIENT_SECRET"`
	// HubSpotRedirectURI is the OAuth callback URL registered with HubSpot.
	HubSpotRedirectURI string `mapstructure:"HUBSPOT_REDIRECT_URI"`
	// HubSpotScopes is the space-separated OAuth scope list.
	HubSpotScopes string `mapstructure:"HUBSPOT_SCOPES"`
	// HubSpotAuthURL is the authorization endpoint.
	HubSpotAuthURL string `mapstructure:"HUBSPOT_AUTH_URL"`
	// HubSpotTokenURL is the token endpoint.
	HubSpotTokenURL string `mapstructure:"HUBSPOT_TOKEN_URL"`
	// HubSpotRefreshWindow is how long before expiry a stored token is refreshed ahead of time (e.g. "5m").
	HubSpotRefreshWindow string `mapstructure:"HUBSPOT_REFRESH_WINDOW"`
	// HubSpotHTTPTimeout bounds every call to the HubSpot OAuth endpoints (e.g. "10s").
	HubSpotHTTPTimeout string `mapstructure:"HUBSPOT_HTTP_TIMEOUT"`
	// OAuthStateSecret signs the OAuth state parameter. Required when the HubSpot integration is configured.
	OAuthStateSecret string `mapstructure:"OAUTH_STATE_SECRET"`
	// OAuthStateTTL is how long an issued state parameter stays acceptable (e.g. "10m").
	OAuthStateTTL string `mapstructure:"OAUTH_STATE_TTL"`

	// LogLevel is the zap log level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", "leadflow-auth")
	v.SetDefault("JWT_AUDIENCE", "leadflow-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_IDLE_TIMEOUT", "30m")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("GEOIP_DB_PATH", "")
	v.SetDefault("HUBSPOT_CLIENT_ID", "")
	v.SetDefault("HUBSPOT_CLIENT_SECRET", "")
	v.SetDefault("HUBSPOT_REDIRECT_URI", "http://localhost:3000/api/hubspot/callback")
	v.SetDefault("HUBSPOT_SCOPES", "contacts content timeline")
	v.SetDefault("HUBSPOT_AUTH_URL", "https://app.hubspot.com/oauth/authorize")
	v.SetDefault("HUBSPOT_TOKEN_URL", "https://api.hubapi.com/oauth/v1/token")
	v.SetDefault("HUBSPOT_REFRESH_WINDOW", "5m")
	v.SetDefault("HUBSPOT_HTTP_TIMEOUT", "10s")
	v.SetDefault("OAUTH_STATE_SECRET", "")
	v.SetDefault("OAUTH_STATE_TTL", "10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTAccessSecret != "" && cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshTTL, 168*time.Hour)
}

// IdleTimeout parses SessionIdleTimeout. Returns 30m if unset or invalid.
func (c *Config) IdleTimeout() time.Duration {
	return durationOr(c.SessionIdleTimeout, 30*time.Minute)
}

// SweepEvery parses SweepInterval. Returns 5m if unset or invalid.
func (c *Config) SweepEvery() time.Duration {
	return durationOr(c.SweepInterval, 5*time.Minute)
}

// RefreshWindow parses HubSpotRefreshWindow. Returns 5m if unset or invalid.
func (c *Config) RefreshWindow() time.Duration {
	return durationOr(c.HubSpotRefreshWindow, 5*time.Minute)
}

// HubSpotTimeout parses HubSpotHTTPTimeout. Returns 10s if unset or invalid.
func (c *Config) HubSpotTimeout() time.Duration {
	return durationOr(c.HubSpotHTTPTimeout, 10*time.Second)
}

// StateTTL parses OAuthStateTTL. Returns 10m if unset or invalid.
func (c *Config) StateTTL() time.Duration {
	return durationOr(c.OAuthStateTTL, 10*time.Minute)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
