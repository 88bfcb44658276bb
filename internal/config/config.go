package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	// ABDM gateway endpoints and credentials.
	GatewayURL   string `mapstructure:"ABDM_GATEWAY_URL"`
	AbhaURL      string `mapstructure:"ABDM_ABHA_URL"`
	ClientID     string `mapstructure:"ABDM_CLIENT_ID"`
	ClientSecret string `mapstructure:"ABDM_CLIENT_SECRET"`
	CMID         string `mapstructure:"ABDM_CM_ID"`
	HIPID        string `mapstructure:"ABDM_HIP_ID"`
	HIUID        string `mapstructure:"ABDM_HIU_ID"`
	CertURL      string `mapstructure:"ABDM_CERT_URL"`
	JWKSURL      string `mapstructure:"ABDM_JWKS_URL"`

	// BackendBaseURL is this deployment's public base URL. The consent
	// manager pushes health information and callbacks to routes under it.
	BackendBaseURL string `mapstructure:"BACKEND_BASE_URL"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// DiscoveryNameSimilarity is the minimum trigram similarity a patient
	// name must score for a demographic discovery match when no ABHA
	// identifier matches exactly.
	DiscoveryNameSimilarity float64 `mapstructure:"DISCOVERY_NAME_SIMILARITY"`

	CorrelationTTLMinutes int `mapstructure:"CORRELATION_TTL_MINUTES"`
	HTTPTimeoutSeconds    int `mapstructure:"HTTP_TIMEOUT_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "9000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("ABDM_GATEWAY_URL", "https://dev.abdm.gov.in/hiecm/api")
	v.SetDefault("ABDM_ABHA_URL", "https://abhasbx.abdm.gov.in/abha/api")
	v.SetDefault("ABDM_CM_ID", "sbx")
	v.SetDefault("ABDM_CERT_URL", "https://healthidsbx.abdm.gov.in/api/v1/auth/cert")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DISCOVERY_NAME_SIMILARITY", 0.3)
	v.SetDefault("CORRELATION_TTL_MINUTES", 10)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("ABDM_GATEWAY_URL")
	v.BindEnv("ABDM_ABHA_URL")
	v.BindEnv("ABDM_CLIENT_ID")
	v.BindEnv("ABDM_CLIENT_SECRET")
	v.BindEnv("ABDM_CM_ID")
	v.BindEnv("ABDM_HIP_ID")
	v.BindEnv("ABDM_HIU_ID")
	v.BindEnv("ABDM_CERT_URL")
	v.BindEnv("ABDM_JWKS_URL")
	v.BindEnv("BACKEND_BASE_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("DISCOVERY_NAME_SIMILARITY")
	v.BindEnv("CORRELATION_TTL_MINUTES")
	v.BindEnv("HTTP_TIMEOUT_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// the server refuses to start without consent manager credentials and a public
// base URL: every outbound call needs a session token, and every data-flow
// request advertises a push URL under BackendBaseURL.
func (c *Config) Validate() error {
	if c.DiscoveryNameSimilarity <= 0 || c.DiscoveryNameSimilarity > 1 {
		return fmt.Errorf("DISCOVERY_NAME_SIMILARITY must be in (0, 1], got %v", c.DiscoveryNameSimilarity)
	}
	if c.CorrelationTTLMinutes <= 0 {
		return fmt.Errorf("CORRELATION_TTL_MINUTES must be positive, got %d", c.CorrelationTTLMinutes)
	}

	if c.IsDev() {
		return nil
	}

	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("ABDM_CLIENT_ID and ABDM_CLIENT_SECRET are required when ENV=%q", c.Env)
	}
	if c.BackendBaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required when ENV=%q", c.Env)
	}
	if c.JWKSURL == "" {
		return fmt.Errorf("ABDM_JWKS_URL is required when ENV=%q to authenticate gateway callbacks", c.Env)
	}
	if c.HIPID == "" && c.HIUID == "" {
		return fmt.Errorf("at least one of ABDM_HIP_ID or ABDM_HIU_ID must be set")
	}
	return nil
}

// SessionURL returns the consent manager session (token) endpoint,
// resolved against the same base every other gateway call uses.
func (c *Config) SessionURL() string {
	return strings.TrimRight(c.GatewayURL, "/") + "/v0.5/sessions"
}

// DataPushURL returns the URL the consent manager pushes health
// information pages to.
func (c *Config) DataPushURL() string {
	return strings.TrimRight(c.BackendBaseURL, "/") + "/v0.5/health-information/transfer"
}
