package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port           int    `envconfig:"PORT" default:"8080"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL    string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns     int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"true"`
	Version        string `envconfig:"VERSION" default:"dev"`

	ProductID        string        `envconfig:"PRODUCT_ID" required:"true"`
	AuthorityURL     string        `envconfig:"AUTHORITY_URL" default:"https://api.gumroad.com"`
	AuthorityTimeout time.Duration `envconfig:"AUTHORITY_TIMEOUT" default:"5s"`
	WebhookTokenHash string        `envconfig:"WEBHOOK_TOKEN_HASH" default:""`

	JWTSecret            string `envconfig:"JWT_SECRET" required:"true"`
	JWTAudience          string `envconfig:"JWT_AUDIENCE" default:"authenticated"`
	RequireVerifiedEmail bool   `envconfig:"REQUIRE_VERIFIED_EMAIL" default:"true"`

	AdminEmails    []string      `envconfig:"ADMIN_EMAILS" default:""`
	AdminFile      string        `envconfig:"ADMIN_FILE" default:""`
	AutoRegister   bool          `envconfig:"AUTO_REGISTER" default:"true"`
	ResolveTimeout time.Duration `envconfig:"RESOLVE_TIMEOUT" default:"5s"`
	CensusInterval time.Duration `envconfig:"CENSUS_INTERVAL" default:"1m"`

	RedisURL           string        `envconfig:"REDIS_URL" default:""`
	TrialGameLimit     int           `envconfig:"TRIAL_GAME_LIMIT" default:"3"`
	TrialAnalysisLimit int           `envconfig:"TRIAL_ANALYSIS_LIMIT" default:"1"`
	TrialWindow        time.Duration `envconfig:"TRIAL_WINDOW" default:"0s"`

	ActivationRate  float64 `envconfig:"ACTIVATION_RATE" default:"0.2"`
	ActivationBurst int     `envconfig:"ACTIVATION_BURST" default:"5"`
	CORSOrigin      string  `envconfig:"CORS_ORIGIN" default:"*"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TrialGameLimit < -1 || c.TrialAnalysisLimit < -1 {
		return fmt.Errorf("trial limits must be -1 (unlimited) or non-negative")
	}
	if c.TrialWindow < 0 {
		return fmt.Errorf("TRIAL_WINDOW must not be negative")
	}
	if c.AuthorityTimeout <= 0 || c.ResolveTimeout <= 0 {
		return fmt.Errorf("AUTHORITY_TIMEOUT and RESOLVE_TIMEOUT must be positive")
	}
	if c.CensusInterval <= 0 {
		return fmt.Errorf("CENSUS_INTERVAL must be positive")
	}
	if c.ActivationRate <= 0 || c.ActivationBurst <= 0 {
		return fmt.Errorf("ACTIVATION_RATE and ACTIVATION_BURST must be positive")
	}
	return nil
}
