package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full service configuration, loaded from the environment.
// A .env file, when present, is loaded by main before this runs.
type Config struct {
	Port        string        `envconfig:"PORT" default:"8080"`
	GinMode     string        `envconfig:"GIN_MODE" default:"release"`
	JWTSecret   string        `envconfig:"JWT_SECRET"`
	ReadTimeout time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`

	// DatabaseURL, when set, overrides the discrete DB_* fields.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	DB      Database `envconfig:"DB"`
	Pricing Pricing  `envconfig:"PRICING"`
}

// Database holds Postgres connection settings.
type Database struct {
	URL      string `envconfig:"URL"`
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"5432"`
	User     string `envconfig:"USER" default:"catalog_admin"`
	Password string `envconfig:"PASSWORD"`
	Name     string `envconfig:"NAME" default:"catalog_db"`
	SSLMode  string `envconfig:"SSLMODE" default:"prefer"`
}

// Pricing tunes the pricing engine.
type Pricing struct {
	BatchSize   int `envconfig:"BATCH_SIZE" default:"100"`
	MaxVariants int `envconfig:"MAX_VARIANTS" default:"5000"`
	MaxPageSize int `envconfig:"MAX_PAGE_SIZE" default:"1000"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.DatabaseURL != "" {
		cfg.DB.URL = cfg.DatabaseURL
	}
	return &cfg, nil
}

// DSN builds the Postgres connection string.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.Password == "" {
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Name, d.SSLMode)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}
