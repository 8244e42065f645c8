package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by Load when no other file is given.
const DefaultEnvFile = "config/.env.siege"

// Store backends.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreS3       = "s3"
)

// Config is the process configuration, read from the environment.
type Config struct {
	ListenAddr   string `env:"SIEGE_LISTEN_ADDR" envDefault:":5200"`
	ServiceToken string `env:"SIEGE_SERVICE_TOKEN"`
	// comma separated
	AllowedOrigins string `env:"SIEGE_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`

	Store       string `env:"SIEGE_STORE" envDefault:"file"`
	DataDir     string `env:"SIEGE_DATA_DIR" envDefault:"config"`
	StoreFormat string `env:"SIEGE_STORE_FORMAT" envDefault:"json"`
	DatabaseURL string `env:"DATABASE_URL"`
	R2          R2Config

	Timezone     string        `env:"SIEGE_TIMEZONE" envDefault:"Europe/Berlin"`
	StartHour    int           `env:"SIEGE_START_HOUR" envDefault:"19"`
	ReminderLead time.Duration `env:"SIEGE_REMINDER_LEAD" envDefault:"30m"`

	NotifyURL       string `env:"SIEGE_NOTIFY_URL"`
	TerritoriesFile string `env:"SIEGE_TERRITORIES_FILE"`
}

// R2Config addresses a Cloudflare R2 (S3 compatible) bucket.
type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	Prefix          string `env:"SIEGE_S3_PREFIX" envDefault:"siege"`
}

// Load reads envFile into the process environment (a missing file is fine,
// existing variables win) and parses the result.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("load %s: %w", envFile, err)
			}
			log.Printf("[Config] No %s file found, reading environment variables directly", envFile)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreFile:
		if c.StoreFormat != "json" && c.StoreFormat != "yaml" {
			return fmt.Errorf("SIEGE_STORE_FORMAT must be json or yaml, got %q", c.StoreFormat)
		}
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case StoreS3:
		if c.R2.AccountID == "" || c.R2.Bucket == "" {
			return errors.New("CLOUDFLARE_ACCOUNT_ID and R2_BUCKET_NAME are required for the s3 store")
		}
	default:
		return fmt.Errorf("unknown SIEGE_STORE %q", c.Store)
	}

	if c.StartHour < 0 || c.StartHour > 23 {
		return fmt.Errorf("SIEGE_START_HOUR must be 0-23, got %d", c.StartHour)
	}
	if c.ReminderLead < 0 {
		return fmt.Errorf("SIEGE_REMINDER_LEAD must not be negative, got %s", c.ReminderLead)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the reference time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("SIEGE_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
