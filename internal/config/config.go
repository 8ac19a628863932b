package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeCLI    = "cli"
	ModeServer = "server"
	ModeBoth   = "both"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMongo    = "mongo"
)

type Config struct {
	Port        string
	Mode        string
	Environment string

	Capacity int

	StoreDriver         string
	DatabaseURL         string
	SQLitePath          string
	MongoURI            string
	MongoDatabase       string
	StoreTimeout        time.Duration
	StoreConnectRetries int

	PriceCapStandard   float64
	PriceCapSurcharged float64

	OTelEnabled     bool
	OTelServiceName string
	OTelEndpoint    string
}

// Load reads an optional .env file, then the environment. Variables already
// set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Mode:            strings.ToLower(getEnv("MODE", ModeServer)),
		Environment:     getEnv("ENVIRONMENT", "development"),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SQLitePath:      getEnv("SQLITE_PATH", "parking.db"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "parking"),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "parking-facility"),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
	}

	var err error
	if cfg.Capacity, err = getEnvInt("FACILITY_CAPACITY", 20); err != nil {
		return nil, err
	}
	if cfg.StoreConnectRetries, err = getEnvInt("STORE_CONNECT_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getEnvDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.PriceCapStandard, err = getEnvFloat("PRICE_CAP_STANDARD", 20.0); err != nil {
		return nil, err
	}
	if cfg.PriceCapSurcharged, err = getEnvFloat("PRICE_CAP_SURCHARGED", 45.5); err != nil {
		return nil, err
	}
	if cfg.OTelEnabled, err = getEnvBool("OTEL_ENABLED", true); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field rules. Call it again after overriding fields.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeCLI, ModeServer, ModeBoth:
	default:
		return fmt.Errorf("invalid MODE %q: must be cli, server, or both", c.Mode)
	}

	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("MONGO_URI and MONGO_DATABASE are required for the mongo store")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: must be memory, postgres, sqlite, or mongo", c.StoreDriver)
	}

	if c.Capacity < 0 {
		return fmt.Errorf("FACILITY_CAPACITY must not be negative")
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("STORE_TIMEOUT must not be negative")
	}
	if c.PriceCapStandard < 0 || c.PriceCapSurcharged < 0 {
		return fmt.Errorf("price caps must not be negative")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
