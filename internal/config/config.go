package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	TariffCacheTTL time.Duration `mapstructure:"TARIFF_CACHE_TTL"`
	KafkaBrokers   []string      `mapstructure:"KAFKA_BROKERS"`
	AuditTopic     string        `mapstructure:"AUDIT_TOPIC"`
	OTLPEndpoint   string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Timezone       string        `mapstructure:"TIMEZONE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TARIFF_CACHE_TTL", "10m")
	v.SetDefault("AUDIT_TOPIC", "carehub.audit")
	v.SetDefault("TIMEZONE", "Europe/Brussels")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "TARIFF_CACHE_TTL", "KAFKA_BROKERS", "AUDIT_TOPIC",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "TIMEZONE", "CORS_ORIGINS",
		"REQUEST_TIMEOUT", "MIGRATIONS_DIR",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development); console logging enabled.")
	}

	return cfg, nil
}

// splitList normalises comma separated env values, trimming blanks around
// each element.
func splitList(current []string, raw string) []string {
	if raw == "" {
		return current
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE. Session counting and overlap checks use the
// practice-local calendar date, so this must be a valid IANA zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.RedisURL != "" && c.TariffCacheTTL <= 0 {
		return fmt.Errorf("TARIFF_CACHE_TTL must be positive when REDIS_URL is set")
	}
	if len(c.KafkaBrokers) > 0 && c.AuditTopic == "" {
		return fmt.Errorf("AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
