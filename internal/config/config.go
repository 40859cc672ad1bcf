package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const minSecretKeyLength = 32

var insecureSecretKeys = map[string]struct{}{
	"change_me_in_production":                    {},
	"replace_with_at_least_32_random_characters": {},
}

type Config struct {
	Port        string `mapstructure:"PORT"`
	Environment string `mapstructure:"ENVIRONMENT"`
	TimeZone    string `mapstructure:"TZ"`

	DBDriver    string `mapstructure:"DB_DRIVER"`
	DBPath      string `mapstructure:"DB_PATH"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBPort      string `mapstructure:"DB_PORT"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBName      string `mapstructure:"DB_NAME"`
	DBSSLMode   string `mapstructure:"DB_SSLMODE"`

	SecretKey         string `mapstructure:"SECRET_KEY"`
	WebhookSecret     string `mapstructure:"REVENUECAT_WEBHOOK_SECRET"`
	TrustUserIDHeader bool   `mapstructure:"TRUST_USER_ID_HEADER"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	RedeemAttemptLimit  int           `mapstructure:"REDEEM_ATTEMPT_LIMIT"`
	RedeemAttemptWindow time.Duration `mapstructure:"REDEEM_ATTEMPT_WINDOW"`
}

var defaults = map[string]any{
	"PORT":                      "8080",
	"ENVIRONMENT":               "development",
	"TZ":                        "UTC",
	"DB_DRIVER":                 "sqlite",
	"DB_PATH":                   filepath.Join("data", "tierly.db"),
	"DATABASE_URL":              "",
	"DB_HOST":                   "localhost",
	"DB_PORT":                   "5432",
	"DB_USER":                   "tierly",
	"DB_PASSWORD":               "",
	"DB_NAME":                   "tierly",
	"DB_SSLMODE":                "disable",
	"SECRET_KEY":                "",
	"REVENUECAT_WEBHOOK_SECRET": "",
	"TRUST_USER_ID_HEADER":      true,
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"REDEEM_ATTEMPT_LIMIT":      10,
	"REDEEM_ATTEMPT_WINDOW":     "15m",
}

// Load reads .env when present, then the process environment, and validates
// the result.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.WebhookSecret = strings.TrimSpace(cfg.WebhookSecret)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if _, err := ResolvePort(cfg.Port); err != nil {
		return err
	}
	if _, err := ResolveSecretKey(cfg.SecretKey); err != nil {
		return err
	}
	if cfg.RedeemAttemptLimit < 1 {
		return fmt.Errorf("REDEEM_ATTEMPT_LIMIT must be positive, got %d", cfg.RedeemAttemptLimit)
	}
	if cfg.RedeemAttemptWindow <= 0 {
		return fmt.Errorf("REDEEM_ATTEMPT_WINDOW must be positive, got %s", cfg.RedeemAttemptWindow)
	}
	return nil
}

func (cfg Config) IsProduction() bool {
	return strings.EqualFold(cfg.Environment, "production")
}

// PostgresDSN prefers DATABASE_URL and otherwise assembles a URL from the DB_* parts.
func (cfg Config) PostgresDSN() string {
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		return strings.TrimSpace(cfg.DatabaseURL)
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     cfg.DBHost + ":" + cfg.DBPort,
		Path:     "/" + cfg.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(cfg.DBSSLMode),
	}
	return dsn.String()
}

func (cfg Config) Location() *time.Location {
	location, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return time.UTC
	}
	return location
}

func ResolvePort(raw string) (string, error) {
	port := strings.TrimSpace(raw)
	if port == "" {
		return "8080", nil
	}
	value, err := strconv.Atoi(port)
	if err != nil {
		return "", fmt.Errorf("invalid PORT %q: %w", raw, err)
	}
	if value < 1 || value > 65535 {
		return "", fmt.Errorf("PORT must be between 1 and 65535, got %d", value)
	}
	return port, nil
}

// ResolveSecretKey accepts an empty key, which disables bearer tokens, or a
// key of at least 32 characters that is not a documented placeholder.
func ResolveSecretKey(raw string) (string, error) {
	secret := strings.TrimSpace(raw)
	if secret == "" {
		return "", nil
	}
	if _, insecure := insecureSecretKeys[strings.ToLower(secret)]; insecure {
		return "", errors.New("SECRET_KEY uses an insecure placeholder value")
	}
	if len(secret) < minSecretKeyLength {
		return "", fmt.Errorf("SECRET_KEY must be at least %d characters", minSecretKeyLength)
	}
	return secret, nil
}
