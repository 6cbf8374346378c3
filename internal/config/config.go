package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr        string `mapstructure:"addr"`
	Environment string `mapstructure:"environment"`
	CORSOrigin  string `mapstructure:"cors_origin"`
	// TrustProxy honours X-Forwarded-For / X-Real-IP when keying rate limits.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool            `mapstructure:"trust_proxy"`
	Storage    StorageConfig   `mapstructure:"storage"`
	Admin      AdminConfig     `mapstructure:"admin"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	// Redis backs admin sessions and rate limiting; in-memory fallbacks are used when empty.
	RedisURL       string        `mapstructure:"redis_url"`
	MeiliURL       string        `mapstructure:"meili_url"`
	MeiliMasterKey string        `mapstructure:"meili_master_key"`
	SMTP           SMTPConfig    `mapstructure:"smtp"`
	Logging        LoggingConfig `mapstructure:"logging"`
	// Timezone used to bucket leads for analytics.
	Timezone string `mapstructure:"timezone"`
}

type StorageConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	SignedURLTTL    time.Duration `mapstructure:"signed_url_ttl"`
	// Memory swaps the S3 client for an in-process store. Local development only.
	Memory bool `mapstructure:"memory"`
}

type AdminConfig struct {
	Name         string        `mapstructure:"name"`
	PasswordHash string        `mapstructure:"password_hash"`
	Password     string        `mapstructure:"password"`
	TokenSecret  string        `mapstructure:"token_secret"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
}

type RateLimitConfig struct {
	Submissions int           `mapstructure:"submissions"`
	Logins      int           `mapstructure:"logins"`
	Window      time.Duration `mapstructure:"window"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const devTokenSecret = "mynextride-dev-secret"

// env names predate the viper loader and are kept stable for deployments.
var envBindings = map[string]string{
	"addr":                      "API_ADDR",
	"environment":               "APP_ENV",
	"cors_origin":               "CORS_ORIGIN",
	"trust_proxy":               "TRUST_PROXY",
	"storage.endpoint":          "S3_ENDPOINT",
	"storage.region":            "S3_REGION",
	"storage.bucket":            "S3_BUCKET",
	"storage.access_key_id":     "S3_ACCESS_KEY_ID",
	"storage.secret_access_key": "S3_SECRET_ACCESS_KEY",
	"storage.use_ssl":           "S3_USE_SSL",
	"storage.signed_url_ttl":    "S3_SIGNED_URL_TTL",
	"storage.memory":            "STORAGE_MEMORY",
	"admin.name":                "ADMIN_NAME",
	"admin.password_hash":       "ADMIN_PASSWORD_HASH",
	"admin.password":            "ADMIN_PASSWORD",
	"admin.token_secret":        "ADMIN_TOKEN_SECRET",
	"admin.session_ttl":         "ADMIN_SESSION_TTL",
	"rate_limit.submissions":    "RATE_LIMIT_SUBMISSIONS",
	"rate_limit.logins":         "RATE_LIMIT_LOGINS",
	"rate_limit.window":         "RATE_LIMIT_WINDOW",
	"redis_url":                 "REDIS_URL",
	"meili_url":                 "MEILI_URL",
	"meili_master_key":          "MEILI_MASTER_KEY",
	"smtp.host":                 "SMTP_HOST",
	"smtp.port":                 "SMTP_PORT",
	"smtp.username":             "SMTP_USERNAME",
	"smtp.password":             "SMTP_PASSWORD",
	"smtp.from":                 "SMTP_FROM",
	"smtp.from_name":            "SMTP_FROM_NAME",
	"logging.level":             "LOG_LEVEL",
	"logging.format":            "LOG_FORMAT",
	"timezone":                  "APP_TIMEZONE",
}

// Load reads .env (if present), the process environment and an optional
// config file, in increasing order of precedence for the environment.
func Load(configFile string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	applyDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8787")
	v.SetDefault("environment", "development")
	v.SetDefault("cors_origin", "*")
	v.SetDefault("trust_proxy", false)

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "mynextride-leads")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.signed_url_ttl", 15*time.Minute)
	v.SetDefault("storage.memory", false)

	v.SetDefault("admin.name", "Admin")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.token_secret", devTokenSecret)
	v.SetDefault("admin.session_ttl", 12*time.Hour)

	v.SetDefault("rate_limit.submissions", 5)
	v.SetDefault("rate_limit.logins", 10)
	v.SetDefault("rate_limit.window", 15*time.Minute)

	v.SetDefault("redis_url", "")
	v.SetDefault("meili_url", "")
	v.SetDefault("meili_master_key", "")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.from_name", "My Next Ride Ontario")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("timezone", "America/Toronto")
}

// Production reports whether dev-only conveniences must be refused.
func (c Config) Production() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if c.Storage.Bucket == "" {
		return errors.New("config: storage bucket is required")
	}
	if c.Admin.PasswordHash == "" && c.Admin.Password == "" {
		return errors.New("config: ADMIN_PASSWORD_HASH or ADMIN_PASSWORD is required")
	}
	if c.Admin.SessionTTL <= 0 {
		return errors.New("config: admin session ttl must be positive")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Submissions <= 0 || c.RateLimit.Logins <= 0 {
		return errors.New("config: rate limits must be positive")
	}
	if c.Storage.SignedURLTTL <= 0 {
		return errors.New("config: signed url ttl must be positive")
	}
	if c.Production() {
		if c.Admin.TokenSecret == "" || c.Admin.TokenSecret == devTokenSecret {
			return errors.New("config: ADMIN_TOKEN_SECRET must be set in production")
		}
		if c.Admin.PasswordHash == "" {
			return errors.New("config: ADMIN_PASSWORD_HASH must be set in production")
		}
		if c.Storage.Memory {
			return errors.New("config: in-memory storage is not allowed in production")
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}
