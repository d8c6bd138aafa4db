package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "ATTRIBUTION"

// Config is the process configuration for the server and CLI
type Config struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	GinMode        string        `envconfig:"GIN_MODE" default:"release"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	DataDir        string        `envconfig:"DATA_DIR" default:"./data"`
	ModelConfigDir string        `envconfig:"MODEL_CONFIG_DIR" default:"./data/tenants"`
	RunRetention   time.Duration `envconfig:"RUN_RETENTION" default:"0s"`
	StoreRuns      bool          `envconfig:"STORE_RUNS" default:"true"`
	DBMaxOpenConns int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"10"`

	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	CacheMaxEntries int           `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`

	IPRateLimitPerMin     int `envconfig:"IP_RATE_LIMIT_PER_MIN" default:"120"`
	TenantRateLimitPerMin int `envconfig:"TENANT_RATE_LIMIT_PER_MIN" default:"600"`

	BatchWorkers   int           `envconfig:"BATCH_WORKERS" default:"0"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	MaxBodyBytes   int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	EnableHSTS     bool          `envconfig:"ENABLE_HSTS" default:"false"`

	CORSOrigins   []string `envconfig:"CORS_ORIGINS" default:"*"`
	EnablePprof   bool     `envconfig:"ENABLE_PPROF" default:"false"`
	EnableSwagger bool     `envconfig:"ENABLE_SWAGGER" default:"true"`

	// Admin routes are only mounted when a signing secret is configured
	AdminJWTSecret string `envconfig:"ADMIN_JWT_SECRET"`
	AdminJWTIssuer string `envconfig:"ADMIN_JWT_ISSUER" default:"b2b-attribution"`
}

// minAdminSecretLength matches the HS256 key size
const minAdminSecretLength = 32

// Load reads an optional .env file and then the ATTRIBUTION_* environment.
// Values already in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
		slog.Debug("Loaded environment file", "path", f)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid gin mode %q", c.GinMode)
	}
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.CacheTTL < 0 || c.RunRetention < 0 || c.RequestTimeout < 0 || c.MaxBodyBytes < 0 {
		return errors.New("durations and sizes must not be negative")
	}
	if c.IPRateLimitPerMin < 0 || c.TenantRateLimitPerMin < 0 {
		return errors.New("rate limits must not be negative")
	}
	if c.BatchWorkers < 0 {
		return errors.New("batch workers must not be negative")
	}
	if c.DBMaxOpenConns < 1 || c.DBMaxIdleConns < 0 {
		return errors.New("database pool needs at least one open connection")
	}
	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < minAdminSecretLength {
		return fmt.Errorf("admin jwt secret must be at least %d bytes", minAdminSecretLength)
	}
	return nil
}

// AdminEnabled reports whether the token-protected admin routes are served
func (c *Config) AdminEnabled() bool {
	return c.AdminJWTSecret != ""
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.Port
}
