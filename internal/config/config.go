package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultSecret = "change-me"

type Config struct {
	Port       string
	DBAdapter  string
	SQLiteFile string
	JwtSecret  string
	LogLevel   string
	Env        string
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	MigrationsDir    string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	// RevocationBackend is "db" (the main store) or "redis".
	RevocationBackend   string
	RedisURL            string
	RevocationCacheSize int
	RevocationCacheTTL  time.Duration
	PruneSchedule       string

	LoginRatePerMinute int
	CORSAllowedOrigins []string
}

// env keys, most specific first
var bindings = map[string][]string{
	"port":                  {"PORT"},
	"db_adapter":            {"DB_ADAPTER"},
	"sqlite_file":           {"SQLITE_FILE"},
	"jwt_secret":            {"JWT_SECRET"},
	"log_level":             {"LOG_LEVEL"},
	"env":                   {"ENV", "NODE_ENV"},
	"postgres_dsn":          {"POSTGRES_DSN", "DATABASE_URL"},
	"postgres_host":         {"POSTGRES_HOST", "DB_HOST"},
	"postgres_port":         {"POSTGRES_PORT", "DB_PORT"},
	"postgres_user":         {"POSTGRES_USER", "DB_USER"},
	"postgres_password":     {"POSTGRES_PASSWORD", "DB_PASSWORD"},
	"postgres_db":           {"POSTGRES_DB", "DB_NAME"},
	"postgres_sslmode":      {"POSTGRES_SSLMODE", "DB_SSLMODE"},
	"migrations_dir":        {"MIGRATIONS_DIR"},
	"access_token_ttl":      {"ACCESS_TOKEN_TTL"},
	"refresh_token_ttl":     {"REFRESH_TOKEN_TTL"},
	"bcrypt_cost":           {"BCRYPT_COST"},
	"revocation_backend":    {"REVOCATION_BACKEND"},
	"redis_url":             {"REDIS_URL"},
	"revocation_cache_size": {"REVOCATION_CACHE_SIZE"},
	"revocation_cache_ttl":  {"REVOCATION_CACHE_TTL"},
	"prune_schedule":        {"PRUNE_SCHEDULE"},
	"login_rate_per_minute": {"LOGIN_RATE_PER_MINUTE"},
	"cors_allowed_origins":  {"CORS_ALLOWED_ORIGINS"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_adapter", "postgres")
	v.SetDefault("sqlite_file", "./data/blog.db")
	v.SetDefault("jwt_secret", defaultSecret)
	v.SetDefault("log_level", "info")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "blog")
	v.SetDefault("postgres_password", "blogpass")
	v.SetDefault("postgres_db", "blog")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("migrations_dir", "./migrations")
	v.SetDefault("access_token_ttl", "30m")
	v.SetDefault("refresh_token_ttl", "168h")
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("revocation_backend", "db")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("revocation_cache_size", 4096)
	v.SetDefault("revocation_cache_ttl", "5m")
	v.SetDefault("prune_schedule", "@every 1h")
	v.SetDefault("login_rate_per_minute", 20)
	v.SetDefault("cors_allowed_origins", "*")
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)
	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}
	return dsn, nil
}

// IsProduction reports whether ENV (or NODE_ENV) names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// New reads configuration from the environment and, when CONFIG_FILE is
// set, from that file. Environment variables win over the file.
func New() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, err
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	c := &Config{
		Port:               v.GetString("port"),
		DBAdapter:          strings.ToLower(v.GetString("db_adapter")),
		SQLiteFile:         v.GetString("sqlite_file"),
		JwtSecret:          v.GetString("jwt_secret"),
		LogLevel:           v.GetString("log_level"),
		Env:                v.GetString("env"),
		PostgresDSN:        v.GetString("postgres_dsn"),
		PostgresHost:       v.GetString("postgres_host"),
		PostgresPort:       v.GetString("postgres_port"),
		PostgresUser:       v.GetString("postgres_user"),
		PostgresPassword:   v.GetString("postgres_password"),
		PostgresDB:         v.GetString("postgres_db"),
		PostgresSSLMode:    v.GetString("postgres_sslmode"),
		MigrationsDir:      v.GetString("migrations_dir"),
		RevocationBackend:  strings.ToLower(v.GetString("revocation_backend")),
		RedisURL:           v.GetString("redis_url"),
		PruneSchedule:      v.GetString("prune_schedule"),
		CORSAllowedOrigins: splitList(v.GetString("cors_allowed_origins")),
	}

	var err error
	if c.AccessTokenTTL, err = duration(v, "access_token_ttl"); err != nil {
		return nil, err
	}
	if c.RefreshTokenTTL, err = duration(v, "refresh_token_ttl"); err != nil {
		return nil, err
	}
	if c.RevocationCacheTTL, err = duration(v, "revocation_cache_ttl"); err != nil {
		return nil, err
	}
	if c.BcryptCost, err = integer(v, "bcrypt_cost"); err != nil {
		return nil, err
	}
	if c.RevocationCacheSize, err = integer(v, "revocation_cache_size"); err != nil {
		return nil, err
	}
	if c.LoginRatePerMinute, err = integer(v, "login_rate_per_minute"); err != nil {
		return nil, err
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	switch c.RevocationBackend {
	case "db":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("REDIS_URL must be set when REVOCATION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported REVOCATION_BACKEND: %s (supported: db, redis)", c.RevocationBackend)
	}

	if c.IsProduction() && (c.JwtSecret == "" || c.JwtSecret == defaultSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.JwtSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.LoginRatePerMinute < 1 {
		return fmt.Errorf("invalid LOGIN_RATE_PER_MINUTE: %d", c.LoginRatePerMinute)
	}
	return nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", strings.ToUpper(key), raw)
	}
	return d, nil
}

func integer(v *viper.Viper, key string) (int, error) {
	raw := v.GetString(key)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", strings.ToUpper(key), raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
