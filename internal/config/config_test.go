package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable New reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	for _, envs := range bindings {
		for _, e := range envs {
			t.Setenv(e, "")
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "postgres", c.DBAdapter)
	assert.Equal(t, 30*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenTTL)
	assert.Equal(t, 10, c.BcryptCost)
	assert.Equal(t, "db", c.RevocationBackend)
	assert.Equal(t, []string{"*"}, c.CORSAllowedOrigins)
	assert.Equal(t, "host=localhost port=5432 user=blog dbname=blog sslmode=disable password=blogpass", c.PostgresDSN)
}

func TestNew_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_ADAPTER", "sqlite")
	t.Setenv("SQLITE_FILE", "/tmp/x.db")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REVOCATION_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.DBAdapter)
	assert.Equal(t, "/tmp/x.db", c.SQLiteFile)
	assert.Equal(t, 5*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, 12, c.BcryptCost)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSAllowedOrigins)
	assert.Equal(t, "redis", c.RevocationBackend)
	assert.Equal(t, "redis://cache:6379/1", c.RedisURL)
}

func TestNew_LegacyDBFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "svc")
	t.Setenv("POSTGRES_USER", "preferred")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", c.PostgresHost)
	assert.Equal(t, "preferred", c.PostgresUser)
}

func TestNew_ProductionRequiresSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")

	_, err := New()
	assert.EqualError(t, err, "JWT_SECRET must be set in production")

	t.Setenv("JWT_SECRET", "a-real-secret")
	c, err := New()
	require.NoError(t, err)
	assert.True(t, c.IsProduction())
}

func TestNew_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"port":     {"PORT", "eighty"},
		"adapter":  {"DB_ADAPTER", "mongo"},
		"ttl":      {"REFRESH_TOKEN_TTL", "a week"},
		"cost":     {"BCRYPT_COST", "high"},
		"backend":  {"REVOCATION_BACKEND", "etcd"},
		"rate":     {"LOGIN_RATE_PER_MINUTE", "0"},
		"negative": {"ACCESS_TOKEN_TTL", "-1m"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := New()
			assert.Error(t, err)
		})
	}
}

func TestNew_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "blog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_adapter: memory\nport: 9090\naccess_token_ttl: 15m\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "memory", c.DBAdapter)
	assert.Equal(t, 15*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, "7070", c.Port, "environment wins over the file")
}

func TestBuildPostgresDSN(t *testing.T) {
	c := &Config{PostgresDSN: "postgres://x"}
	dsn, err := c.BuildPostgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", dsn)

	c = &Config{PostgresUser: "u", PostgresDB: "d"}
	_, err = c.BuildPostgresDSN()
	assert.Error(t, err)

	c = &Config{PostgresHost: "h", PostgresUser: "u", PostgresDB: "d"}
	dsn, err = c.BuildPostgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "host=h port=5432 user=u dbname=d sslmode=disable", dsn)
}
