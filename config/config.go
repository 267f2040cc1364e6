// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	KeyPort        = "APP_PORT"
	KeyDatabaseURL = "DATABASE_URL"
	KeyDBMaxConns  = "DB_MAX_CONNS"
	KeyRedisAddr   = "REDIS_ADDR"
	KeyRedisDB     = "REDIS_DB"
	KeyCacheTTL    = "CACHE_TTL_SECONDS"
	KeyESAddr      = "ES_ADDR"
	KeyESIndex     = "ES_INDEX"
	KeyNATSURL     = "NATS_URL"
	KeyJWTSecret   = "JWT_SECRET"
	KeyCORSOrigins = "CORS_ALLOWED_ORIGINS"
	KeyLogLevel    = "LOG_LEVEL"
	KeyAutoMigrate = "AUTO_MIGRATE"
)

type Config struct {
	Port            string
	DatabaseURL     string
	DBMaxConns      int32
	RedisAddr       string
	RedisDB         int
	CacheTTLSeconds int
	ESAddr          string
	ESIndex         string
	NATSURL         string
	JWTSecret       string
	CORSOrigins     []string
	LogLevel        slog.Level
	AutoMigrate     bool

	v *viper.Viper
}

// Load reads envFile (a missing file is not an error) and then the process
// environment. Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyDBMaxConns, 10)
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyCacheTTL, 300)
	v.SetDefault(KeyESIndex, "posts")
	v.SetDefault(KeyCORSOrigins, "*")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAutoMigrate, true)
	for _, k := range []string{KeyDatabaseURL, KeyRedisAddr, KeyESAddr, KeyNATSURL, KeyJWTSecret} {
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()

	cfg := &Config{
		Port:            v.GetString(KeyPort),
		DatabaseURL:     v.GetString(KeyDatabaseURL),
		DBMaxConns:      v.GetInt32(KeyDBMaxConns),
		RedisAddr:       v.GetString(KeyRedisAddr),
		RedisDB:         v.GetInt(KeyRedisDB),
		CacheTTLSeconds: v.GetInt(KeyCacheTTL),
		ESAddr:          v.GetString(KeyESAddr),
		ESIndex:         v.GetString(KeyESIndex),
		NATSURL:         v.GetString(KeyNATSURL),
		JWTSecret:       v.GetString(KeyJWTSecret),
		CORSOrigins:     splitList(v.GetString(KeyCORSOrigins)),
		AutoMigrate:     v.GetBool(KeyAutoMigrate),
		v:               v,
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return nil, fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("%s must be positive, got %d", KeyDBMaxConns, cfg.DBMaxConns)
	}
	return cfg, nil
}

// Require fails when any of the named settings is empty.
func (c *Config) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(c.v.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
