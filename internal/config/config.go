package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	MissingCountReject = "reject"
	MissingCountZero   = "zero"
)

type Config struct {
	Port                     string
	Env                      string
	LogLevel                 string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	DefaultBranchID          string
	AnalyticsCacheTTLSeconds int
	AuthSecret               string
	AccessTokenTTLMinutes    int
	ManagerPIN               string
	LoginRatePerMinute       int
	PINRatePerMinute         int
	MissingCountPolicy       string
	RequestTimeoutSeconds    int
}

func Load() Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_BRANCH_ID", "branch1")
	v.SetDefault("ANALYTICS_CACHE_TTL_SECONDS", 5)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 5)
	v.SetDefault("PIN_RATE_PER_MINUTE", 8)
	v.SetDefault("CLOSE_MISSING_COUNT_POLICY", MissingCountReject)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 10)

	cfg := Config{
		Port:                     v.GetString("PORT"),
		Env:                      strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		AllowedOrigin:            v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:              strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:                strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		RedisDB:                  v.GetInt("REDIS_DB"),
		DefaultBranchID:          v.GetString("DEFAULT_BRANCH_ID"),
		AnalyticsCacheTTLSeconds: atLeast(v.GetInt("ANALYTICS_CACHE_TTL_SECONDS"), 0, 5),
		AuthSecret:               strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:    atLeast(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 1, 480),
		ManagerPIN:               strings.TrimSpace(v.GetString("MANAGER_PIN")),
		LoginRatePerMinute:       atLeast(v.GetInt("LOGIN_RATE_PER_MINUTE"), 1, 5),
		PINRatePerMinute:         atLeast(v.GetInt("PIN_RATE_PER_MINUTE"), 1, 8),
		MissingCountPolicy:       strings.ToLower(strings.TrimSpace(v.GetString("CLOSE_MISSING_COUNT_POLICY"))),
		RequestTimeoutSeconds:    atLeast(v.GetInt("REQUEST_TIMEOUT_SECONDS"), 1, 10),
	}
	if cfg.MissingCountPolicy != MissingCountZero {
		cfg.MissingCountPolicy = MissingCountReject
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AnalyticsCacheTTL() time.Duration {
	return time.Duration(c.AnalyticsCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func atLeast(value, min, fallback int) int {
	if value < min {
		return fallback
	}
	return value
}
