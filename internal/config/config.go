// Package config loads DayForge's runtime configuration from environment
// variables and an optional .env file via viper and godotenv.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is every knob the binary needs at startup.
type Config struct {
	Addr             string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	PostgresDSN      string
	JWTSecret        string
	JWTIssuer        string
	CalendarInterval time.Duration
	MailInterval     time.Duration
	ChatInterval     time.Duration
	EnergyInterval   time.Duration
	ShutdownTimeout  time.Duration
	OpenAIAPIKey     string
	DelegationRate   float64
	DelegationBurst  int
	MaxWSConnections int
	HeartbeatPeriod  time.Duration
}

// Load reads .env (if present, ignored if missing) and binds DAYFORGE_*
// environment variables via viper.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional in local dev; ignored in prod containers

	v := viper.New()
	v.SetEnvPrefix("dayforge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8090")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "dayforge")
	v.SetDefault("calendar_interval", "2m")
	v.SetDefault("mail_interval", "2m")
	v.SetDefault("chat_interval", "30s")
	v.SetDefault("energy_interval", "5m")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("delegation_rate", 1.0)
	v.SetDefault("delegation_burst", 5)
	v.SetDefault("max_ws_connections", 200)
	v.SetDefault("heartbeat_period", "30s")

	cfg := &Config{
		Addr:             v.GetString("addr"),
		RedisAddr:        v.GetString("redis_addr"),
		RedisPassword:    v.GetString("redis_password"),
		RedisDB:          v.GetInt("redis_db"),
		PostgresDSN:      v.GetString("postgres_dsn"),
		JWTSecret:        v.GetString("jwt_secret"),
		JWTIssuer:        v.GetString("jwt_issuer"),
		CalendarInterval: v.GetDuration("calendar_interval"),
		MailInterval:     v.GetDuration("mail_interval"),
		ChatInterval:     v.GetDuration("chat_interval"),
		EnergyInterval:   v.GetDuration("energy_interval"),
		ShutdownTimeout:  v.GetDuration("shutdown_timeout"),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		DelegationRate:   v.GetFloat64("delegation_rate"),
		DelegationBurst:  v.GetInt("delegation_burst"),
		MaxWSConnections: v.GetInt("max_ws_connections"),
		HeartbeatPeriod:  v.GetDuration("heartbeat_period"),
	}
	return cfg, nil
}
