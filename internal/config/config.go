package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		Driver string
		DSN    string
	}
	OIDC struct {
		Issuer       string
		ClientID     string
		ClientSecret string
		RedirectURL  string
	}
	Log struct {
		Level  string
		Pretty bool
	}
	Realtime struct {
		Backend string // "memory" or "redis"
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Metadata struct {
		Rate     float64 // outbound fetches per second
		Burst    int
		Endpoint string // remote /api/metadata used for inserts when set
	}
	SessionLifetime time.Duration
	InsecureCookies bool
}

// Load reads config from environment (SMARTMARK_ prefix) and optional smartmark.yaml.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SMARTMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("smartmark")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional config file

	setDefaults(v)
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("session.lifetime", "720h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("realtime.backend", "memory")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("metadata.rate", 5.0)
	v.SetDefault("metadata.burst", 5)
	v.SetDefault("metadata.endpoint", "")
	v.SetDefault("insecure_cookies", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.DB.Driver = v.GetString("db.driver")
	cfg.DB.DSN = v.GetString("db.dsn")
	cfg.OIDC.Issuer = v.GetString("oidc.issuer")
	cfg.OIDC.ClientID = v.GetString("oidc.client_id")
	cfg.OIDC.ClientSecret = v.GetString("oidc.client_secret")
	cfg.OIDC.RedirectURL = v.GetString("oidc.redirect_url")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Pretty = v.GetBool("log.pretty")
	cfg.Realtime.Backend = v.GetString("realtime.backend")
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")
	cfg.Metadata.Rate = v.GetFloat64("metadata.rate")
	cfg.Metadata.Burst = v.GetInt("metadata.burst")
	cfg.Metadata.Endpoint = v.GetString("metadata.endpoint")
	cfg.InsecureCookies = v.GetBool("insecure_cookies")

	lifetime, err := time.ParseDuration(v.GetString("session.lifetime"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMARTMARK_SESSION_LIFETIME: %w", err)
	}
	cfg.SessionLifetime = lifetime

	if cfg.DB.Driver == "" {
		return nil, fmt.Errorf("SMARTMARK_DB_DRIVER is required (sqlite3, mysql, postgres)")
	}
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("SMARTMARK_DB_DSN is required")
	}
	if cfg.OIDC.Issuer == "" {
		return nil, fmt.Errorf("SMARTMARK_OIDC_ISSUER is required")
	}
	if cfg.OIDC.ClientID == "" {
		return nil, fmt.Errorf("SMARTMARK_OIDC_CLIENT_ID is required")
	}
	if cfg.OIDC.ClientSecret == "" {
		return nil, fmt.Errorf("SMARTMARK_OIDC_CLIENT_SECRET is required")
	}
	if cfg.OIDC.RedirectURL == "" {
		return nil, fmt.Errorf("SMARTMARK_OIDC_REDIRECT_URL is required")
	}

	switch cfg.Realtime.Backend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unsupported SMARTMARK_REALTIME_BACKEND %q: must be memory or redis", cfg.Realtime.Backend)
	}
	if cfg.Metadata.Rate <= 0 {
		return nil, fmt.Errorf("SMARTMARK_METADATA_RATE must be > 0, got %v", cfg.Metadata.Rate)
	}
	if cfg.Metadata.Burst < 1 {
		cfg.Metadata.Burst = 1
	}

	return cfg, nil
}
