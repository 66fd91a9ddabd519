package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SMARTMARK_DB_DRIVER", "sqlite3")
	t.Setenv("SMARTMARK_DB_DSN", "file:smartmark.db")
	t.Setenv("SMARTMARK_OIDC_ISSUER", "https://issuer.example.com")
	t.Setenv("SMARTMARK_OIDC_CLIENT_ID", "client")
	t.Setenv("SMARTMARK_OIDC_CLIENT_SECRET", "secret")
	t.Setenv("SMARTMARK_OIDC_REDIRECT_URL", "http://localhost:8080/auth/callback")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr = %q, want %q", cfg.HTTP.Addr, ":8080")
	}
	if cfg.SessionLifetime != 720*time.Hour {
		t.Errorf("session lifetime = %v, want 720h", cfg.SessionLifetime)
	}
	if cfg.Realtime.Backend != "memory" {
		t.Errorf("realtime backend = %q, want memory", cfg.Realtime.Backend)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
	if cfg.Metadata.Rate != 5 || cfg.Metadata.Burst != 5 {
		t.Errorf("metadata rate/burst = %v/%d, want 5/5", cfg.Metadata.Rate, cfg.Metadata.Burst)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SMARTMARK_HTTP_ADDR", ":9090")
	t.Setenv("SMARTMARK_REALTIME_BACKEND", "redis")
	t.Setenv("SMARTMARK_REDIS_ADDR", "redis:6379")
	t.Setenv("SMARTMARK_INSECURE_COOKIES", "true")
	t.Setenv("SMARTMARK_METADATA_ENDPOINT", "http://meta:8080/api/metadata")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("http.addr = %q, want :9090", cfg.HTTP.Addr)
	}
	if cfg.Realtime.Backend != "redis" || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("realtime = %q/%q, want redis/redis:6379", cfg.Realtime.Backend, cfg.Redis.Addr)
	}
	if cfg.Metadata.Endpoint != "http://meta:8080/api/metadata" {
		t.Errorf("metadata endpoint = %q", cfg.Metadata.Endpoint)
	}
	if !cfg.InsecureCookies {
		t.Error("expected insecure cookies to be enabled")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "missing driver", key: "SMARTMARK_DB_DRIVER", value: "", wantErr: "SMARTMARK_DB_DRIVER"},
		{name: "missing issuer", key: "SMARTMARK_OIDC_ISSUER", value: "", wantErr: "SMARTMARK_OIDC_ISSUER"},
		{name: "bad lifetime", key: "SMARTMARK_SESSION_LIFETIME", value: "forever", wantErr: "SESSION_LIFETIME"},
		{name: "bad backend", key: "SMARTMARK_REALTIME_BACKEND", value: "kafka", wantErr: "REALTIME_BACKEND"},
		{name: "zero rate", key: "SMARTMARK_METADATA_RATE", value: "0", wantErr: "METADATA_RATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() = nil error, want error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
