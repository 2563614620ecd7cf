package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.DBPath != "memologist.db" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TokenTTL != 168*time.Hour || cfg.ChallengeTTL != 5*time.Minute {
		t.Fatalf("unexpected ttls %v %v", cfg.TokenTTL, cfg.ChallengeTTL)
	}
	if cfg.Hot.Interval != time.Hour || cfg.Hot.Window != 7*24*time.Hour || cfg.Hot.Timezone != "Europe/Kiev" {
		t.Fatalf("unexpected hot config %+v", cfg.Hot)
	}
	if cfg.RateLimits.MarkPerMinute != 120 || cfg.Redis.Enabled() {
		t.Fatalf("unexpected limits/redis %+v %+v", cfg.RateLimits, cfg.Redis)
	}
	if cfg.Media.Provider != "disk" || cfg.Media.BaseURL != "/media" {
		t.Fatalf("unexpected media %+v", cfg.Media)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MEMOLOGIST_ADDR", ":9999")
	t.Setenv("MEMOLOGIST_REDIS_ADDR", "localhost:6379")
	t.Setenv("MEMOLOGIST_HOT_INTERVAL", "30m")
	t.Setenv("MEMOLOGIST_RATE_LIMITS_POST_PER_MINUTE", "3")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Hot.Interval != 30*time.Minute || cfg.RateLimits.PostPerMinute != 3 {
		t.Fatalf("env not applied: %+v %+v", cfg.Hot, cfg.RateLimits)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memologist.yaml")
	body := `
db_path: /tmp/m.db
log:
  level: debug
  format: json
media:
  provider: imagekit
  imagekit:
    id: demo
cors:
  allowed_origins:
    - https://memologist.example
    - " "
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/m.db" || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if cfg.Media.BaseURL != "https://ik.imagekit.io/demo" {
		t.Fatalf("unexpected media base %q", cfg.Media.BaseURL)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://memologist.example" {
		t.Fatalf("unexpected origins %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unterminated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(viper.New(), path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestHotLocationFallback(t *testing.T) {
	if loc := (HotConfig{Timezone: "Nowhere/Land"}).Location(); loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}
}

func TestHotLocationEmbeddedZone(t *testing.T) {
	loc, err := (HotConfig{Timezone: "Europe/Kiev"}).LoadLocation()
	if err != nil {
		t.Fatalf("load Europe/Kiev: %v", err)
	}
	if loc == time.UTC || loc.String() != "Europe/Kiev" {
		t.Fatalf("unexpected location %v", loc)
	}
	if _, err := (HotConfig{Timezone: "Nowhere/Land"}).LoadLocation(); err == nil {
		t.Fatal("expected an error for an unknown zone")
	}
}
