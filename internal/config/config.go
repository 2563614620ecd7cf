package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // zones resolve in images without /usr/share/zoneinfo

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Values come from an optional
// config.yaml and from MEMOLOGIST_* environment variables, e.g.
// MEMOLOGIST_REDIS_ADDR for redis.addr.
type Config struct {
	Addr         string        `mapstructure:"addr"`
	DBPath       string        `mapstructure:"db_path"`
	AdminSecret  string        `mapstructure:"admin_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
	Log          LogConfig     `mapstructure:"log"`
	RateLimits   RateLimits    `mapstructure:"rate_limits"`
	Redis        RedisConfig   `mapstructure:"redis"`
	Hot          HotConfig     `mapstructure:"hot"`
	Media        MediaConfig   `mapstructure:"media"`
	CORS         CORSConfig    `mapstructure:"cors"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type RateLimits struct {
	PostPerMinute    int `mapstructure:"post_per_minute"`
	CommentPerMinute int `mapstructure:"comment_per_minute"`
	MarkPerMinute    int `mapstructure:"mark_per_minute"`
}

// RedisConfig holds redis connection settings. An empty Addr disables
// Redis; limits and the decay lock then stay in-process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

type HotConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Window   time.Duration `mapstructure:"window"`
	Timezone string        `mapstructure:"timezone"`
}

// Location resolves Timezone, falling back to UTC when the zone database
// does not know it.
func (h HotConfig) Location() *time.Location {
	loc, err := h.LoadLocation()
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadLocation resolves Timezone and reports an unknown zone.
func (h HotConfig) LoadLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return nil, fmt.Errorf("hot.timezone %q: %w", h.Timezone, err)
	}
	return loc, nil
}

type MediaConfig struct {
	Provider string         `mapstructure:"provider"` // disk or imagekit
	Dir      string         `mapstructure:"dir"`
	BaseURL  string         `mapstructure:"base_url"`
	ImageKit ImageKitConfig `mapstructure:"imagekit"`
}

type ImageKitConfig struct {
	ID         string `mapstructure:"id"`
	PublicKey  string `mapstructure:"public_key"`
	PrivateKey string `mapstructure:"private_key"`
	UploadURL  string `mapstructure:"upload_url"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration into v. file may be empty, in which case
// config.yaml is looked up in the working directory and
// $HOME/.config/memologist; a missing file is not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("MEMOLOGIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/memologist")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.FillDefaults()
	return cfg, nil
}

// setDefaults registers every key so environment variables are seen by
// Unmarshal even without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "")
	v.SetDefault("db_path", "memologist.db")
	v.SetDefault("admin_secret", "")
	v.SetDefault("token_ttl", "168h")
	v.SetDefault("challenge_ttl", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("rate_limits.post_per_minute", 10)
	v.SetDefault("rate_limits.comment_per_minute", 30)
	v.SetDefault("rate_limits.mark_per_minute", 120)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("hot.interval", "1h")
	v.SetDefault("hot.window", "168h")
	v.SetDefault("hot.timezone", "Europe/Kiev")
	v.SetDefault("media.provider", "disk")
	v.SetDefault("media.dir", "./uploads")
	v.SetDefault("media.base_url", "")
	v.SetDefault("media.imagekit.id", "")
	v.SetDefault("media.imagekit.public_key", "")
	v.SetDefault("media.imagekit.private_key", "")
	v.SetDefault("media.imagekit.upload_url", "https://upload.imagekit.io/api/v1/files/upload")
	v.SetDefault("cors.allowed_origins", []string{})
}

// FillDefaults applies default values if not provided.
func (c *Config) FillDefaults() {
	if c.Addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			c.Addr = ":" + port
		} else {
			c.Addr = ":8080"
		}
	}
	if c.DBPath == "" {
		c.DBPath = "memologist.db"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 7 * 24 * time.Hour
	}
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = 5 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.RateLimits.PostPerMinute <= 0 {
		c.RateLimits.PostPerMinute = 10
	}
	if c.RateLimits.CommentPerMinute <= 0 {
		c.RateLimits.CommentPerMinute = 30
	}
	if c.RateLimits.MarkPerMinute <= 0 {
		c.RateLimits.MarkPerMinute = 120
	}
	if c.Hot.Interval <= 0 {
		c.Hot.Interval = time.Hour
	}
	if c.Hot.Window <= 0 {
		c.Hot.Window = 7 * 24 * time.Hour
	}
	if c.Hot.Timezone == "" {
		c.Hot.Timezone = "Europe/Kiev"
	}
	if c.Media.Provider == "" {
		c.Media.Provider = "disk"
	}
	if c.Media.Dir == "" {
		c.Media.Dir = "./uploads"
	}
	if c.Media.BaseURL == "" && c.Media.Provider == "disk" {
		c.Media.BaseURL = "/media"
	}
	if c.Media.Provider == "imagekit" && c.Media.BaseURL == "" && c.Media.ImageKit.ID != "" {
		c.Media.BaseURL = "https://ik.imagekit.io/" + c.Media.ImageKit.ID
	}
	var origins []string
	for _, o := range c.CORS.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORS.AllowedOrigins = origins
}
