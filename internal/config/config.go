package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mbeverdam/weatherdash/internal/models"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string `validate:"required"`

	StoreBackend     string `validate:"oneof=file memcached"`
	StoreDir         string
	CookiePath       string
	StoreTTL         time.Duration `validate:"gt=0"`
	MemcachedAddrs   string
	MemcachedTimeout time.Duration

	Provider        string `validate:"oneof=wttr buienradar"`
	ProviderBaseURL string
	ProviderTimeout time.Duration `validate:"gt=0"`

	RadarURL     string
	RadarTimeout time.Duration

	LoadTimeout     time.Duration     `validate:"gt=0"`
	Locations       []models.Location `validate:"min=1"`
	DefaultLocation string

	RefreshInterval time.Duration

	GatewayEnabled    bool
	GatewayVersion    string        `validate:"required"`
	GatewayWeatherTTL time.Duration `validate:"gt=0"`
	GatewayBackend    string        `validate:"oneof=memory redis"`
	GatewayOrigin     string
	GatewayStartPage  string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	StaticAssets      []string
	WeatherPatterns   []string

	RateLimitRPS   int
	RateLimitBurst int
	RequestTimeout time.Duration

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Store struct {
		Backend    string `yaml:"backend"`
		Dir        string `yaml:"dir"`
		CookiePath string `yaml:"cookie_path"`
		TTL        string `yaml:"ttl"`
		Memcached  struct {
			Addrs   string `yaml:"addrs"`
			Timeout string `yaml:"timeout"`
		} `yaml:"memcached"`
	} `yaml:"store"`

	Provider struct {
		Name    string `yaml:"name"`
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"provider"`

	Radar struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"radar"`

	Dashboard struct {
		LoadTimeout     string `yaml:"load_timeout"`
		DefaultLocation string `yaml:"default_location"`
		Locations       []struct {
			ID   string  `yaml:"id"`
			Name string  `yaml:"name"`
			Lat  float64 `yaml:"lat"`
			Lon  float64 `yaml:"lon"`
		} `yaml:"locations"`
	} `yaml:"dashboard"`

	Refresh struct {
		Interval string `yaml:"interval"`
	} `yaml:"refresh"`

	Gateway struct {
		Enabled         *bool    `yaml:"enabled"`
		Version         string   `yaml:"version"`
		WeatherTTL      string   `yaml:"weather_ttl"`
		Backend         string   `yaml:"backend"`
		Origin          string   `yaml:"origin"`
		StartPage       string   `yaml:"start_page"`
		StaticAssets    []string `yaml:"static_assets"`
		WeatherPatterns []string `yaml:"weather_patterns"`
		Redis           struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"gateway"`

	Reliability struct {
		RateLimitRPS   int    `yaml:"rate_limit_rps"`
		RateLimitBurst int    `yaml:"rate_limit_burst"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), after
// loading a .env file if one exists. Env vars override file values for the
// settings that commonly differ per deployment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML, applying defaults and env overrides.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(os.Getenv("STORE_BACKEND")))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = strings.TrimSpace(strings.ToLower(fc.Store.Backend))
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "file"
	}
	cfg.StoreDir = fc.Store.Dir
	if cfg.StoreDir == "" {
		cfg.StoreDir = "data"
	}
	cfg.CookiePath = fc.Store.CookiePath
	if cfg.CookiePath == "" {
		cfg.CookiePath = filepath.Join(cfg.StoreDir, "cookie.txt")
	}
	cfg.StoreTTL = parseDuration(fc.Store.TTL, 10*time.Minute)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Store.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Store.Memcached.Timeout, 500*time.Millisecond)

	cfg.Provider = strings.TrimSpace(strings.ToLower(os.Getenv("WEATHER_PROVIDER")))
	if cfg.Provider == "" {
		cfg.Provider = strings.TrimSpace(strings.ToLower(fc.Provider.Name))
	}
	if cfg.Provider == "" {
		cfg.Provider = "wttr"
	}
	cfg.ProviderBaseURL = fc.Provider.BaseURL
	cfg.ProviderTimeout = parseDuration(fc.Provider.Timeout, 10*time.Second)

	cfg.RadarURL = fc.Radar.URL
	cfg.RadarTimeout = parseDuration(fc.Radar.Timeout, 10*time.Second)

	cfg.LoadTimeout = parseDuration(fc.Dashboard.LoadTimeout, 5*time.Second)
	for _, loc := range fc.Dashboard.Locations {
		cfg.Locations = append(cfg.Locations, models.Location{
			ID: loc.ID, Name: loc.Name, Lat: loc.Lat, Lon: loc.Lon,
		})
	}
	if len(cfg.Locations) == 0 {
		cfg.Locations = []models.Location{{ID: "amsterdam", Name: "Amsterdam", Lat: 52.37, Lon: 4.89}}
	}
	cfg.DefaultLocation = fc.Dashboard.DefaultLocation
	if cfg.DefaultLocation == "" {
		cfg.DefaultLocation = cfg.Locations[0].ID
	}

	cfg.RefreshInterval = parseDurationOrZero(fc.Refresh.Interval, 0)

	cfg.GatewayEnabled = true
	if fc.Gateway.Enabled != nil {
		cfg.GatewayEnabled = *fc.Gateway.Enabled
	}
	cfg.GatewayVersion = fc.Gateway.Version
	if cfg.GatewayVersion == "" {
		cfg.GatewayVersion = "v1"
	}
	cfg.GatewayWeatherTTL = parseDuration(fc.Gateway.WeatherTTL, 30*time.Minute)
	cfg.GatewayBackend = strings.TrimSpace(strings.ToLower(os.Getenv("GATEWAY_BACKEND")))
	if cfg.GatewayBackend == "" {
		cfg.GatewayBackend = strings.TrimSpace(strings.ToLower(fc.Gateway.Backend))
	}
	if cfg.GatewayBackend == "" {
		cfg.GatewayBackend = "memory"
	}
	cfg.GatewayOrigin = fc.Gateway.Origin
	cfg.GatewayStartPage = fc.Gateway.StartPage
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = strings.TrimSpace(fc.Gateway.Redis.Addr)
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisPassword == "" {
		cfg.RedisPassword = fc.Gateway.Redis.Password
	}
	cfg.RedisDB = fc.Gateway.Redis.DB
	cfg.StaticAssets = fc.Gateway.StaticAssets
	if len(cfg.StaticAssets) == 0 {
		cfg.StaticAssets = []string{"/", "/index.html", "/app.js", "/styles.css", "/manifest.json"}
	}
	cfg.WeatherPatterns = fc.Gateway.WeatherPatterns
	if len(cfg.WeatherPatterns) == 0 {
		cfg.WeatherPatterns = []string{"wttr.in", "buienradar.nl"}
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.RequestTimeout = parseDuration(fc.Reliability.RequestTimeout, 15*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultLocationModel resolves the configured default location id.
func (c *Config) DefaultLocationModel() models.Location {
	for _, loc := range c.Locations {
		if loc.ID == c.DefaultLocation {
			return loc
		}
	}
	return c.Locations[0]
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero and negative values pass through as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
