package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/bdschart/internal/birdeye"
	"github.com/rustyeddy/bdschart/market"
)

// Environment variables holding the Birdeye API key, in lookup order.
const (
	EnvAPIKey         = "BDS_API_KEY"
	EnvStandardAPIKey = "BDS_STANDARD_API_KEY"
)

const (
	DefaultOutput          = "bds-realtime-chart.html"
	DefaultTitle           = "BDS Real-time Candlestick Chart"
	DefaultChartLibraryURL = "https://unpkg.com/lightweight-charts/dist/lightweight-charts.standalone.production.js"
)

// Config represents the complete chart generator configuration
type Config struct {
	API   APIConfig   `json:"api" yaml:"api"`
	Chart ChartConfig `json:"chart" yaml:"chart"`

	// APIKey comes from the environment only.
	APIKey string `json:"-" yaml:"-"`
}

// APIConfig contains the Birdeye endpoints
type APIConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	WSURL   string `json:"ws_url" yaml:"ws_url"`
	Origin  string `json:"origin,omitempty" yaml:"origin,omitempty"`
	Chain   string `json:"chain" yaml:"chain"` // sent as x-chain
}

// ChartConfig contains the page and session parameters
type ChartConfig struct {
	Token           string           `json:"token" yaml:"token"`
	Timeframe       market.Timeframe `json:"timeframe" yaml:"timeframe"`
	CountLimit      int              `json:"count_limit" yaml:"count_limit"`
	SubscribeDelay  string           `json:"subscribe_delay" yaml:"subscribe_delay"` // e.g. "1s", "500ms"
	Output          string           `json:"output" yaml:"output"`
	Title           string           `json:"title" yaml:"title"`
	ChartLibraryURL string           `json:"chart_library_url" yaml:"chart_library_url"`
	UpColor         string           `json:"up_color" yaml:"up_color"`
	DownColor       string           `json:"down_color" yaml:"down_color"`
}

// ParseSubscribeDelay converts the delay string to time.Duration
func (cc ChartConfig) ParseSubscribeDelay() (time.Duration, error) {
	if cc.SubscribeDelay == "" {
		return 0, nil
	}
	return time.ParseDuration(cc.SubscribeDelay)
}

// LoadEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored; with no files ".env" is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// APIKeyFromEnv returns BDS_API_KEY, falling back to BDS_STANDARD_API_KEY.
func APIKeyFromEnv() string {
	if k := strings.TrimSpace(os.Getenv(EnvAPIKey)); k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv(EnvStandardAPIKey))
}

// LoadFromFile loads configuration from a file (JSON or YAML). Fields the file
// leaves out keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. The API key is not checked
// here; only page generation requires it.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.WSURL == "" {
		return fmt.Errorf("api.ws_url is required")
	}
	if !strings.HasPrefix(c.API.WSURL, "ws://") && !strings.HasPrefix(c.API.WSURL, "wss://") {
		return fmt.Errorf("api.ws_url must start with ws:// or wss://")
	}
	if c.API.Chain == "" {
		return fmt.Errorf("api.chain is required")
	}
	if c.Chart.Token == "" {
		return fmt.Errorf("chart.token is required")
	}
	if _, err := market.ParseTimeframe(string(c.Chart.Timeframe)); err != nil {
		return fmt.Errorf("chart.timeframe: %w", err)
	}
	if c.Chart.CountLimit <= 0 {
		return fmt.Errorf("chart.count_limit must be positive")
	}
	d, err := c.Chart.ParseSubscribeDelay()
	if err != nil {
		return fmt.Errorf("chart.subscribe_delay: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("chart.subscribe_delay must not be negative")
	}
	if c.Chart.Output == "" {
		return fmt.Errorf("chart.output is required")
	}
	if c.Chart.ChartLibraryURL == "" {
		return fmt.Errorf("chart.chart_library_url is required")
	}
	if c.Chart.UpColor == "" || c.Chart.DownColor == "" {
		return fmt.Errorf("chart up_color and down_color are required")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: birdeye.DefaultBaseURL,
			WSURL:   birdeye.DefaultWSURL,
			Origin:  birdeye.DefaultWSOrigin,
			Chain:   birdeye.DefaultChain,
		},
		Chart: ChartConfig{
			Token:           birdeye.SOLAddress,
			Timeframe:       market.DefaultTimeframe,
			CountLimit:      birdeye.DefaultPageCount,
			SubscribeDelay:  "1s",
			Output:          DefaultOutput,
			Title:           DefaultTitle,
			ChartLibraryURL: DefaultChartLibraryURL,
			UpColor:         market.UpColor,
			DownColor:       market.DownColor,
		},
	}
}
