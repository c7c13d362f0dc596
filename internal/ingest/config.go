package ingest

import (
	"embed"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/pipeline.yaml
var pipelineYAML embed.FS

// Config holds the runtime configuration for one feed pipeline.
type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Cleaner CleanerConfig `yaml:"cleaner"`
}

// FeedConfig describes where extract archives come from and where the
// unpacked documents are staged.
type FeedConfig struct {
	Source          string `yaml:"source"` // label stamped on every grant and run record
	BaseURL         string `yaml:"base_url"`
	ListingURL      string `yaml:"listing_url,omitempty"`
	StagingDir      string `yaml:"staging_dir"`
	FallbackPath    string `yaml:"fallback_path,omitempty"`
	MaxLookbackDays int    `yaml:"max_lookback_days,omitempty"` // default: 7
}

// CleanerConfig selects the text cleaning strategy and bounds the
// external call budget.
type CleanerConfig struct {
	Strategy string `yaml:"strategy"` // "passthrough" or "external"
	BaseURL  string `yaml:"base_url,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`

	MinIntervalMS     int `yaml:"min_interval_ms,omitempty"`
	RequestsPerMinute int `yaml:"requests_per_minute,omitempty"`
	RequestsPerDay    int `yaml:"requests_per_day,omitempty"`
}

// LoadConfig reads the embedded pipeline.yaml and returns a Config.
// The path parameter is kept for local development overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := pipelineYAML.ReadFile("config/pipeline.yaml")
	if path != "" {
		if fileData, fileErr := os.ReadFile(path); fileErr == nil {
			data, err = fileData, nil
		}
	}
	if err != nil {
		return nil, err
	}

	// Expand environment variables within the YAML content (e.g. ${CLEANER_API_KEY})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if cfg.Feed.MaxLookbackDays <= 0 {
		cfg.Feed.MaxLookbackDays = 7
	}
	return &cfg, nil
}

// RateLimiterConfig derives limiter settings from the cleaner section.
func (c CleanerConfig) RateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MinInterval: time.Duration(c.MinIntervalMS) * time.Millisecond,
		PerMinute:   c.RequestsPerMinute,
		PerDay:      c.RequestsPerDay,
	}
}
