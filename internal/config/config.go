/**
 * Configuration for the PhotoTranslate Worker
 *
 * Values come from defaults, an optional YAML file, then environment
 * variables. Nested keys map to upper-case env names with dots replaced
 * by underscores (cache.size -> CACHE_SIZE).
 */

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds worker configuration
type Config struct {
	Env string `mapstructure:"env" validate:"oneof=development production staging test"`

	RedisURL      string `mapstructure:"redis_url" validate:"required_if=RegistryStore redis"`
	DatabaseURL   string `mapstructure:"database_url" validate:"required_if=RegistryStore postgres"`
	RegistryStore string `mapstructure:"registry_store" validate:"oneof=redis postgres memory"`

	QueueName         string        `mapstructure:"queue_name" validate:"required"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency" validate:"min=1,max=100"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout" validate:"min=1s"`
	TranslateFanout   int           `mapstructure:"translate_fanout" validate:"min=1,max=64"`

	BaselineLanguages []string `mapstructure:"baseline_languages" validate:"dive,required"`

	Cache        CacheConfig        `mapstructure:"cache"`
	Tessdata     TessdataConfig     `mapstructure:"tessdata"`
	OCR          OCRConfig          `mapstructure:"ocr"`
	Cloud        CloudConfig        `mapstructure:"cloud"`
	OnDevice     OnDeviceConfig     `mapstructure:"ondevice"`
	Overlay      OverlayConfig      `mapstructure:"overlay"`
	Mode         ModeConfig         `mapstructure:"mode"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Voices       VoicesConfig       `mapstructure:"voices"`
}

type CacheConfig struct {
	Size int           `mapstructure:"size" validate:"min=0"`
	TTL  time.Duration `mapstructure:"ttl" validate:"min=0"`
}

type TessdataConfig struct {
	Dir     string `mapstructure:"dir" validate:"required"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

type OCRConfig struct {
	MaxDimension  int     `mapstructure:"max_dimension" validate:"min=0"`
	MinConfidence float64 `mapstructure:"min_confidence" validate:"min=0,max=1"`
}

// CloudConfig is left empty to run without the cloud engines.
type CloudConfig struct {
	VisionURL    string `mapstructure:"vision_url" validate:"omitempty,url"`
	TranslateURL string `mapstructure:"translate_url" validate:"omitempty,url"`
	APIKey       string `mapstructure:"api_key"`
}

type OnDeviceConfig struct {
	TranslateURL  string `mapstructure:"translate_url" validate:"omitempty,url"`
	PivotLanguage string `mapstructure:"pivot_language"`
}

type OverlayConfig struct {
	MaxPrimary  int     `mapstructure:"max_primary" validate:"min=0"`
	MinFontSize float64 `mapstructure:"min_font_size" validate:"gt=0"`
	HeightRatio float64 `mapstructure:"height_ratio" validate:"gt=0,lte=1"`
	WidthFactor float64 `mapstructure:"width_factor" validate:"gt=0"`
}

type ModeConfig struct {
	Preference string `mapstructure:"preference" validate:"oneof=auto force_online force_offline"`
}

type ConnectivityConfig struct {
	ProbeURL string        `mapstructure:"probe_url" validate:"omitempty,url"`
	Interval time.Duration `mapstructure:"interval" validate:"min=1s"`
}

type VoicesConfig struct {
	File string `mapstructure:"file"`
}

var defaults = map[string]interface{}{
	"env":                     "development",
	"redis_url":               "redis://localhost:6379",
	"database_url":            "",
	"registry_store":          "redis",
	"queue_name":              "phototranslate:jobs",
	"worker_concurrency":      4,
	"processing_timeout":      2 * time.Minute,
	"translate_fanout":        4,
	"baseline_languages":      []string{"en"},
	"cache.size":              2048,
	"cache.ttl":               time.Hour,
	"tessdata.dir":            "/usr/share/tesseract-ocr/5/tessdata",
	"tessdata.base_url":       "https://github.com/tesseract-ocr/tessdata_fast/raw/main",
	"ocr.max_dimension":       2048,
	"ocr.min_confidence":      0.4,
	"cloud.vision_url":        "",
	"cloud.translate_url":     "",
	"cloud.api_key":           "",
	"ondevice.translate_url":  "http://localhost:8765",
	"ondevice.pivot_language": "en",
	"overlay.max_primary":     8,
	"overlay.min_font_size":   10.0,
	"overlay.height_ratio":    0.75,
	"overlay.width_factor":    1.8,
	"mode.preference":         "auto",
	"connectivity.probe_url":  "https://clients3.google.com/generate_204",
	"connectivity.interval":   15 * time.Second,
	"voices.file":             "",
}

// Load reads configuration. path names an optional YAML file; when empty,
// the CONFIG_FILE environment variable is consulted.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config_file")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.BaselineLanguages = splitList(cfg.BaselineLanguages)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// CloudEnabled reports whether both cloud endpoints are configured.
func (c *Config) CloudEnabled() bool {
	return c.Cloud.VisionURL != "" && c.Cloud.TranslateURL != ""
}

// splitList flattens entries that arrived as one comma separated env value.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
