// Package config loads VETS configuration: defaults, then an optional TOML file, then .env
// and VETS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

// EnvPrefix prefixes every environment override (VETS_SERVER_ADDR, VETS_OCR_ACCESS_TOKEN, ...).
const EnvPrefix = "VETS_"

// Server configures the HTTP/websocket front end and the consumer loop.
type Server struct {
	Addr           string   `toml:"addr" env:"ADDR"`
	TickRate       float64  `toml:"tick_rate" env:"TICK_RATE"` // Hz
	AllowedOrigins []string `toml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	LockPath       string   `toml:"lock_path" env:"LOCK_PATH"`
	WSRateLimit    int      `toml:"ws_rate_limit" env:"WS_RATE_LIMIT"` // messages per second per connection
}

// Margins are pixel insets cropped from each edge of the captured window.
type Margins struct {
	Up    int `toml:"up" env:"UP" json:"up"`
	Down  int `toml:"down" env:"DOWN" json:"down"`
	Left  int `toml:"left" env:"LEFT" json:"left"`
	Right int `toml:"right" env:"RIGHT" json:"right"`
}

// Capture selects the target window and crop.
type Capture struct {
	Window     string  `toml:"window" env:"WINDOW"`
	Margins    Margins `toml:"margins" envPrefix:"MARGIN_"`
	PreviewDir string  `toml:"preview_dir" env:"PREVIEW_DIR"`
}

// OCR holds the text detection service settings.
type OCR struct {
	Endpoint       string `toml:"endpoint" env:"ENDPOINT"`
	AccessToken    string `toml:"access_token" env:"ACCESS_TOKEN"`
	ProjectID      string `toml:"project_id" env:"PROJECT_ID"`
	TimeoutSeconds int    `toml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	MaxRetries     int    `toml:"max_retries" env:"MAX_RETRIES"`
}

// Translation holds the translation service settings.
type Translation struct {
	Endpoint       string  `toml:"endpoint" env:"ENDPOINT"`
	AuthKey        string  `toml:"auth_key" env:"AUTH_KEY"`
	TargetLang     string  `toml:"target_lang" env:"TARGET_LANG"`
	TimeoutSeconds int     `toml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	MaxRetries     int     `toml:"max_retries" env:"MAX_RETRIES"`
	RatePerSecond  float64 `toml:"rate_per_second" env:"RATE_PER_SECOND"`
	Burst          int     `toml:"burst" env:"BURST"`
}

// Pipeline tunes the capture/read state machine and its workers.
type Pipeline struct {
	QueueOrder        string `toml:"queue_order" env:"QUEUE_ORDER"`
	FilterNonTarget   bool   `toml:"filter_non_target" env:"FILTER_NON_TARGET"`
	RunTimeoutSeconds int    `toml:"run_timeout_seconds" env:"RUN_TIMEOUT_SECONDS"`
	Workers           int    `toml:"workers" env:"WORKERS"`
	Dedupe            bool   `toml:"dedupe" env:"DEDUPE"`
	DedupeDistance    int    `toml:"dedupe_distance" env:"DEDUPE_DISTANCE"`
}

// Presentation preferences are passed through to subscribed UIs untouched.
type Presentation struct {
	Font       string `toml:"font" env:"FONT" json:"font"`
	FontSize   int    `toml:"font_size" env:"FONT_SIZE" json:"font_size"`
	ShowRomaji bool   `toml:"show_romaji" env:"SHOW_ROMAJI" json:"show_romaji"`
}

// History configures the SQLite record of completed batches.
type History struct {
	Enabled         bool   `toml:"enabled" env:"ENABLED"`
	Path            string `toml:"path" env:"PATH"`
	MaxEntries      int    `toml:"max_entries" env:"MAX_ENTRIES"`
	FlushIntervalMS int    `toml:"flush_interval_ms" env:"FLUSH_INTERVAL_MS"`
	BatchSize       int    `toml:"batch_size" env:"BATCH_SIZE"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
}

// Config encapsulates all configuration values.
type Config struct {
	Server       Server       `toml:"server" envPrefix:"SERVER_"`
	Capture      Capture      `toml:"capture" envPrefix:"CAPTURE_"`
	OCR          OCR          `toml:"ocr" envPrefix:"OCR_"`
	Translation  Translation  `toml:"translation" envPrefix:"TRANSLATION_"`
	Pipeline     Pipeline     `toml:"pipeline" envPrefix:"PIPELINE_"`
	Presentation Presentation `toml:"presentation" envPrefix:"PRESENTATION_"`
	History      History      `toml:"history" envPrefix:"HISTORY_"`
	Logging      Logging      `toml:"logging" envPrefix:"LOG_"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load builds the configuration. path may be empty to use the default location; a
// missing file is not an error. Returns the resolved path and whether it existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	// .env is optional; existing environment variables win over it.
	_ = godotenv.Load()

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, "", false, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "parse environment")
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "open config %s", path)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "parse config %s", path)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
		if _, err := os.Stat("vets.toml"); err == nil {
			path = "vets.toml"
		}
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, apperrors.Newf(apperrors.CodeConfigInvalid, "config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// Encode renders cfg as TOML, used by `vets config` to print the effective settings.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// RunTimeout is the per-run deadline handed to workers.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Pipeline.RunTimeoutSeconds) * time.Second
}

// OCRTimeout bounds a single OCR HTTP request.
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCR.TimeoutSeconds) * time.Second
}

// TranslationTimeout bounds a single translation HTTP request.
func (c *Config) TranslationTimeout() time.Duration {
	return time.Duration(c.Translation.TimeoutSeconds) * time.Second
}

// TickInterval converts the tick rate to a ticker period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Server.TickRate)
}

// HistoryFlushInterval is how long the history batcher buffers rows.
func (c *Config) HistoryFlushInterval() time.Duration {
	return time.Duration(c.History.FlushIntervalMS) * time.Millisecond
}

// EnsureDirectories creates directories the configured paths live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Server.LockPath)}
	if c.History.Enabled {
		dirs = append(dirs, filepath.Dir(c.History.Path))
	}
	if c.Capture.PreviewDir != "" {
		dirs = append(dirs, c.Capture.PreviewDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}
