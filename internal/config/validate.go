package config

import (
	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/syncx"
)

// Validate ensures the configuration is usable. Missing credentials are not an error
// here: `vets windows` and preview captures work without them, and the pipeline reports
// the failure when a read is attempted.
func (c *Config) Validate() error {
	if c.Server.TickRate <= 0 {
		return invalid("server.tick_rate must be positive")
	}
	if c.Server.WSRateLimit <= 0 {
		return invalid("server.ws_rate_limit must be positive")
	}
	m := c.Capture.Margins
	if m.Up < 0 || m.Down < 0 || m.Left < 0 || m.Right < 0 {
		return invalid("capture.margins must be non-negative")
	}
	if c.OCR.TimeoutSeconds <= 0 || c.Translation.TimeoutSeconds <= 0 {
		return invalid("service timeout_seconds must be positive")
	}
	if c.OCR.MaxRetries < 0 || c.Translation.MaxRetries < 0 {
		return invalid("service max_retries must be non-negative")
	}
	if c.Translation.RatePerSecond <= 0 || c.Translation.Burst <= 0 {
		return invalid("translation.rate_per_second and translation.burst must be positive")
	}
	if _, err := syncx.ParseOrder(c.Pipeline.QueueOrder); err != nil {
		return apperrors.Wrap(err, apperrors.CodeConfigInvalid, "pipeline.queue_order must be fifo or lifo")
	}
	if c.Pipeline.RunTimeoutSeconds <= 0 {
		return invalid("pipeline.run_timeout_seconds must be positive")
	}
	if c.Pipeline.Workers <= 0 {
		return invalid("pipeline.workers must be positive")
	}
	if c.Pipeline.DedupeDistance < 0 {
		return invalid("pipeline.dedupe_distance must be non-negative")
	}
	if c.Presentation.FontSize <= 0 {
		return invalid("presentation.font_size must be positive")
	}
	if c.History.Enabled {
		if c.History.Path == "" {
			return apperrors.New(apperrors.CodeConfigMissing, "history.path is required when history is enabled")
		}
		if c.History.MaxEntries <= 0 || c.History.BatchSize <= 0 || c.History.FlushIntervalMS <= 0 {
			return invalid("history.max_entries, history.batch_size and history.flush_interval_ms must be positive")
		}
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

// HasOCRCredentials reports whether OCR requests can be authenticated.
func (c *Config) HasOCRCredentials() bool {
	return c.OCR.AccessToken != "" && c.OCR.ProjectID != ""
}

// HasTranslationCredentials reports whether a translation key is configured.
func (c *Config) HasTranslationCredentials() bool {
	return c.Translation.AuthKey != ""
}

func invalid(msg string) error {
	return apperrors.New(apperrors.CodeConfigInvalid, msg)
}
