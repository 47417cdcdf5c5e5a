package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Conventional credential variables honoured when the VETS_-prefixed ones are unset.
const (
	envGoogleAccessToken = "GOOGLE_OAUTH_ACCESS_TOKEN"
	envGoogleProject     = "GOOGLE_CLOUD_PROJECT"
	envDeepLAuthKey      = "DEEPL_AUTH_KEY"
)

func (c *Config) normalize() error {
	var err error
	if c.Server.LockPath, err = expandPath(c.Server.LockPath); err != nil {
		return fmt.Errorf("server.lock_path: %w", err)
	}
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	if c.Capture.PreviewDir, err = expandPath(c.Capture.PreviewDir); err != nil {
		return fmt.Errorf("capture.preview_dir: %w", err)
	}

	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	c.Capture.Window = strings.TrimSpace(c.Capture.Window)

	c.OCR.AccessToken = firstNonEmpty(c.OCR.AccessToken, os.Getenv(envGoogleAccessToken))
	c.OCR.ProjectID = firstNonEmpty(c.OCR.ProjectID, os.Getenv(envGoogleProject))
	c.Translation.AuthKey = firstNonEmpty(c.Translation.AuthKey, os.Getenv(envDeepLAuthKey))

	c.OCR.Endpoint = strings.TrimSpace(c.OCR.Endpoint)
	if c.OCR.Endpoint == "" {
		c.OCR.Endpoint = defaultOCREndpoint
	}
	c.Translation.Endpoint = strings.TrimSpace(c.Translation.Endpoint)
	if c.Translation.Endpoint == "" {
		c.Translation.Endpoint = defaultTranslateEndpoint
	}
	c.Translation.TargetLang = strings.ToUpper(strings.TrimSpace(c.Translation.TargetLang))
	if c.Translation.TargetLang == "" {
		c.Translation.TargetLang = defaultTargetLang
	}

	c.Pipeline.QueueOrder = strings.ToLower(strings.TrimSpace(c.Pipeline.QueueOrder))
	if c.Pipeline.QueueOrder == "" {
		c.Pipeline.QueueOrder = defaultQueueOrder
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "auto"
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
