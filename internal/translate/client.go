// Package translate calls the DeepL v2 translate endpoint.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/metrics"
	"github.com/GriffinCanCode/vets/internal/resilience"
	"github.com/GriffinCanCode/vets/internal/trace"
)

const (
	// ServiceName labels logs, metrics and the circuit breaker.
	ServiceName = "translate"

	DefaultEndpoint   = "https://api-free.deepl.com/v2/translate"
	DefaultTargetLang = "EN"

	// statusQuotaExceeded is DeepL's "character limit reached" response.
	statusQuotaExceeded = 456

	defaultHTTPTimeout = 15 * time.Second
	defaultRate        = 5
	defaultBurst       = 5
	maxResponseBytes   = 1 << 20
	maxErrorSnippet    = 512
)

// Config captures the runtime settings required to talk to DeepL.
type Config struct {
	Endpoint      string
	AuthKey       string
	TargetLang    string
	Timeout       time.Duration
	MaxRetries    int
	RatePerSecond float64
	Burst         int
}

// Client wraps the translate API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
	retry      resilience.RetryConfig
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBreaker overrides the circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient constructs a translation client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.AuthKey = strings.TrimSpace(cfg.AuthKey)
	cfg.TargetLang = strings.ToUpper(strings.TrimSpace(cfg.TargetLang))
	if cfg.TargetLang == "" {
		cfg.TargetLang = DefaultTargetLang
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: trace.NewTransport(ServiceName, nil),
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: resilience.New(ServiceName, resilience.InteractiveConfig()),
		retry:   retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the client's breaker for status reporting.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

type translateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

type deeplError struct {
	Message string `json:"message"`
}

// Translate returns text rendered in the target language.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	if c.cfg.AuthKey == "" {
		return "", apperrors.New(apperrors.CodeTranslationAuthFailed, "translation auth key is required")
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", c.cfg.TargetLang)
	body := form.Encode()

	start := time.Now()
	var translated string
	err := c.breaker.Execute(func() error {
		return resilience.Retry(ctx, c.retry, func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return transportError(ctx, err)
			}
			out, err := c.post(ctx, body)
			if err != nil {
				return err
			}
			translated = out
			return nil
		})
	})
	metrics.ObserveService(ServiceName, resultCode(err), time.Since(start))
	if err != nil {
		return "", err
	}
	return translated, nil
}

func (c *Client) post(ctx context.Context, body string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "build translation request")
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.cfg.AuthKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeUnavailable, "read translation response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resilience.WithRetryAfter(statusError(resp.StatusCode, payload), resp.Header.Get("Retry-After"))
	}

	var parsed translateResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeTranslationFailed, "decode translation response")
	}
	if len(parsed.Translations) == 0 {
		return "", apperrors.New(apperrors.CodeTranslationFailed, "translation response has no translations")
	}
	return parsed.Translations[0].Text, nil
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeCancelled, "translation request cancelled")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.CodeTimeout, "translation request timed out")
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "translation request timed out")
	}
	return apperrors.Wrap(err, apperrors.CodeUnavailable, "translation request failed")
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var de deeplError
	if json.Unmarshal(body, &de) == nil && de.Message != "" {
		msg = de.Message
	}
	msg = apperrors.Snippet(msg, maxErrorSnippet)

	var appCode apperrors.Code
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		appCode = apperrors.CodeTranslationAuthFailed
	case statusQuotaExceeded:
		appCode = apperrors.CodeTranslationQuotaExceeded
	default:
		appCode = apperrors.FromHTTPStatus(code, apperrors.CodeTranslationFailed)
	}
	return apperrors.Newf(appCode, "translation http %d: %s", code, msg).WithMetadata("status", fmt.Sprint(code))
}

func resultCode(err error) string {
	if err == nil {
		return "OK"
	}
	return apperrors.CodeOf(err).String()
}
