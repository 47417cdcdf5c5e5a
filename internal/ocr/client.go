// Package ocr calls the Vision images:annotate endpoint and turns its document text
// annotation into paragraph text blocks.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/vision/v1"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/metrics"
	"github.com/GriffinCanCode/vets/internal/resilience"
	"github.com/GriffinCanCode/vets/internal/trace"
)

const (
	// ServiceName labels logs, metrics and the circuit breaker.
	ServiceName = "ocr"

	FeatureDocumentText = "DOCUMENT_TEXT_DETECTION"
	DefaultEndpoint     = "https://vision.googleapis.com/v1/images:annotate"

	projectHeader      = "x-goog-user-project"
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 32 << 20
	maxErrorSnippet    = 512
)

// Config captures the settings required to talk to the OCR service.
type Config struct {
	Endpoint    string
	AccessToken string
	ProjectID   string
	Timeout     time.Duration
	MaxRetries  int
}

// Client wraps the images:annotate API.
type Client struct {
	cfg        Config
	httpClient *http.Client
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

// NewClient constructs an OCR client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	cfg.ProjectID = strings.TrimSpace(cfg.ProjectID)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: trace.NewTransport(ServiceName, nil),
		},
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

// BuildRequest wraps the base64-encoded image in a document text detection request.
func BuildRequest(image []byte) *vision.BatchAnnotateImagesRequest {
	return &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*vision.Feature{{Type: FeatureDocumentText}},
		}},
	}
}

// Recognize annotates image and returns its paragraphs in document order.
func (c *Client) Recognize(ctx context.Context, image []byte) ([]TextBlock, error) {
	resp, err := c.Annotate(ctx, image)
	if err != nil {
		return nil, err
	}
	return Paragraphs(resp), nil
}

// Annotate sends image for document text detection and returns the first response.
// A response with no annotation is not an error.
func (c *Client) Annotate(ctx context.Context, image []byte) (*vision.AnnotateImageResponse, error) {
	if c.cfg.AccessToken == "" || c.cfg.ProjectID == "" {
		return nil, apperrors.New(apperrors.CodeOCRAuthFailed, "ocr access token and project id are required")
	}

	body, err := json.Marshal(BuildRequest(image))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "encode ocr request")
	}

	start := time.Now()
	var result *vision.AnnotateImageResponse
	err = c.breaker.Execute(func() error {
		return resilience.Retry(ctx, c.retry, func() error {
			resp, err := c.post(ctx, body)
			if err != nil {
				return err
			}
			result = resp
			return nil
		})
	})
	metrics.ObserveService(ServiceName, resultCode(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*vision.AnnotateImageResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "build ocr request")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set(projectHeader, c.cfg.ProjectID)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "read ocr response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.WithRetryAfter(statusError(resp.StatusCode, payload), resp.Header.Get("Retry-After"))
	}

	var batch vision.BatchAnnotateImagesResponse
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeOCRRequestFailed, "decode ocr response")
	}
	if len(batch.Responses) == 0 || batch.Responses[0] == nil {
		return &vision.AnnotateImageResponse{}, nil
	}
	first := batch.Responses[0]
	if first.Error != nil && first.Error.Code != 0 {
		return nil, apperrors.Newf(apperrors.CodeOCRRequestFailed, "ocr rejected image: %s", first.Error.Message).
			WithMetadata("status", fmt.Sprint(first.Error.Code))
	}
	return first, nil
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeCancelled, "ocr request cancelled")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.CodeTimeout, "ocr request timed out")
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "ocr request timed out")
	}
	return apperrors.Wrap(err, apperrors.CodeUnavailable, "ocr request failed")
}

// googleError is the error envelope Google APIs return on non-2xx.
type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var ge googleError
	if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
		msg = ge.Error.Message
	}
	msg = apperrors.Snippet(msg, maxErrorSnippet)

	appCode := apperrors.FromHTTPStatus(code, apperrors.CodeOCRRequestFailed)
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		appCode = apperrors.CodeOCRAuthFailed
	}
	return apperrors.Newf(appCode, "ocr http %d: %s", code, msg).WithMetadata("status", fmt.Sprint(code))
}

func resultCode(err error) string {
	if err == nil {
		return "OK"
	}
	return apperrors.CodeOf(err).String()
}
