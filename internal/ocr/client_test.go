package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/vision/v1"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/resilience"
)

func sym(text string, brk bool) *vision.Symbol {
	s := &vision.Symbol{Text: text}
	if brk {
		s.Property = &vision.TextProperty{DetectedBreak: &vision.DetectedBreak{Type: "SPACE"}}
	}
	return s
}

func symbols(text string) []*vision.Symbol {
	var out []*vision.Symbol
	for _, r := range text {
		out = append(out, sym(string(r), false))
	}
	return out
}

func para(lang string, words ...[]*vision.Symbol) *vision.Paragraph {
	p := &vision.Paragraph{}
	if lang != "" {
		p.Property = &vision.TextProperty{DetectedLanguages: []*vision.DetectedLanguage{{LanguageCode: lang, Confidence: 0.9}}}
	}
	for _, w := range words {
		p.Words = append(p.Words, &vision.Word{Symbols: w})
	}
	return p
}

func response(paras ...*vision.Paragraph) *vision.BatchAnnotateImagesResponse {
	return &vision.BatchAnnotateImagesResponse{
		Responses: []*vision.AnnotateImageResponse{{
			FullTextAnnotation: &vision.TextAnnotation{
				Pages: []*vision.Page{{Blocks: []*vision.Block{{Paragraphs: paras}}}},
			},
		}},
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		Endpoint:    srv.URL,
		AccessToken: "ya29.token",
		ProjectID:   "demo-project",
	}, WithRetry(fastRetry()))
}

func TestBuildRequestBase64RoundTrip(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff, 0x10, 0x80}

	req := BuildRequest(image)
	require.Len(t, req.Requests, 1)
	assert.Equal(t, FeatureDocumentText, req.Requests[0].Features[0].Type)

	decoded, err := base64.StdEncoding.DecodeString(req.Requests[0].Image.Content)
	require.NoError(t, err)
	assert.Equal(t, image, decoded)
}

func TestRecognizeSendsAuthAndParsesParagraphs(t *testing.T) {
	image := []byte("png-bytes")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer ya29.token", r.Header.Get("Authorization"))
		assert.Equal(t, "demo-project", r.Header.Get("x-goog-user-project"))

		var req vision.BatchAnnotateImagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		decoded, _ := base64.StdEncoding.DecodeString(req.Requests[0].Image.Content)
		assert.Equal(t, image, decoded)

		_ = json.NewEncoder(w).Encode(response(
			para("ja", symbols("こんにちは")),
			para("en", []*vision.Symbol{sym("H", false), sym("i", true)}, []*vision.Symbol{sym("there", true)}),
		))
	})

	blocks, err := client.Recognize(context.Background(), image)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "こんにちは", blocks[0].Text)
	assert.Equal(t, []string{"ja"}, blocks[0].Languages)
	assert.Equal(t, "Hi there", blocks[1].Text)
}

func TestRecognizeEmptyAnnotation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responses":[{}]}`))
	})

	blocks, err := client.Recognize(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Request had invalid authentication credentials.","status":"UNAUTHENTICATED"}}`))
	})

	_, err := client.Recognize(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeOCRAuthFailed, apperrors.CodeOf(err))
	assert.Equal(t, apperrors.Fatal, apperrors.SeverityOf(err))
	assert.Contains(t, err.Error(), "invalid authentication credentials")
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnavailableIsRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(response(para("", symbols("テスト"))))
	})

	blocks, err := client.Recognize(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "テスト", blocks[0].Text)
}

func TestPerImageError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`))
	})

	_, err := client.Recognize(context.Background(), []byte("x"))
	assert.Equal(t, apperrors.CodeOCRRequestFailed, apperrors.CodeOf(err))
}

func TestMissingCredentials(t *testing.T) {
	client := NewClient(Config{Endpoint: "http://127.0.0.1:1"})

	_, err := client.Recognize(context.Background(), []byte("x"))
	assert.Equal(t, apperrors.CodeOCRAuthFailed, apperrors.CodeOf(err))
}

func TestCancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Recognize(ctx, []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusErrorTruncatesOnRuneBoundary(t *testing.T) {
	body := " " + strings.Repeat("失", maxErrorSnippet)
	err := statusError(http.StatusInternalServerError, []byte(body))
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()))
}
