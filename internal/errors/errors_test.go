package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorMessage(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, CodeTimeout, "ocr request").WithMetadata("run_id", "r1")

	assert.Equal(t, "[TIMEOUT] ocr request map[run_id:r1] caused by: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSeverityByKind(t *testing.T) {
	tests := []struct {
		code     Code
		kind     Kind
		severity Severity
	}{
		{CodeNoWindowSelected, KindInputValidation, Warning},
		{CodePipelineBusy, KindInputValidation, Warning},
		{CodeEmptyResult, KindEmptyResult, Warning},
		{CodeCancelled, KindCancelled, Warning},
		{CodeWindowNotFound, KindTransport, Fatal},
		{CodeOCRAuthFailed, KindTransport, Fatal},
		{CodeTranslationFailed, KindTransport, Fatal},
		{CodeImageDecodeFailed, KindDecode, Fatal},
		{CodeInternal, KindInternal, Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.code.Kind())
			assert.Equal(t, tt.severity, tt.code.Severity())
		})
	}
}

func TestCodeOfWrapped(t *testing.T) {
	inner := New(CodeEmptyResult, "nothing found")
	wrapped := fmt.Errorf("read: %w", inner)

	assert.Equal(t, CodeEmptyResult, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodeEmptyResult))
	assert.Equal(t, Warning, SeverityOf(wrapped))
	assert.Equal(t, Fatal, SeverityOf(stderrors.New("plain")))
	assert.False(t, IsCode(nil, CodeUnknown))
}

func TestGRPCStatusCarriesErrorInfo(t *testing.T) {
	err := New(CodeWindowNotFound, "window gone").WithMetadata("window", "Notepad")

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())

	var info *errdetails.ErrorInfo
	for _, d := range st.Details() {
		if ei, ok := d.(*errdetails.ErrorInfo); ok {
			info = ei
		}
	}
	require.NotNil(t, info)
	assert.Equal(t, "WINDOW_NOT_FOUND", info.Reason)
	assert.Equal(t, "Notepad", info.Metadata["window"])
}

func TestFromHTTPStatus(t *testing.T) {
	assert.Equal(t, CodeRateLimited, FromHTTPStatus(http.StatusTooManyRequests, CodeOCRRequestFailed))
	assert.Equal(t, CodeUnavailable, FromHTTPStatus(http.StatusBadGateway, CodeOCRRequestFailed))
	assert.Equal(t, CodeTimeout, FromHTTPStatus(http.StatusGatewayTimeout, CodeOCRRequestFailed))
	assert.Equal(t, CodeOCRRequestFailed, FromHTTPStatus(http.StatusBadRequest, CodeOCRRequestFailed))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeUnavailable, "")))
	assert.True(t, IsRetryable(fmt.Errorf("x: %w", New(CodeRateLimited, ""))))
	assert.False(t, IsRetryable(New(CodeOCRAuthFailed, "")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", Snippet("short", 10))
	assert.Equal(t, "abc", Snippet("abcdef", 3))
	// "エラー" is three 3-byte runes.
	assert.Equal(t, "エ", Snippet("エラー", 4))
	assert.Equal(t, "エラ", Snippet("エラー", 6))
	assert.Equal(t, "", Snippet("エラー", 2))
}
