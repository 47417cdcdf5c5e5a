package errors

import "google.golang.org/grpc/codes"

// Code identifies a failure condition across the pipeline, its service clients and the API.
type Code int32

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeCancelled
	CodeTimeout
	CodeUnavailable
	CodeRateLimited

	// Input validation, resolved before any worker starts.
	CodeNoWindowSelected
	CodePipelineBusy
	CodeEmptyCrop

	// Capture.
	CodeWindowNotFound
	CodeCaptureFailed

	// Image encode/decode.
	CodeImageEncodeFailed
	CodeImageDecodeFailed

	// Remote services.
	CodeOCRRequestFailed
	CodeOCRAuthFailed
	CodeTranslationFailed
	CodeTranslationAuthFailed
	CodeTranslationQuotaExceeded

	// Reading produced nothing to show.
	CodeEmptyResult

	CodeConfigInvalid
	CodeConfigMissing
)

var codeNames = map[Code]string{
	CodeUnknown:                  "UNKNOWN",
	CodeInternal:                 "INTERNAL",
	CodeInvalidArgument:          "INVALID_ARGUMENT",
	CodeCancelled:                "CANCELLED",
	CodeTimeout:                  "TIMEOUT",
	CodeUnavailable:              "UNAVAILABLE",
	CodeRateLimited:              "RATE_LIMITED",
	CodeNoWindowSelected:         "NO_WINDOW_SELECTED",
	CodePipelineBusy:             "PIPELINE_BUSY",
	CodeEmptyCrop:                "EMPTY_CROP",
	CodeWindowNotFound:           "WINDOW_NOT_FOUND",
	CodeCaptureFailed:            "CAPTURE_FAILED",
	CodeImageEncodeFailed:        "IMAGE_ENCODE_FAILED",
	CodeImageDecodeFailed:        "IMAGE_DECODE_FAILED",
	CodeOCRRequestFailed:         "OCR_REQUEST_FAILED",
	CodeOCRAuthFailed:            "OCR_AUTH_FAILED",
	CodeTranslationFailed:        "TRANSLATION_FAILED",
	CodeTranslationAuthFailed:    "TRANSLATION_AUTH_FAILED",
	CodeTranslationQuotaExceeded: "TRANSLATION_QUOTA_EXCEEDED",
	CodeEmptyResult:              "EMPTY_RESULT",
	CodeConfigInvalid:            "CONFIG_INVALID",
	CodeConfigMissing:            "CONFIG_MISSING",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return codeNames[CodeUnknown]
}

// MarshalText renders the code name in JSON payloads.
func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Kind groups codes into the failure taxonomy the pipeline reasons about.
type Kind int

const (
	KindInternal Kind = iota
	KindInputValidation
	KindTransport
	KindEmptyResult
	KindDecode
	KindCancelled
)

func (k Kind) String() string {
	return [...]string{"internal", "input_validation", "transport", "empty_result", "decode", "cancelled"}[k]
}

// Severity decides how a failure is surfaced. Both severities return the pipeline to idle.
type Severity int

const (
	Fatal Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "fatal"
}

// MarshalText renders the severity name in JSON payloads.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var codeKinds = map[Code]Kind{
	CodeInvalidArgument:          KindInputValidation,
	CodeNoWindowSelected:         KindInputValidation,
	CodePipelineBusy:             KindInputValidation,
	CodeEmptyCrop:                KindInputValidation,
	CodeCancelled:                KindCancelled,
	CodeTimeout:                  KindTransport,
	CodeUnavailable:              KindTransport,
	CodeRateLimited:              KindTransport,
	CodeWindowNotFound:           KindTransport,
	CodeCaptureFailed:            KindTransport,
	CodeOCRRequestFailed:         KindTransport,
	CodeOCRAuthFailed:            KindTransport,
	CodeTranslationFailed:        KindTransport,
	CodeTranslationAuthFailed:    KindTransport,
	CodeTranslationQuotaExceeded: KindTransport,
	CodeImageEncodeFailed:        KindDecode,
	CodeImageDecodeFailed:        KindDecode,
	CodeEmptyResult:              KindEmptyResult,
}

// Kind returns the taxonomy bucket for the code.
func (c Code) Kind() Kind {
	if k, ok := codeKinds[c]; ok {
		return k
	}
	return KindInternal
}

// Severity reports Warning for expected conditions and Fatal for everything else.
func (c Code) Severity() Severity {
	switch c.Kind() {
	case KindInputValidation, KindEmptyResult, KindCancelled:
		return Warning
	default:
		return Fatal
	}
}

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:                  codes.Unknown,
	CodeInternal:                 codes.Internal,
	CodeInvalidArgument:          codes.InvalidArgument,
	CodeCancelled:                codes.Canceled,
	CodeTimeout:                  codes.DeadlineExceeded,
	CodeUnavailable:              codes.Unavailable,
	CodeRateLimited:              codes.ResourceExhausted,
	CodeNoWindowSelected:         codes.FailedPrecondition,
	CodePipelineBusy:             codes.FailedPrecondition,
	CodeEmptyCrop:                codes.InvalidArgument,
	CodeWindowNotFound:           codes.NotFound,
	CodeCaptureFailed:            codes.Internal,
	CodeImageEncodeFailed:        codes.Internal,
	CodeImageDecodeFailed:        codes.InvalidArgument,
	CodeOCRRequestFailed:         codes.Internal,
	CodeOCRAuthFailed:            codes.Unauthenticated,
	CodeTranslationFailed:        codes.Internal,
	CodeTranslationAuthFailed:    codes.Unauthenticated,
	CodeTranslationQuotaExceeded: codes.PermissionDenied,
	CodeEmptyResult:              codes.NotFound,
	CodeConfigInvalid:            codes.InvalidArgument,
	CodeConfigMissing:            codes.FailedPrecondition,
}
