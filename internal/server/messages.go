package server

import (
	"github.com/GriffinCanCode/vets/internal/config"
	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/pipeline"
	"github.com/GriffinCanCode/vets/internal/screen"
)

// Message types.
const (
	TypeCapture     = "capture"
	TypePreview     = "preview"
	TypeCancel      = "cancel"
	TypeBatch       = "batch"
	TypeStatus      = "status"
	TypeFailure     = "failure"
	TypeAccepted    = "accepted"
	TypeError       = "error"
	TypePreferences = "preferences"
)

// Message is the envelope every websocket frame carries.
type Message struct {
	Type string `json:"type"`
}

// CaptureMessage requests a capture or preview. Missing fields fall back to configured defaults.
type CaptureMessage struct {
	Type    string          `json:"type"`
	Window  string          `json:"window,omitempty"`
	Margins *screen.Margins `json:"margins,omitempty"`
	TraceID string          `json:"trace_id,omitempty"`
}

type BatchMessage struct {
	Type    string                       `json:"type"`
	Packets []pipeline.TranslationPacket `json:"packets"`
}

// PreviewMessage carries the cropped PNG; encoding/json renders it as base64.
type PreviewMessage struct {
	Type  string `json:"type"`
	Image []byte `json:"image"`
}

type StatusMessage struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type FailureMessage struct {
	Type     string             `json:"type"`
	RunID    string             `json:"run_id,omitempty"`
	Message  string             `json:"message"`
	Severity apperrors.Severity `json:"severity"`
	Code     apperrors.Code     `json:"code"`
}

type AcceptedMessage struct {
	Type  string `json:"type"`
	RunID string `json:"run_id"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type PreferencesMessage struct {
	Type        string              `json:"type"`
	Preferences config.Presentation `json:"preferences"`
}
