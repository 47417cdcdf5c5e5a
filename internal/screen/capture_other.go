//go:build !linux && !darwin && !windows

package screen

import (
	"context"
	"image"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

type unsupportedSource struct{}

// NewSource returns a backend that reports capture as unsupported on this platform.
func NewSource() Source { return unsupportedSource{} }

// CheckTools reports which required helper binaries are missing.
func CheckTools() []string { return nil }

func (unsupportedSource) Windows(ctx context.Context) ([]string, error) {
	return nil, apperrors.New(apperrors.CodeCaptureFailed, "window capture is not supported on this platform")
}

func (unsupportedSource) Grab(ctx context.Context, title string) (image.Image, error) {
	return nil, apperrors.New(apperrors.CodeCaptureFailed, "window capture is not supported on this platform")
}
