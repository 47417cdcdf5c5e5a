//go:build darwin

package screen

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

const listWindowsScript = `set out to ""
tell application "System Events"
	repeat with p in (every process whose visible is true)
		repeat with w in (every window of p)
			try
				if value of attribute "AXMinimized" of w is false then set out to out & (name of w) & linefeed
			end try
		end repeat
	end repeat
end tell
return out`

const boundsScript = `tell application "System Events"
	repeat with p in (every process whose visible is true)
		repeat with w in (every window of p)
			if name of w is %q then
				set {x, y} to position of w
				set {wd, ht} to size of w
				return (x as text) & ", " & (y as text) & ", " & (wd as text) & ", " & (ht as text)
			end if
		end repeat
	end repeat
end tell
return ""`

// quartzSource lists windows through System Events and grabs them with screencapture -R.
type quartzSource struct {
	run runner
}

// NewSource returns the macOS window backend.
func NewSource() Source {
	return &quartzSource{run: runCommand}
}

// CheckTools reports which required helper binaries are missing.
func CheckTools() []string { return nil }

func (s *quartzSource) Windows(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, "osascript", "-e", listWindowsScript)
	if err != nil {
		return nil, err
	}
	return dedupe(splitLines(out)), nil
}

func (s *quartzSource) Grab(ctx context.Context, title string) (image.Image, error) {
	out, err := s.run(ctx, "osascript", "-e", fmt.Sprintf(boundsScript, title))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "window bounds")
	}
	bounds := strings.TrimSpace(string(out))
	if bounds == "" {
		return nil, apperrors.Newf(apperrors.CodeWindowNotFound, "window %q not found", title)
	}
	x, y, w, h, err := parseBounds(bounds)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "window bounds")
	}

	tmpDir, err := os.MkdirTemp("", "vets-screen-*")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "temp dir")
	}
	defer os.RemoveAll(tmpDir)

	tmpFile := filepath.Join(tmpDir, "window.png")
	// -x: no sound, -R: rectangle in screen points
	rect := fmt.Sprintf("%d,%d,%d,%d", x, y, w, h)
	if _, err := s.run(ctx, "screencapture", "-x", "-t", "png", "-R", rect, tmpFile); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "screencapture")
	}
	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "read screenshot")
	}
	return DecodeImage(data)
}
