//go:build linux

package screen

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"os/exec"
	"strings"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

// x11Source lists windows with xdotool and grabs them with ImageMagick's import.
type x11Source struct {
	run runner
}

// NewSource returns the X11 window backend.
func NewSource() Source {
	return &x11Source{run: runCommand}
}

// CheckTools reports which required helper binaries are missing.
func CheckTools() []string {
	var missing []string
	for _, tool := range []string{"xdotool", "import"} {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	return missing
}

// windowIDs maps titles to X window IDs. Minimized windows are unmapped and excluded by
// --onlyvisible.
func (s *x11Source) windowIDs(ctx context.Context) (map[string]string, []string, error) {
	out, err := s.run(ctx, "xdotool", "search", "--onlyvisible", "--name", ".")
	if err != nil {
		// xdotool exits 1 when nothing matches.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return map[string]string{}, nil, nil
		}
		return nil, nil, err
	}

	ids := make(map[string]string)
	var titles []string
	for _, id := range splitLines(out) {
		name, err := s.run(ctx, "xdotool", "getwindowname", id)
		if err != nil {
			slog.Debug("skipping window", "id", id, "error", err)
			continue
		}
		title := strings.TrimSpace(string(name))
		if title == "" {
			continue
		}
		if _, ok := ids[title]; !ok {
			ids[title] = id
			titles = append(titles, title)
		}
	}
	return ids, titles, nil
}

func (s *x11Source) Windows(ctx context.Context) ([]string, error) {
	_, titles, err := s.windowIDs(ctx)
	return titles, err
}

func (s *x11Source) Grab(ctx context.Context, title string) (image.Image, error) {
	ids, _, err := s.windowIDs(ctx)
	if err != nil {
		return nil, err
	}
	id, ok := ids[title]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeWindowNotFound, "window %q not found", title)
	}

	out, err := s.run(ctx, "import", "-silent", "-window", id, "png:-")
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeCaptureFailed, "import window %s", id)
	}
	return DecodeImage(out)
}
