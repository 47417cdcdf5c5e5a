// Package screen enumerates top-level windows and captures their contents as cropped PNGs.
package screen

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

// Source is a platform window backend.
type Source interface {
	// Windows returns the titles of visible, non-minimized windows.
	Windows(ctx context.Context) ([]string, error)
	// Grab returns the current contents of the window with exactly this title.
	Grab(ctx context.Context, title string) (image.Image, error)
}

// Margins are pixel insets removed from each edge before encoding.
type Margins struct {
	Up    int `json:"up"`
	Down  int `json:"down"`
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Capturer turns a window title into cropped PNG bytes.
type Capturer struct {
	src Source
}

// NewCapturer wraps a window source.
func NewCapturer(src Source) *Capturer {
	return &Capturer{src: src}
}

// Windows lists capturable window titles.
func (c *Capturer) Windows(ctx context.Context) ([]string, error) {
	titles, err := c.src.Windows(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "list windows")
	}
	return titles, nil
}

// Capture grabs the named window, crops it by m and PNG-encodes the result. The title must
// exactly match a currently listed window.
func (c *Capturer) Capture(ctx context.Context, title string, m Margins) ([]byte, error) {
	titles, err := c.Windows(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(titles, title) {
		return nil, apperrors.Newf(apperrors.CodeWindowNotFound, "window %q not found", title).
			WithMetadata("window", title)
	}

	img, err := c.src.Grab(ctx, title)
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeUnknown {
			return nil, err
		}
		return nil, apperrors.Wrapf(err, apperrors.CodeCaptureFailed, "grab window %q", title)
	}

	cropped, err := Crop(img, m)
	if err != nil {
		return nil, err
	}
	return EncodePNG(cropped)
}

// CropRect insets bounds by m. Width and height clamp at zero when the margins meet or
// cross, so the result is never inverted.
func CropRect(bounds image.Rectangle, m Margins) image.Rectangle {
	w := max(bounds.Dx()-max(m.Left, 0)-max(m.Right, 0), 0)
	h := max(bounds.Dy()-max(m.Up, 0)-max(m.Down, 0), 0)
	minPt := image.Pt(bounds.Min.X+min(max(m.Left, 0), bounds.Dx()), bounds.Min.Y+min(max(m.Up, 0), bounds.Dy()))
	return image.Rectangle{Min: minPt, Max: minPt.Add(image.Pt(w, h))}
}

// Crop applies margins to img. A crop with no area is an input validation failure.
func Crop(img image.Image, m Margins) (image.Image, error) {
	rect := CropRect(img.Bounds(), m)
	if rect.Empty() {
		return nil, apperrors.Newf(apperrors.CodeEmptyCrop,
			"margins %d/%d/%d/%d leave nothing of a %dx%d window",
			m.Up, m.Down, m.Left, m.Right, img.Bounds().Dx(), img.Bounds().Dy())
	}
	if rect == img.Bounds() {
		return img, nil
	}
	return imaging.Crop(img, rect), nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeImageEncodeFailed, "encode png")
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes PNG or JPEG bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeImageDecodeFailed, "decode image")
	}
	return img, nil
}

var titleReplacer = strings.NewReplacer("|", "", `\`, "", ":", "", "/", "")

// NormalizeTitle strips characters that cannot appear in file names.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(titleReplacer.Replace(title))
}

// SavePreview writes a preview PNG named after the window into dir.
func SavePreview(dir, title string, png []byte) (string, error) {
	name := NormalizeTitle(title)
	if name == "" {
		name = "window"
	}
	path := filepath.Join(dir, name+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", apperrors.Wrapf(err, apperrors.CodeImageEncodeFailed, "write preview %s", path)
	}
	return path, nil
}
