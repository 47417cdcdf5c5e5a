package screen

import (
	"context"
	"image"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

// ImageSource serves a fixed image under a single window title. `vets capture --image`
// uses it to run the pipeline on a screenshot file.
type ImageSource struct {
	Title string
	Image image.Image
}

// LoadImageSource decodes data and exposes it as window title.
func LoadImageSource(title string, data []byte) (*ImageSource, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return &ImageSource{Title: title, Image: img}, nil
}

func (s *ImageSource) Windows(ctx context.Context) ([]string, error) {
	return []string{s.Title}, nil
}

func (s *ImageSource) Grab(ctx context.Context, title string) (image.Image, error) {
	if title != s.Title {
		return nil, apperrors.Newf(apperrors.CodeWindowNotFound, "window %q not found", title)
	}
	return s.Image, nil
}
