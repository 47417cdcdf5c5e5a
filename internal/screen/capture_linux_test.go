//go:build linux

package screen

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/GriffinCanCode/vets/internal/errors"
)

func fakeX11(t *testing.T, names map[string]string, png []byte) runner {
	t.Helper()
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		switch {
		case name == "xdotool" && args[0] == "search":
			ids := make([]string, 0, len(names))
			for id := range names {
				ids = append(ids, id)
			}
			return []byte(strings.Join(ids, "\n") + "\n"), nil
		case name == "xdotool" && args[0] == "getwindowname":
			return []byte(names[args[1]] + "\n"), nil
		case name == "import":
			assert.Equal(t, "-window", args[1])
			return png, nil
		}
		return nil, fmt.Errorf("unexpected command %s %v", name, args)
	}
}

func TestX11SourceWindows(t *testing.T) {
	src := &x11Source{run: fakeX11(t, map[string]string{"100": "Notepad", "200": ""}, nil)}

	titles, err := src.Windows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Notepad"}, titles)
}

func TestX11SourceGrab(t *testing.T) {
	data, err := EncodePNG(testImage(12, 9))
	require.NoError(t, err)
	src := &x11Source{run: fakeX11(t, map[string]string{"100": "Notepad"}, data)}

	img, err := src.Grab(context.Background(), "Notepad")
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())

	_, err = src.Grab(context.Background(), "Missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeWindowNotFound))
}

func TestX11Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if missing := CheckTools(); len(missing) > 0 {
		t.Skipf("missing tools: %v", missing)
	}

	titles, err := NewSource().Windows(context.Background())
	if err != nil {
		t.Skipf("no display available: %v", err)
	}
	t.Logf("found %d windows", len(titles))
}
