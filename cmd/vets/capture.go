package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/vets/internal/config"
	apperrors "github.com/GriffinCanCode/vets/internal/errors"
	"github.com/GriffinCanCode/vets/internal/pipeline"
	"github.com/GriffinCanCode/vets/internal/screen"
)

type captureOptions struct {
	window  string
	image   string
	preview bool
	asJSON  bool
	margins screen.Margins
	setMask marginFlags
}

type marginFlags struct{ up, down, left, right bool }

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var opts captureOptions

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a window once and print its translation packets",
		Long: "Capture a window once and print its translation packets.\n\n" +
			"With --image the named PNG or JPEG file stands in for the window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			opts.setMask = marginFlags{
				up:    flags.Changed("up"),
				down:  flags.Changed("down"),
				left:  flags.Changed("left"),
				right: flags.Changed("right"),
			}
			return runCapture(cmd.Context(), cfg, opts, nil, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.window, "window", "w", "", "Window title (defaults to capture.window)")
	cmd.Flags().StringVar(&opts.image, "image", "", "Read this image file instead of capturing a window")
	cmd.Flags().BoolVar(&opts.preview, "preview", false, "Only capture and save the cropped image")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Output JSON")
	cmd.Flags().IntVar(&opts.margins.Up, "up", 0, "Pixels to crop from the top")
	cmd.Flags().IntVar(&opts.margins.Down, "down", 0, "Pixels to crop from the bottom")
	cmd.Flags().IntVar(&opts.margins.Left, "left", 0, "Pixels to crop from the left")
	cmd.Flags().IntVar(&opts.margins.Right, "right", 0, "Pixels to crop from the right")
	return cmd
}

// captureCollector keeps the outcome of a single run. Tick runs on the calling goroutine,
// so no locking is needed.
type captureCollector struct {
	packets []pipeline.TranslationPacket
	preview []byte
	failure *pipeline.Failure
	status  string
}

func (c *captureCollector) ShowBatch(packets []pipeline.TranslationPacket) { c.packets = packets }
func (c *captureCollector) ShowPreview(image []byte)                       { c.preview = image }
func (c *captureCollector) ShowStatus(status string)                       { c.status = status }
func (c *captureCollector) ShowFailure(f pipeline.Failure)                 { c.failure = &f }

// runCapture drives a Machine through one run. reader may be nil to build one from cfg.
func runCapture(ctx context.Context, cfg *config.Config, opts captureOptions, reader *pipeline.Reader, out, errOut io.Writer) error {
	margins := screen.Margins(cfg.Capture.Margins)
	if opts.setMask.up {
		margins.Up = opts.margins.Up
	}
	if opts.setMask.down {
		margins.Down = opts.margins.Down
	}
	if opts.setMask.left {
		margins.Left = opts.margins.Left
	}
	if opts.setMask.right {
		margins.Right = opts.margins.Right
	}

	window := opts.window
	if window == "" {
		window = cfg.Capture.Window
	}

	var src screen.Source = screen.NewSource()
	if opts.image != "" {
		data, err := os.ReadFile(opts.image)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if window == "" {
			window = filepath.Base(opts.image)
		}
		if src, err = screen.LoadImageSource(window, data); err != nil {
			return err
		}
	}

	if reader == nil {
		reader = newReader(cfg)
	}
	collector := &captureCollector{}
	mcfg, err := machineConfig(cfg, screen.NewCapturer(src), reader, collector, nil)
	if err != nil {
		return err
	}
	m := pipeline.NewMachine(mcfg)
	defer m.Shutdown()

	if _, err := m.StartCapture(ctx, pipeline.Request{Window: window, Margins: margins, Preview: opts.preview}); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()
	last := time.Now()
	for m.State() != pipeline.Idle {
		select {
		case <-ctx.Done():
			_ = m.Cancel()
			return ctx.Err()
		case now := <-ticker.C:
			m.Tick(now.Sub(last))
			last = now
		}
	}

	if f := collector.failure; f != nil {
		if f.Severity == apperrors.Warning {
			fmt.Fprintf(errOut, "warning: %s\n", f.Message)
			return nil
		}
		if f.Err != nil {
			return f.Err
		}
		return apperrors.New(f.Code, f.Message)
	}

	if opts.preview {
		return printPreview(out, errOut, cfg, window, collector.preview, m.Snapshot().PreviewPath, opts.asJSON)
	}
	return printPackets(out, collector.packets, opts.asJSON)
}

// printPreview reports a preview run. path is empty when nothing was written.
func printPreview(out, errOut io.Writer, cfg *config.Config, window string, png []byte, path string, asJSON bool) error {
	failed := path == "" && cfg.Capture.PreviewDir != ""
	if failed {
		fmt.Fprintf(errOut, "warning: preview could not be saved to %s\n", cfg.Capture.PreviewDir)
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"window": window, "bytes": len(png), "path": path})
	}
	switch {
	case failed:
		fmt.Fprintf(out, "Captured %d bytes from %q\n", len(png), window)
		return nil
	case path == "":
		fmt.Fprintf(out, "Captured %d bytes from %q (set capture.preview_dir to keep the image)\n", len(png), window)
		return nil
	}
	fmt.Fprintf(out, "Saved preview of %q to %s\n", window, path)
	return nil
}

func printPackets(out io.Writer, packets []pipeline.TranslationPacket, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if packets == nil {
			packets = []pipeline.TranslationPacket{}
		}
		return enc.Encode(packets)
	}
	fmt.Fprintln(out, renderTable([]string{"#", "Source", "Romaji", "Translation"}, packetRows(packets), []columnAlignment{alignRight}))
	return nil
}

func packetRows(packets []pipeline.TranslationPacket) [][]string {
	rows := make([][]string, 0, len(packets))
	for i, p := range packets {
		rows = append(rows, []string{strconv.Itoa(i + 1), p.Source, p.Romanized, p.Translated})
	}
	return rows
}
