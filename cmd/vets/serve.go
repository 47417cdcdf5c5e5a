package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/vets/internal/config"
	"github.com/GriffinCanCode/vets/internal/history"
	"github.com/GriffinCanCode/vets/internal/pipeline"
	"github.com/GriffinCanCode/vets/internal/screen"
	"github.com/GriffinCanCode/vets/internal/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture pipeline behind the HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	lock := flock.New(cfg.Server.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.Server.LockPath, err)
	}
	if !locked {
		return fmt.Errorf("another vets server holds %s", cfg.Server.LockPath)
	}
	defer func() { _ = lock.Unlock() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if missing := screen.CheckTools(); len(missing) > 0 {
		slog.Warn("window capture tools missing", "tools", missing)
	}

	capturer := screen.NewCapturer(screen.NewSource())
	opts := server.Options{
		Windows:      capturer,
		Capture:      cfg.Capture,
		Presentation: cfg.Presentation,
		Origins:      cfg.Server.AllowedOrigins,
		RateLimit:    cfg.Server.WSRateLimit,
	}

	var recorder pipeline.Recorder
	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		rec := history.NewRecorder(store, cfg.History.BatchSize, cfg.HistoryFlushInterval(), cfg.History.MaxEntries)
		defer rec.Stop()
		recorder = rec
		opts.History = store
	}

	srv := server.New(opts)
	mcfg, err := machineConfig(cfg, capturer, newReader(cfg), pipeline.Presenters{srv, pipeline.LogPresenter{Logger: slog.Default()}}, recorder)
	if err != nil {
		return err
	}
	driver := pipeline.NewDriver(pipeline.NewMachine(mcfg), cfg.TickInterval())
	srv.SetController(driver)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return driver.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("vets server starting", "http", cfg.Server.Addr, "tick", cfg.TickInterval())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("shutdown complete")
	return err
}
