package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/daqrelay/internal/registry"
	"github.com/user/daqrelay/internal/relay"
	"github.com/user/daqrelay/internal/web"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	reg := registry.Parse(cfg.Modules, slog.Default())
	if len(reg.Descriptors()) == 0 {
		slog.Warn("no valid modules in configuration, serving an empty relay")
	}

	rel := relay.New(reg, relay.Options{
		Heartbeat: time.Duration(cfg.Heartbeat) * time.Millisecond,
	})
	srv := web.NewServer(rel, slog.Default())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: srv.Router(),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rel.Start(ctx)
	defer rel.Stop()

	if err := rel.ConnectBus(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("daqrelay started",
			"http_port", cfg.HTTPPort,
			"heartbeat_ms", cfg.Heartbeat,
			"modules", len(reg.Descriptors()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
