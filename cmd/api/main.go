// The moneta API server: personal-finance imports over REST.
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

	"github.com/moneta-app/moneta-api/pkg/config"
	"github.com/moneta-app/moneta-api/pkg/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	deps, err := InitDependencies(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	warmCtx, cancelWarm := context.WithTimeout(context.Background(), 10*time.Second)
	deps.WarmSearchIndex(warmCtx)
	cancelWarm()

	if err := deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() { <-deps.Scheduler.Stop().Done() }()

	if cfg.Observability.MetricsEnabled {
		go func() {
			if err := metrics.Serve(cfg.Observability.MetricsPort); err != nil {
				logger.Error("metrics server exited", slog.Any("error", err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
