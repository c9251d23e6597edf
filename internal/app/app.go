// Package app provides application orchestration and component lifecycle
// management for threadbox.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Scheduler is the lifecycle of the task scheduler.
type Scheduler interface {
	Start() error
	Stop() error
}

// Runner is a background component that works until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Listener is a component with a blocking start and no error result, like
// the Telegram long-poll loop.
type Listener func(ctx context.Context)

// Components are the optional pieces App runs side by side. Nil fields are
// skipped.
type Components struct {
	Scheduler      Scheduler
	Notifier       Runner
	Telegram       Listener
	MetricsAddr    string
	MetricsHandler http.Handler
}

// App runs the long-lived components of threadbox.
type App struct {
	logger *slog.Logger
	c      Components
	ready  chan net.Addr
}

// New creates an App running the given components.
func New(logger *slog.Logger, c Components) *App {
	return &App{
		logger: logger.With("component", "app"),
		c:      c,
		ready:  make(chan net.Addr, 1),
	}
}

// MetricsAddr returns the bound metrics address once the listener is up.
// It blocks until then or until ctx is done.
func (a *App) MetricsAddr(ctx context.Context) (net.Addr, error) {
	select {
	case addr := <-a.ready:
		a.ready <- addr
		return addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run starts every configured component and blocks until ctx is cancelled
// or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting application...")

	g, gCtx := errgroup.WithContext(ctx)

	if a.c.Scheduler != nil {
		g.Go(func() error {
			a.logger.Info("Starting scheduler...")
			if err := a.c.Scheduler.Start(); err != nil {
				a.logger.Error("Failed to start scheduler", "error", err)
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			a.logger.Info("Shutdown signal received, stopping scheduler...")

			if err := a.c.Scheduler.Stop(); err != nil {
				a.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	if a.c.Notifier != nil {
		g.Go(func() error {
			a.logger.Info("Starting notification pusher...")
			err := a.c.Notifier.Run(gCtx)
			a.logger.Info("Notification pusher stopped.")
			return err
		})
	}

	if a.c.Telegram != nil {
		g.Go(func() error {
			a.logger.Info("Starting Telegram bot listener...")
			a.c.Telegram(gCtx)
			a.logger.Info("Telegram bot listener stopped.")

			if gCtx.Err() == nil {
				a.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
				return fmt.Errorf("telegram listener stopped unexpectedly")
			}
			return nil
		})
	}

	if a.c.MetricsAddr != "" && a.c.MetricsHandler != nil {
		g.Go(func() error { return a.serveMetrics(gCtx) })
	}

	a.logger.Info("Application running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Application stopped gracefully.")
	return nil
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.c.MetricsHandler)

	ln, err := net.Listen("tcp", a.c.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.c.MetricsAddr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	a.logger.Info("Serving metrics", "addr", ln.Addr().String())
	a.ready <- ln.Addr()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error stopping metrics server", "error", err)
	}
	return nil
}
