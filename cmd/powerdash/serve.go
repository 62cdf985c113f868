package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/api"
	"github.com/bher20/powerdash/internal/auth"
	"github.com/bher20/powerdash/internal/cron"
	"github.com/bher20/powerdash/internal/storage"
)

func newServeCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", true, "also run the refresh worker in this process")
	return cmd
}

func runServe(ctx context.Context, withWorker bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	authSvc, err := auth.NewService(a.store)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	if a.cfg.AdminToken != "" {
		if err := authSvc.EnsureToken(ctx, a.cfg.AdminToken, "admin", auth.RoleAdmin); err != nil {
			return fmt.Errorf("seed admin token: %w", err)
		}
	}

	var w *cron.Worker
	if withWorker {
		var locker storage.Locker
		w, locker, err = newRefreshWorker(ctx, a)
		if err != nil {
			return err
		}
		defer locker.Close()
	}

	// Background loops must be done before the locker and store close.
	ctx, stopBackground := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stopBackground()
		wg.Wait()
	}()
	if a.feed != nil {
		runBackground(ctx, &wg, a.logger, "live feed", a.feed.Run)
	}
	if w != nil {
		runBackground(ctx, &wg, a.logger, "refresh worker", w.Run)
	}

	mux := api.NewMux(api.Deps{
		Billing: a.billing,
		Storage: a.store,
		Auth:    authSvc,
		Feed:    a.feed,
		Logger:  a.logger,
	})
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("powerdash listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runBackground runs fn on its own goroutine until ctx is cancelled.
func runBackground(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger, name string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn(name+" stopped", zap.Error(err))
		}
	}()
}

// newRefreshWorker builds the worker that keeps today's cost snapshot and
// the budget check current.
func newRefreshWorker(ctx context.Context, a *app) (*cron.Worker, storage.Locker, error) {
	locker, err := storage.OpenLocker(ctx, storageConfig(a.cfg, a.logger))
	if err != nil {
		return nil, nil, fmt.Errorf("open locker: %w", err)
	}
	job := cron.RefreshJob(a.billing, []string{a.cfg.DefaultSchedule}, a.logger)
	w := cron.NewWorker(cron.RefreshJobName, a.cfg.RefreshInterval, job,
		cron.WithStorage(a.store),
		cron.WithLocker(locker),
		cron.WithLogger(a.logger),
	)
	return w, locker, nil
}
