package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the refresh worker without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			w, locker, err := newRefreshWorker(ctx, a)
			if err != nil {
				return err
			}
			defer locker.Close()

			if once {
				return w.RunOnce(ctx)
			}
			if a.feed != nil {
				feedCtx, cancel := context.WithCancel(ctx)
				var wg sync.WaitGroup
				defer func() {
					cancel()
					wg.Wait()
				}()
				runBackground(feedCtx, &wg, a.logger, "live feed", a.feed.Run)
			}
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run the job a single time and exit")
	return cmd
}
