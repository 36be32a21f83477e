package main

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/exploopio/findingscope/pkg/api"
	"github.com/exploopio/findingscope/pkg/fetch"
	"github.com/exploopio/findingscope/pkg/health"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		listen  string
		maxAge  time.Duration
		refresh time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the explorer as a JSON API",
		Long: `serve loads the snapshot and serves the dashboard, search and filter
endpoints under /api, plus /healthz, /livez and /metrics. With a file
source and source.watch set, the snapshot reloads when the file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Server.Listen = listen
			}
			return a.serve(cmd.Context(), maxAge, refresh)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default from server.listen)")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "report degraded health when the snapshot is older than this")
	cmd.Flags().DurationVar(&refresh, "refresh-every", 0, "refresh the snapshot periodically (0 disables)")
	return cmd
}

func (a *app) serve(ctx context.Context, maxAge, every time.Duration) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hh := health.NewHandler(health.WithVersion(Version))
	hh.Register("snapshot", &health.SnapshotCheck{Source: a.explorer, MaxAge: maxAge})
	hh.Register("history", &health.StoreCheck{Store: a.store})

	srv := &http.Server{
		Addr: a.cfg.Server.Listen,
		Handler: api.New(a.explorer,
			api.WithLogger(a.log),
			api.WithMetrics(a.metrics),
			api.WithHealth(hh),
		).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		a.load(ctx)
		hh.SetReady(true)
		return nil
	})

	if a.cfg.Source.Watch {
		g.Go(func() error {
			return fetch.Watch(ctx, a.cfg.Source.File, fetch.DefaultDebounce, func() {
				a.log.Info("%s changed, reloading", a.cfg.Source.File)
				a.explorer.Refresh(ctx)
			}, a.log)
		})
	}

	if every > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					a.explorer.Refresh(ctx)
				}
			}
		})
	}

	if err := g.Wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("server stopped")
	return nil
}
