package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/importset/internal/core"
	"github.com/JonMunkholm/importset/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the build API and dashboard over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	cfg := a.cfg
	if cfg.Build.ImportsPath == "" {
		return &core.InputError{Kind: core.InputRequest, Err: errors.New("IMPORTSET_IMPORTS must name the mapping catalog to serve builds")}
	}

	limiter := core.NewBuildLimiter(cfg.Server.MaxConcurrentBuilds, cfg.Server.MaxWaitTime)
	svc, cleanup, err := newService(ctx, cfg, core.WithLimiter(limiter))
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("configuration loaded", "config", cfg.String())

	server := web.NewServer(svc, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if st := limiter.Status(); st.Active > 0 {
			slog.Info("waiting for builds to complete", "active", st.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("builds did not complete in time", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("server stopped", "error", err)
	return err
}
