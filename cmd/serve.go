package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/terrasight/internal/render"
	"github.com/sells-group/terrasight/internal/scheduler"
	"github.com/sells-group/terrasight/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		sched := scheduler.New(env.Pipeline, env.Store, scheduler.Options{
			Enabled:    cfg.Scheduler.Enabled,
			Interval:   cfg.Scheduler.Interval(),
			RunOnStart: cfg.Scheduler.RunOnStart,
			RunTimeout: cfg.Pipeline.RunTimeout(),
		})
		if err := sched.Start(ctx); err != nil {
			return eris.Wrap(err, "start scheduler")
		}
		defer sched.Stop()

		renderer := render.NewRenderer(env.Store, env.Tiles, render.Options{
			Size:    cfg.Tiles.Size,
			Opacity: cfg.Tiles.Opacity,
			MinZoom: cfg.Tiles.MinZoom,
			MaxZoom: cfg.Tiles.MaxZoom,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.New(env.Store, sched, env.Pipeline, renderer).Router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
