package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memologist/memologist/internal/auth"
	"github.com/memologist/memologist/internal/hot"
	httpapp "github.com/memologist/memologist/internal/http"
	"github.com/memologist/memologist/internal/rate"
	"github.com/memologist/memologist/internal/redisclient"
	"github.com/memologist/memologist/internal/store/sqlite"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the hot decay scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		authSvc := auth.NewService(st, cfg.TokenTTL, cfg.ChallengeTTL)
		if n, err := authSvc.PurgeExpired(ctx); err != nil {
			logger.Warn("purge expired tokens", "error", err)
		} else if n > 0 {
			logger.Info("purged expired tokens", "count", n)
		}

		var limiter rate.Limiter = rate.NewMemory()
		job := &hot.Job{
			Store:    st,
			Logger:   logger,
			Window:   cfg.Hot.Window,
			Interval: cfg.Hot.Interval,
			Location: cfg.Hot.Location(),
		}
		if cfg.Redis.Enabled() {
			rdb := redisclient.New(cfg.Redis)
			defer rdb.Close()
			limiter = rate.NewRedis(rdb, logger)
			job.Locker = redisclient.NewLocker(rdb)
			logger.Info("redis enabled", "addr", cfg.Redis.Addr)
		}

		server, err := httpapp.NewServer(st, authSvc, limiter, cfg,
			httpapp.WithLogger(logger),
			httpapp.WithHotJob(job),
		)
		if err != nil {
			return err
		}

		go func() {
			if err := job.Start(ctx); err != nil {
				logger.Error("hot scheduler stopped", "error", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.Addr,
			Handler:           server,
			ReadHeaderTimeout: 5 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("memologist listening", "addr", cfg.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
