package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	router "github.com/dkeye/Lectern/internal/adapters/http"
	"github.com/dkeye/Lectern/internal/adapters/rtc"
	wsignal "github.com/dkeye/Lectern/internal/adapters/signal"
	"github.com/dkeye/Lectern/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the signaling channel and the expiry scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default config/config.<CONFIG_ENV>.yaml)")
	return cmd
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Mode, cfg.LogLevel)

	a, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}

	ws := wsignal.NewSignalWSController(a.orch, wsignal.Options{
		ReadLimit: cfg.ReadLimit,
		ICE:       rtc.Config(cfg.ICEServers),
	})
	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:       a.orch,
		Meetings:   a.meetings,
		Recordings: a.recordings,
		Auth:       a.auth,
		Signal:     ws,
		Blobs:      a.blobRoute,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("module", "main").Str("addr", addr).Msg("Lectern server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	a.scheduler.Start()

	select {
	case <-ctx.Done():
	case err = <-errc:
		log.Error().Err(err).Str("module", "main").Msg("server error")
	}

	log.Info().Str("module", "main").Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Str("module", "main").Msg("Server forced to shutdown")
	}
	a.scheduler.Stop(shutdownCtx)
	a.close(shutdownCtx)
	log.Info().Str("module", "main").Msg("Server exited gracefully")
	return err
}
