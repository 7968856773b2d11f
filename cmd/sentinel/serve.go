package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// runServe starts the scheduler and HTTP server and blocks until a
// shutdown signal arrives, mirroring the teacher's startup sequence:
// config -> logger -> dependency wiring -> start background work ->
// start server -> wait for signal -> graceful shutdown.
func runServe(dataDir string) error {
	app, err := loadAppForCLI(dataDir)
	if err != nil {
		return err
	}
	defer app.Close()

	app.log.Info().Msg("starting sentinel")

	if err := app.registerJobs(); err != nil {
		return fmt.Errorf("failed to register scheduled jobs: %w", err)
	}
	app.scheduler.Start()
	app.log.Info().Msg("scheduler started")

	serverErr := make(chan error, 1)
	go func() {
		if err := app.server.Start(context.Background()); err != nil {
			serverErr <- err
		}
	}()
	app.log.Info().Int("port", app.cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		app.log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		app.log.Error().Err(err).Msg("server failed, shutting down")
	}

	app.scheduler.Stop(10 * time.Second)
	app.log.Info().Msg("scheduler stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.log.Error().Err(err).Msg("server forced to shutdown")
	}

	app.log.Info().Msg("sentinel stopped")
	return nil
}
