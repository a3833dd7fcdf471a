package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LiquorXR/gemini-synapse/internal/api"
	"github.com/LiquorXR/gemini-synapse/internal/validation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local validation control API",
	Long: `Serve an HTTP API that drives batch validation sessions and relays their
progress as server-sent events. Set server.jwt_secret to require bearer tokens
issued with the token command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	logger.Info("Starting synapse-admin control API")

	client, err := connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to admin API: %w", err)
	}

	logger.Infow("Configuration loaded",
		"port", cfg.Server.Port,
		"admin_base_url", cfg.Admin.BaseURL,
		"events_enabled", cfg.Events.Enabled,
		"max_query_bytes", cfg.Validation.MaxQueryBytes,
	)

	hub := api.NewHub(logger)
	app, err := newValidationApp(client, hub, true)
	if err != nil {
		return err
	}
	defer app.Close()
	app.machine.AddListener(hub)

	if err := app.store.Refresh(ctx); err != nil {
		logger.Warnw("Initial dashboard load failed; will retry on demand", "error", err)
	}

	server := api.New(cfg.Server, api.Deps{
		Machine:    app.machine,
		Supervisor: app.supervisor,
		Store:      app.store,
		Hub:        hub,
		Auth:       client,
	}, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop any running session so its stream is released.
	if snap := app.machine.Abort(); snap.Phase != validation.PhaseIdle {
		logger.Infow("Validation session left at shutdown", "session", snap.ID, "phase", snap.Phase.String())
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
	return nil
}
