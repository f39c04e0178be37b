package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/devploy/playground-paas/internal/adapters/builder"
	"github.com/devploy/playground-paas/internal/adapters/docker"
	"github.com/devploy/playground-paas/internal/adapters/github"
	"github.com/devploy/playground-paas/internal/adapters/history"
	apihttp "github.com/devploy/playground-paas/internal/adapters/http"
	"github.com/devploy/playground-paas/internal/config"
	"github.com/devploy/playground-paas/internal/core/orchestrator"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "playgroundd",
		Short:   "Single-operator PaaS for ephemeral GitHub app deployments",
		Long:    `Playgroundd deploys GitHub-hosted applications as ephemeral containers, serves them through generated URLs, and reclaims them automatically after a period of inactivity.`,
		Version: version,
	}

	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the deployment orchestrator and API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Infrastructure adapters.
	runtime, err := docker.NewAdapter()
	if err != nil {
		return fmt.Errorf("failed to initialize Docker adapter: %w", err)
	}
	if err := runtime.Ping(ctx); err != nil {
		return fmt.Errorf("docker is not ready: %w", err)
	}

	imageBuilder, err := builder.NewBuilderAdapter()
	if err != nil {
		return fmt.Errorf("failed to initialize builder adapter: %w", err)
	}

	pool, err := docker.NewPortPool(cfg.PortMin, cfg.PortMax)
	if err != nil {
		return err
	}

	store, err := history.Open(filepath.Join(cfg.DataDir, "history.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	catalog := github.NewClient(cfg.GitHubToken)

	// Core.
	orch := orchestrator.New(runtime, imageBuilder, store, pool, logger, orchestrator.Options{
		PublicHost: cfg.PublicHost,
	})

	if err := orch.Reconcile(ctx); err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}

	monitor := orchestrator.NewMonitor(orch, logger, cfg.SweepInterval, cfg.IdleThreshold)
	go monitor.Run(ctx)

	// HTTP surface.
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	proxy := apihttp.NewProxyHandler(orch)
	app.Use(proxy.ProxyRequest)

	api := app.Group("/api")
	v1 := api.Group("/v1")
	v1.Post("/auth", apihttp.AuthHandler(cfg.Password))
	v1.Get("/health", apihttp.HealthHandler(runtime, cfg.GitHubToken != ""))

	// Routes registered after this middleware require the password.
	v1.Use(apihttp.AuthMiddleware(cfg.Password))
	handler := apihttp.NewDeploymentHandler(orch, catalog, cfg.GitHubOwner, logger)
	handler.Register(v1)

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s playgroundd %s listening on %s (idle threshold %s)\n", green("▶"), version, cfg.Listen, cfg.IdleThreshold)
	logger.Info("server starting", "listen", cfg.Listen, "port_range", fmt.Sprintf("%d-%d", cfg.PortMin, cfg.PortMax))

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.Listen)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	// Shutting down does not stop running containers; the next startup
	// reconciles against real runtime state.
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
