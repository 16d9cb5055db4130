package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	audithttp "3tcapital/tokenbroker/internal/adapters/http/audit"
	healthhttp "3tcapital/tokenbroker/internal/adapters/http/health"
	sessionhttp "3tcapital/tokenbroker/internal/adapters/http/session"
	tokenhttp "3tcapital/tokenbroker/internal/adapters/http/token"
	apphealth "3tcapital/tokenbroker/internal/application/health"
	corehealth "3tcapital/tokenbroker/internal/core/health"
	"3tcapital/tokenbroker/internal/infrastructure/http/server"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	checks := []corehealth.Checker{apphealth.TokenProviderCheck(a.provider)}
	if a.pool != nil {
		checks = append(checks, apphealth.DatabaseCheck(a.pool))
	}
	healthService := apphealth.NewService(apphealth.Metadata{
		Service:     a.cfg.App.Name,
		Version:     a.cfg.App.Version,
		Environment: a.cfg.App.Environment,
	}, checks...)
	healthHandler := healthhttp.NewHandler(healthService, a.log)

	var metricsHandler http.Handler
	if a.registry != nil {
		metricsHandler = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}

	srv, err := server.New(server.Options{
		Config:         a.cfg,
		Logger:         a.log,
		HealthHandler:  http.HandlerFunc(healthHandler.Status),
		MetricsHandler: metricsHandler,
		TokenHandler:   tokenhttp.NewHandler(a.provider, a.log),
		SessionHandler: sessionhttp.NewHandler(a.session, a.log),
		AuditHandler:   audithttp.NewHandler(a.auditRepo, a.log),
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer srv.Close()

	return srv.Run(ctx)
}
