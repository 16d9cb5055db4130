package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	auditpg "3tcapital/tokenbroker/internal/adapters/audit/postgres"
	"3tcapital/tokenbroker/internal/adapters/loginstate"
	"3tcapital/tokenbroker/internal/adapters/refresh/httpauth"
	"3tcapital/tokenbroker/internal/application/tokenprovider"
	"3tcapital/tokenbroker/internal/core/audit"
	"3tcapital/tokenbroker/internal/infrastructure/clock"
	"3tcapital/tokenbroker/internal/infrastructure/config"
	"3tcapital/tokenbroker/internal/infrastructure/database"
	tracedhttp "3tcapital/tokenbroker/internal/infrastructure/http"
	"3tcapital/tokenbroker/internal/infrastructure/logger"
	"3tcapital/tokenbroker/internal/infrastructure/metrics"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       config.AppConfig
	log       *slog.Logger
	pool      *pgxpool.Pool
	auditRepo audit.Repository
	session   *loginstate.Relay
	registry  *prometheus.Registry
	provider  *tokenprovider.Provider
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.App.Name, cfg.App.Version, cfg.Log.Level, cfg.App.Environment)
	a := &app{cfg: cfg, log: log}

	if cfg.Audit.Enabled {
		a.openAudit(ctx)
	} else {
		log.Info("Audit trail disabled in configuration")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(a.registry)
	}

	traced := tracedhttp.NewTracedClient(tracedhttp.TracedClientConfig{
		Timeout:         cfg.Refresh.Timeout,
		AuditEnabled:    cfg.Audit.Enabled,
		AuditTimeout:    cfg.Audit.SaveTimeout,
		LogRequestBody:  cfg.Audit.LogRequestBody,
		LogResponseBody: cfg.Audit.LogResponseBody,
		MaxBodySize:     cfg.Audit.MaxBodySize,
	}, log, a.auditRepo, cfg.Refresh.Authority)

	clk := clock.System{}
	refresh := httpauth.New(httpauth.Config{
		URL:        cfg.Refresh.URL,
		Username:   cfg.Refresh.Username,
		Password:   cfg.Refresh.Password,
		DefaultTTL: cfg.Refresh.DefaultTTL,
		RateLimit:  cfg.Refresh.RateLimit,
		RateBurst:  cfg.Refresh.RateBurst,
	}, traced, clk, log)

	a.session = loginstate.NewRelay(cfg.Session.LoggedIn, log)

	a.provider, err = tokenprovider.New(tokenprovider.Options{
		Refresh:    refresh,
		LoginState: a.session,
		Clock:      clk,
		Timers:     clk,
		Logger:     log,
		Metrics:    m,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create token provider: %w", err)
	}

	log.Info("Token provider ready",
		"authority", cfg.Refresh.Authority,
		"url", cfg.Refresh.URL,
		"logged_in", cfg.Session.LoggedIn,
		"audit", a.auditRepo != nil,
		"metrics", cfg.Metrics.Enabled,
	)

	return a, nil
}

// openAudit connects the audit store. Failures leave auditing off rather than
// stopping the service.
func (a *app) openAudit(ctx context.Context) {
	db := a.cfg.Database
	pool, err := database.NewPool(ctx, database.Config{
		Host:            db.Host,
		Port:            db.Port,
		Database:        db.Database,
		User:            db.User,
		Password:        db.Password,
		SSLMode:         db.SSLMode,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
	})
	if err != nil {
		a.log.Warn("Failed to connect to database, audit trail will be disabled",
			"error", err,
			"host", db.Host,
			"database", db.Database,
			"user", db.User,
			"password_set", db.Password != "",
		)
		return
	}

	if err := database.RunMigrations(ctx, pool, a.log); err != nil {
		pool.Close()
		a.log.Warn("Failed to run migrations, audit trail will be disabled", "error", err)
		return
	}

	a.pool = pool
	a.auditRepo = auditpg.NewRepository(pool, a.log)
	a.log.Info("Audit trail enabled", "database", db.Database, "max_body_size", a.cfg.Audit.MaxBodySize)
}

func (a *app) close() {
	if a.provider != nil {
		a.provider.Close()
	}
	if a.session != nil {
		a.session.Complete()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
