package database

import (
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestConfig_ConnString(t *testing.T) {
	cfg := Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "tokenbroker",
		User:            "broker",
		Password:        "secret",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		t.Fatalf("connection string does not parse: %v", err)
	}

	if poolConfig.ConnConfig.Host != "localhost" {
		t.Errorf("expected host localhost, got %q", poolConfig.ConnConfig.Host)
	}
	if poolConfig.ConnConfig.Database != "tokenbroker" {
		t.Errorf("expected database tokenbroker, got %q", poolConfig.ConnConfig.Database)
	}
	if poolConfig.MaxConns != 10 {
		t.Errorf("expected 10 max conns, got %d", poolConfig.MaxConns)
	}
	if poolConfig.MinConns != 2 {
		t.Errorf("expected 2 min conns, got %d", poolConfig.MinConns)
	}
	if poolConfig.MaxConnLifetime != 30*time.Minute {
		t.Errorf("expected 30m lifetime, got %v", poolConfig.MaxConnLifetime)
	}
}

func TestMigrations(t *testing.T) {
	migrations, err := Migrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migrations) == 0 {
		t.Fatal("expected embedded migrations")
	}

	if migrations[0] != "migrations/001_create_refresh_audit_log.sql" {
		t.Errorf("unexpected first migration %q", migrations[0])
	}

	for _, m := range migrations {
		sql, err := migrationsFS.ReadFile(m)
		if err != nil {
			t.Fatalf("read %s: %v", m, err)
		}
		if !strings.Contains(string(sql), "CREATE") {
			t.Errorf("migration %s has no DDL", m)
		}
	}
}
