package database

import (
	"strings"
	"testing"

	"github.com/kinnevo/fastinnovation-api/config"
)

func TestBuildDSNLocal(t *testing.T) {
	getEnv := &config.EnviornmentVariable{
		DB_STRATEGY:  config.DBStrategyLocal,
		DB_HOST:      "db.example.com",
		DB_PORT:      "5433",
		DB_USER_NAME: "app",
		DB_PASSWORD:  "secret",
		DB_NAME:      "fastinnovation",
		DB_SSL_MODE:  "require",
	}

	dsn, err := BuildDSN(getEnv)
	if err != nil {
		t.Fatalf("BuildDSN failed: %v", err)
	}
	for _, part := range []string{"host=db.example.com", "port=5433", "user=app", "dbname=fastinnovation", "sslmode=require"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("DSN missing %q: %s", part, dsn)
		}
	}
}

func TestBuildDSNLocalDefaultsSSLDisable(t *testing.T) {
	getEnv := &config.EnviornmentVariable{
		DB_STRATEGY:  config.DBStrategyLocal,
		DB_HOST:      "localhost",
		DB_PORT:      "5432",
		DB_USER_NAME: "app",
		DB_NAME:      "db",
	}

	dsn, err := BuildDSN(getEnv)
	if err != nil {
		t.Fatalf("BuildDSN failed: %v", err)
	}
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("expected sslmode=disable default: %s", dsn)
	}
}

func TestBuildDSNProxyPinsLoopback(t *testing.T) {
	getEnv := &config.EnviornmentVariable{
		DB_STRATEGY:  config.DBStrategyProxy,
		DB_HOST:      "ignored.example.com",
		DB_USER_NAME: "app",
		DB_NAME:      "db",
	}

	dsn, err := BuildDSN(getEnv)
	if err != nil {
		t.Fatalf("BuildDSN failed: %v", err)
	}
	if !strings.Contains(dsn, "host=127.0.0.1") {
		t.Errorf("proxy strategy must pin loopback: %s", dsn)
	}
}

func TestBuildDSNSocket(t *testing.T) {
	getEnv := &config.EnviornmentVariable{
		DB_STRATEGY:        config.DBStrategySocket,
		DB_CONNECTION_NAME: "project:region:instance",
		DB_USER_NAME:       "app",
		DB_NAME:            "db",
	}

	dsn, err := BuildDSN(getEnv)
	if err != nil {
		t.Fatalf("BuildDSN failed: %v", err)
	}
	if !strings.Contains(dsn, "host=/cloudsql/project:region:instance") {
		t.Errorf("socket strategy must use the unix socket path: %s", dsn)
	}
}

func TestBuildDSNSocketRequiresConnectionName(t *testing.T) {
	getEnv := &config.EnviornmentVariable{
		DB_STRATEGY: config.DBStrategySocket,
	}

	if _, err := BuildDSN(getEnv); err == nil {
		t.Error("expected error when DB_CONNECTION_NAME is empty")
	}
}

func TestBuildDSNUnknownStrategy(t *testing.T) {
	getEnv := &config.EnviornmentVariable{DB_STRATEGY: "carrier-pigeon"}

	if _, err := BuildDSN(getEnv); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
