package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DBDriver != "sqlite" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.DeliveryFeeCents != 499 {
		t.Errorf("expected delivery fee 499, got %d", cfg.DeliveryFeeCents)
	}
	if cfg.ReturnWindow != 7*24*time.Hour {
		t.Errorf("expected 7 day return window, got %s", cfg.ReturnWindow)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("LENDING_DB_DRIVER", "mysql")
	t.Setenv("LENDING_DB_DSN", "root:pw@tcp(localhost:3306)/lending")
	t.Setenv("LENDING_SWEEP_INTERVAL", "15m")
	t.Setenv("LENDING_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "mysql" || cfg.SweepInterval != 15*time.Minute {
		t.Errorf("unexpected config %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected two origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoad_DotenvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	body := "LENDING_HTTP_ADDR=:9090\nLENDING_GRPC_ADDR=:7070\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LENDING_GRPC_ADDR", ":6060")
	// Registers a cleanup so the value loaded from the file is removed afterwards.
	t.Setenv("LENDING_HTTP_ADDR", "")
	os.Unsetenv("LENDING_HTTP_ADDR")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("expected dotenv value, got %s", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":6060" {
		t.Errorf("expected environment to win, got %s", cfg.GRPCAddr)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"LENDING_DB_DRIVER", "postgres", "LENDING_DB_DRIVER"},
		{"LENDING_DISPATCH_WORKERS", "0", "dispatcher"},
		{"LENDING_RETURN_WINDOW", "0s", "LENDING_RETURN_WINDOW"},
		{"LENDING_SWEEP_INTERVAL", "soon", "parse env"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
