package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lionkeng/mapbox-mcp-server/internal/config"
)

func TestLoad_fromEnv(t *testing.T) {
	t.Setenv("MCP_SERVER_URL", "http://localhost:8080")
	t.Setenv("JWT_SECRET", "supersecret")
	t.Setenv("JWT_ISSUER", "custom-issuer")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.JWTSecret != "supersecret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.Issuer != "custom-issuer" {
		t.Errorf("Issuer = %q", cfg.Issuer)
	}
	if cfg.TokenTTL != time.Hour {
		t.Errorf("TokenTTL = %v, want 1h", cfg.TokenTTL)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
}

func TestLoad_missingRequired(t *testing.T) {
	t.Setenv("MCP_SERVER_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, err := config.Load("")
	if err == nil {
		t.Fatal("expected error for missing configuration")
	}
	for _, want := range []string{"MCP_SERVER_URL", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name %s", err, want)
		}
	}
}

func TestLoad_fromFile(t *testing.T) {
	t.Setenv("MCP_SERVER_URL", "")
	t.Setenv("JWT_SECRET", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "mapbox-mcp.yaml")
	data := "server_url: http://filehost:9000\n" +
		"jwt_secret: filesecret\n" +
		"request_timeout_seconds: 5\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ServerURL != "http://filehost:9000" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
}

func TestLoad_envOverridesFile(t *testing.T) {
	t.Setenv("MCP_SERVER_URL", "http://envhost:8080")
	t.Setenv("JWT_SECRET", "envsecret")

	dir := t.TempDir()
	path := filepath.Join(dir, "mapbox-mcp.yaml")
	if err := os.WriteFile(path, []byte("server_url: http://filehost:9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ServerURL != "http://envhost:8080" {
		t.Errorf("ServerURL = %q, want env value", cfg.ServerURL)
	}
}
