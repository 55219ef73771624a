package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LAWDESK_AUTH_JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("LAWDESK_AUTH_ACCESS_TTL", "2h")
	t.Setenv("LAWDESK_FILES_DIR", "/var/lib/lawdesk")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.AccessTTL != 2*time.Hour {
		t.Fatalf("access ttl from env not applied: %v", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.ResetTTL != time.Hour {
		t.Fatalf("unexpected default reset ttl: %v", cfg.Auth.ResetTTL)
	}
	if cfg.Files.Dir != "/var/lib/lawdesk" {
		t.Fatalf("unexpected files dir: %s", cfg.Files.Dir)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.HTTP.Addr)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lawdesk.yaml")
	content := `
auth:
  jwt_secret: "file-secret-0123456789"
  refresh_ttl: 720h
http:
  addr: ":9090"
reminders:
  schedule: "*/5 * * * *"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected addr: %s", cfg.HTTP.Addr)
	}
	if cfg.Auth.RefreshTTL != 720*time.Hour {
		t.Fatalf("unexpected refresh ttl: %v", cfg.Auth.RefreshTTL)
	}
	if cfg.Reminders.Schedule != "*/5 * * * *" {
		t.Fatalf("unexpected schedule: %s", cfg.Reminders.Schedule)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LAWDESK_AUTH_JWT_SECRET", "")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for missing secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("error should name the key: %v", err)
	}
}

func TestValidateFilesBackend(t *testing.T) {
	cfg := Config{
		Auth:  AuthConfig{JWTSecret: "0123456789abcdef", AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour},
		Audit: AuditConfig{QueueSize: 1},
		Files: FilesConfig{Backend: "s3"},
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected bucket error, got %v", err)
	}
	cfg.Files.S3.Bucket = "docs"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTrustedProxies(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{TrustedProxies: []string{"10.0.0.0/8", "127.0.0.1"}},
		Auth:  AuthConfig{JWTSecret: "0123456789abcdef", AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour},
		Audit: AuditConfig{QueueSize: 1},
		Files: FilesConfig{Backend: "fs", Dir: "data"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.HTTP.TrustedProxies = append(cfg.HTTP.TrustedProxies, "lb.internal")
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "trusted_proxies") {
		t.Fatalf("expected trusted_proxies error, got %v", err)
	}
}
