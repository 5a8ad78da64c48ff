package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"presencelog/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// minimal credentials so Validate passes without a real environment.
const credsTOML = `
[graph]
tenant_id = "tenant-1"
client_id = "client-1"
client_secret = "secret-1"
`

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, credsTOML)

	cfg, err := config.Load(config.LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Poll.IntervalSeconds != 3600 {
		t.Errorf("IntervalSeconds = %d, want 3600", cfg.Poll.IntervalSeconds)
	}
	if cfg.Poll.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Poll.Concurrency)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("Cache.Driver = %q", cfg.Cache.Driver)
	}
	if !cfg.Poll.IsEnabled() {
		t.Error("poll should be enabled by default")
	}
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `listen_addr = ":9999"
`+credsTOML+`
[poll]
interval_seconds = 300
max_gap_seconds = 7200
batch_size = 100

[cache]
driver = "redis"

[cache.drivers.redis]
addr = "localhost:6379"
`)

	cfg, err := config.Load(config.LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Poll.IntervalSeconds != 300 {
		t.Errorf("IntervalSeconds = %d", cfg.Poll.IntervalSeconds)
	}
	if cfg.Poll.MaxGapSeconds != 7200 {
		t.Errorf("MaxGapSeconds = %d", cfg.Poll.MaxGapSeconds)
	}
	if cfg.Poll.BatchSize != 100 {
		t.Errorf("BatchSize = %d", cfg.Poll.BatchSize)
	}
	if cfg.Cache.Driver != "redis" {
		t.Errorf("Cache.Driver = %q", cfg.Cache.Driver)
	}
	if _, ok := cfg.Cache.Drivers["redis"]; !ok {
		t.Error("redis driver config not decoded")
	}
}

func TestLoadFlagOverrides(t *testing.T) {
	path := writeConfig(t, `listen_addr = ":9999"`+credsTOML)

	listen := ":7777"
	interval := "60"
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: path,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   &listen,
			PollInterval: &interval,
		},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":7777" {
		t.Errorf("flag should override file: ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Poll.IntervalSeconds != 60 {
		t.Errorf("IntervalSeconds = %d, want 60", cfg.Poll.IntervalSeconds)
	}
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("TENANT_ID", "env-tenant")
	t.Setenv("CLIENT_ID", "env-client")
	t.Setenv("CLIENT_SECRET", "env-secret")
	t.Setenv("GROUP_ID", "env-group")

	path := writeConfig(t, `listen_addr = ":8080"`)

	cfg, err := config.Load(config.LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Graph.TenantID != "env-tenant" {
		t.Errorf("TenantID = %q", cfg.Graph.TenantID)
	}
	if cfg.Graph.GroupID != "env-group" {
		t.Errorf("GroupID = %q", cfg.Graph.GroupID)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	// Make sure ambient env vars can't satisfy validation.
	t.Setenv("TENANT_ID", "")
	t.Setenv("CLIENT_ID", "")
	t.Setenv("CLIENT_SECRET", "")

	path := writeConfig(t, `listen_addr = ":8080"`)

	_, err := config.Load(config.LoaderOptions{ConfigPath: path})
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		toml string
		want string
	}{
		{"zero interval", credsTOML + "[poll]\ninterval_seconds = 0\n", "interval_seconds"},
		{"oversized batch", credsTOML + "[poll]\nbatch_size = 200\n", "batch_size"},
		{"bad tls mode", credsTOML + "[tls]\nmode = \"acme\"\n", "tls.mode"},
		{"static tls without certs", credsTOML + "[tls]\nmode = \"static\"\n", "cert_file"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.toml)
			_, err := config.Load(config.LoaderOptions{ConfigPath: path})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	path := writeConfig(t, credsTOML)
	cfg, err := config.Load(config.LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatal(err)
	}

	red := cfg.Redacted()
	graph := red["graph"].(map[string]any)
	if graph["client_secret"] != "[redacted]" {
		t.Errorf("client_secret not redacted: %v", graph["client_secret"])
	}
	if graph["tenant_id"] != "tenant-1" {
		t.Errorf("tenant_id should not be redacted: %v", graph["tenant_id"])
	}
}
