// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"
)

// Config holds the full service configuration.
type Config struct {
	// ListenAddr is the address the HTTP server listens on.
	// Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	// ExternalBasePath is the optional path prefix for app endpoints.
	// Example: "/presence" or empty string.
	ExternalBasePath string `toml:"external_base_path"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// TLS configuration.
	TLS TLSConfig `toml:"tls"`

	// Graph holds upstream Microsoft Graph settings.
	Graph GraphConfig `toml:"graph"`

	// Poll holds collection cycle settings.
	Poll PollConfig `toml:"poll"`

	// Store holds persistence settings.
	Store StoreConfig `toml:"store"`

	// Cache configuration.
	Cache CacheConfig `toml:"cache"`

	// OutboundHTTP configuration for all upstream calls.
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// BootstrapAdmin is the local admin account created at startup.
	BootstrapAdmin BootstrapAdminConfig `toml:"bootstrap_admin"`

	// SessionTTLMinutes is the session lifetime. Default: 1440 (24h).
	SessionTTLMinutes int `toml:"session_ttl_minutes"`
}

// BootstrapAdminConfig holds the bootstrap admin credentials.
type BootstrapAdminConfig struct {
	// Username defaults to "admin".
	Username string `toml:"username"`

	// Password, when empty, is generated at startup and logged once.
	Password string `toml:"password"`
}

// TLSConfig holds TLS settings.
type TLSConfig struct {
	// Mode is "off" (default) or "static".
	Mode string `toml:"mode"`

	// CertFile and KeyFile are required when Mode is "static".
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// GraphConfig holds Microsoft Graph credentials and endpoints.
// TenantID, ClientID and ClientSecret fall back to the TENANT_ID,
// CLIENT_ID and CLIENT_SECRET environment variables when unset.
type GraphConfig struct {
	// TenantID is the Entra ID tenant.
	TenantID string `toml:"tenant_id"`

	// ClientID and ClientSecret identify the application registration.
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`

	// GroupID scopes polling to one group's members. When empty the
	// full tenant user listing is polled. Falls back to GROUP_ID.
	GroupID string `toml:"group_id"`

	// TokenURL overrides the token endpoint (tests). When empty it is
	// derived from TenantID.
	TokenURL string `toml:"token_url"`

	// BaseURL overrides the Graph API base (tests).
	// Default: "https://graph.microsoft.com/v1.0"
	BaseURL string `toml:"base_url"`

	// MaxRetries bounds retry attempts for throttled or failing
	// upstream calls. Default: 4.
	MaxRetries int `toml:"max_retries"`
}

// PollConfig holds collection cycle settings.
type PollConfig struct {
	// Enabled controls whether the poll scheduler runs.
	// Pointer for presence detection; nil means enabled.
	Enabled *bool `toml:"enabled"`

	// IntervalSeconds between cycles. Default: 3600.
	IntervalSeconds int `toml:"interval_seconds"`

	// CycleTimeoutSeconds bounds one full cycle. Default: 600.
	CycleTimeoutSeconds int `toml:"cycle_timeout_seconds"`

	// Concurrency bounds parallel per-member fetches. Default: 8.
	Concurrency int `toml:"concurrency"`

	// MaxGapSeconds forces a refresh record for an unchanged status
	// once this much time has passed since the last stored record.
	// Default: 21600 (6h).
	MaxGapSeconds int `toml:"max_gap_seconds"`

	// BatchSize, when > 0, fetches presence through the batched
	// getPresencesByUserId endpoint in chunks of this size instead of
	// per-member requests. Graph caps batches at 100 ids.
	BatchSize int `toml:"batch_size"`
}

// Interval returns the poll interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// CycleTimeout returns the per-cycle deadline as a duration.
func (p PollConfig) CycleTimeout() time.Duration {
	return time.Duration(p.CycleTimeoutSeconds) * time.Second
}

// MaxGap returns the dedupe gap threshold as a duration.
func (p PollConfig) MaxGap() time.Duration {
	return time.Duration(p.MaxGapSeconds) * time.Second
}

// IsEnabled reports whether the scheduler should run.
func (p PollConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is the store driver name. Default: "sqlite".
	Driver string `toml:"driver"`

	// DataDir is the directory for data files.
	DataDir string `toml:"data_dir"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default) or "redis".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.redis] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// OutboundHTTPConfig holds outbound HTTP client settings.
type OutboundHTTPConfig struct {
	// TimeoutMS is the total request timeout. Default: 30000.
	TimeoutMS int `toml:"timeout_ms"`

	// ConnectTimeoutMS is the dial timeout. Default: 5000.
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`

	// MaxRedirects bounds redirect following. Default: 1.
	MaxRedirects int `toml:"max_redirects"`

	// MaxResponseBytes bounds response body reads. Default: 4 MiB.
	MaxResponseBytes int64 `toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (tests only).
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level"`
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Graph.TenantID == "" && c.Graph.TokenURL == "" {
		return fmt.Errorf("graph.tenant_id is required (or TENANT_ID in the environment)")
	}
	if c.Graph.ClientID == "" {
		return fmt.Errorf("graph.client_id is required (or CLIENT_ID in the environment)")
	}
	if c.Graph.ClientSecret == "" {
		return fmt.Errorf("graph.client_secret is required (or CLIENT_SECRET in the environment)")
	}
	if c.Poll.IntervalSeconds <= 0 {
		return fmt.Errorf("poll.interval_seconds must be positive")
	}
	if c.Poll.CycleTimeoutSeconds <= 0 {
		return fmt.Errorf("poll.cycle_timeout_seconds must be positive")
	}
	if c.Poll.Concurrency <= 0 {
		return fmt.Errorf("poll.concurrency must be positive")
	}
	if c.Poll.MaxGapSeconds < 0 {
		return fmt.Errorf("poll.max_gap_seconds must not be negative")
	}
	if c.Poll.BatchSize < 0 || c.Poll.BatchSize > 100 {
		return fmt.Errorf("poll.batch_size must be between 0 and 100")
	}
	switch c.TLS.Mode {
	case "", "off":
	case "static":
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required for tls.mode=static")
		}
	default:
		return fmt.Errorf("invalid tls.mode %q: must be off or static", c.TLS.Mode)
	}
	if c.Store.Driver == "" {
		return fmt.Errorf("store.driver is required")
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	return nil
}

// Redacted returns a loggable view of the config with secrets masked.
func (c *Config) Redacted() map[string]any {
	secret := func(s string) string {
		if s == "" {
			return ""
		}
		return "[redacted]"
	}
	return map[string]any{
		"listen_addr":        c.ListenAddr,
		"external_base_path": c.ExternalBasePath,
		"tls_mode":           c.TLS.Mode,
		"graph": map[string]any{
			"tenant_id":     c.Graph.TenantID,
			"client_id":     c.Graph.ClientID,
			"client_secret": secret(c.Graph.ClientSecret),
			"group_id":      c.Graph.GroupID,
			"max_retries":   c.Graph.MaxRetries,
		},
		"poll": map[string]any{
			"enabled":               c.Poll.IsEnabled(),
			"interval_seconds":      c.Poll.IntervalSeconds,
			"cycle_timeout_seconds": c.Poll.CycleTimeoutSeconds,
			"concurrency":           c.Poll.Concurrency,
			"max_gap_seconds":       c.Poll.MaxGapSeconds,
			"batch_size":            c.Poll.BatchSize,
		},
		"store": map[string]any{
			"driver":   c.Store.Driver,
			"data_dir": c.Store.DataDir,
		},
		"cache_driver":  c.Cache.Driver,
		"logging_level": c.Logging.Level,
		"bootstrap_admin": map[string]any{
			"username": c.Server.BootstrapAdmin.Username,
			"password": secret(c.Server.BootstrapAdmin.Password),
		},
	}
}
