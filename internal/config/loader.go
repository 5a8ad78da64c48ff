package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"presencelog/internal/logutil"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but missing or invalid, loading fails.
	ConfigPath string

	// FlagOverrides are CLI flag values that override file values.
	FlagOverrides FlagOverrides

	// Logger is used for warnings (e.g. undecoded keys).
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
// Nil or empty values mean "not set".
type FlagOverrides struct {
	ListenAddr       *string
	ExternalBasePath *string
	LoggingLevel     *string
	StoreDriver      *string
	DataDir          *string
	PollInterval     *string // seconds
	GroupID          *string
}

// Defaults returns a Config populated with built-in defaults.
func Defaults() *Config {
	return &Config{
		ListenAddr: ":8080",
		Server: ServerConfig{
			BootstrapAdmin:    BootstrapAdminConfig{Username: "admin"},
			SessionTTLMinutes: 1440,
		},
		TLS: TLSConfig{Mode: "off"},
		Graph: GraphConfig{
			BaseURL:    "https://graph.microsoft.com/v1.0",
			MaxRetries: 4,
		},
		Poll: PollConfig{
			IntervalSeconds:     3600,
			CycleTimeoutSeconds: 600,
			Concurrency:         8,
			MaxGapSeconds:       21600,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: "./data",
		},
		Cache: CacheConfig{Driver: "memory"},
		OutboundHTTP: OutboundHTTPConfig{
			TimeoutMS:        30000,
			ConnectTimeoutMS: 5000,
			MaxRedirects:     1,
			MaxResponseBytes: 4 << 20,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the effective configuration with precedence:
// defaults -> TOML file -> environment secrets -> CLI flags.
func Load(opts LoaderOptions) (*Config, error) {
	logger := logutil.NoopIfNil(opts.Logger)
	cfg := Defaults()

	if opts.ConfigPath != "" {
		md, err := toml.DecodeFile(opts.ConfigPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		for _, key := range md.Undecoded() {
			logger.Warn("unknown config key ignored", "key", key.String())
		}
	}

	applyEnv(cfg)
	applyFlags(cfg, opts.FlagOverrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills Graph credentials from the environment when the file
// left them empty. The variable names match the upstream app registration
// conventions (.env files).
func applyEnv(cfg *Config) {
	if cfg.Graph.TenantID == "" {
		cfg.Graph.TenantID = os.Getenv("TENANT_ID")
	}
	if cfg.Graph.ClientID == "" {
		cfg.Graph.ClientID = os.Getenv("CLIENT_ID")
	}
	if cfg.Graph.ClientSecret == "" {
		cfg.Graph.ClientSecret = os.Getenv("CLIENT_SECRET")
	}
	if cfg.Graph.GroupID == "" {
		cfg.Graph.GroupID = os.Getenv("GROUP_ID")
	}
}

func applyFlags(cfg *Config, f FlagOverrides) {
	setString := func(dst *string, src *string) {
		if src != nil && *src != "" {
			*dst = *src
		}
	}

	setString(&cfg.ListenAddr, f.ListenAddr)
	setString(&cfg.ExternalBasePath, f.ExternalBasePath)
	setString(&cfg.Logging.Level, f.LoggingLevel)
	setString(&cfg.Store.Driver, f.StoreDriver)
	setString(&cfg.Store.DataDir, f.DataDir)
	setString(&cfg.Graph.GroupID, f.GroupID)

	if f.PollInterval != nil && *f.PollInterval != "" {
		if secs, err := strconv.Atoi(*f.PollInterval); err == nil {
			cfg.Poll.IntervalSeconds = secs
		}
	}
}
