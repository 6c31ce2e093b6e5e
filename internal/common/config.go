package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for ledgerd
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Providers   ProvidersConfig `toml:"providers"`
	Liability   LiabilityConfig `toml:"liability"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the ledger store and raw-snapshot store configuration.
type StorageConfig struct {
	Backend string           `toml:"backend"` // "badger" (default) or "memory"
	Path    string           `toml:"path"`
	Raw     RawStorageConfig `toml:"raw"`
}

// RawStorageConfig configures where verbatim provider snapshots are kept.
type RawStorageConfig struct {
	Backend   string         `toml:"backend"` // "file" (default) or "surrealdb"
	Path      string         `toml:"path"`
	SurrealDB SurrealDBConfig `toml:"surrealdb"`
}

// SurrealDBConfig holds connection settings for the surrealdb raw store.
type SurrealDBConfig struct {
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ProvidersConfig holds per-provider client configuration
type ProvidersConfig struct {
	SimpleFin SimpleFinConfig `toml:"simplefin"`
	PDFImport PDFImportConfig `toml:"pdfimport"`
}

// SimpleFinConfig holds SimpleFIN bridge configuration
type SimpleFinConfig struct {
	AccessURL string `toml:"access_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *SimpleFinConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// PDFImportConfig points at the drop directory for PDF statements.
type PDFImportConfig struct {
	Path string `toml:"path"`
}

// LiabilityConfig holds the overpayment analyzer knobs. All values have
// defaults; the sanity and guard thresholds are empirical, not derived.
type LiabilityConfig struct {
	Enabled            bool    `toml:"enabled"`
	WindowDays         int     `toml:"window_days"`
	MinTxns            int     `toml:"min_txns"`
	MinPayments        int     `toml:"min_payments"`
	EpsilonBase        float64 `toml:"epsilon_base"`
	EpsilonPct         float64 `toml:"epsilon_pct"`
	StatementGuardDays int     `toml:"statement_guard_days"`
	GuardMaxPayments   int     `toml:"guard_max_payments"`
	SanityBase         float64 `toml:"sanity_base"`
	SanityPct          float64 `toml:"sanity_pct"`
	StickyDays         int     `toml:"sticky_days"`
}

// SchedulerConfig holds background sync scheduling configuration
type SchedulerConfig struct {
	SyncInterval string `toml:"sync_interval"`
}

// GetSyncInterval parses and returns the sync interval duration
func (c *SchedulerConfig) GetSyncInterval() time.Duration {
	d, err := time.ParseDuration(c.SyncInterval)
	if err != nil {
		return 4 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns a config populated with defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8480,
		},
		Storage: StorageConfig{
			Backend: "badger",
			Path:    "data/ledger",
			Raw: RawStorageConfig{
				Backend: "file",
				Path:    "data/raw",
			},
		},
		Providers: ProvidersConfig{
			SimpleFin: SimpleFinConfig{
				RateLimit: 4,
				Timeout:   "30s",
			},
		},
		Liability: LiabilityConfig{
			Enabled:            true,
			WindowDays:         120,
			MinTxns:            10,
			MinPayments:        2,
			EpsilonBase:        0.50,
			EpsilonPct:         0.005,
			StatementGuardDays: 5,
			GuardMaxPayments:   2,
			SanityBase:         5.0,
			SanityPct:          0.10,
			StickyDays:         7,
		},
		Scheduler: SchedulerConfig{
			SyncInterval: "4h",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads configuration from a TOML file, falling back to defaults
// for anything unset, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LEDGERD_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("LEDGERD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("LEDGERD_STORAGE_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("LEDGERD_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = v
	}
	if v := os.Getenv("LEDGERD_SIMPLEFIN_ACCESS_URL"); v != "" {
		config.Providers.SimpleFin.AccessURL = v
	}
	if v := os.Getenv("LEDGERD_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
