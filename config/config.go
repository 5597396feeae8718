package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"rbtchain/storage"
)

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	DBBackend      string `toml:"DBBackend"`
	GenesisFile    string `toml:"GenesisFile"`
	// IndexerDSN is a postgres:// URL or SQLite path; "off" disables indexing.
	IndexerDSN     string `toml:"IndexerDSN"`
	Environment    string `toml:"Environment"`

	RPCRequestsPerMinute float64 `toml:"RPCRequestsPerMinute"`
	RPCBurst             int     `toml:"RPCBurst"`
	RPCMaxBodyBytes      int64   `toml:"RPCMaxBodyBytes"`
	RPCReadHeaderTimeout int     `toml:"RPCReadHeaderTimeout"`
	RPCWriteTimeout      int     `toml:"RPCWriteTimeout"`

	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	cfg := &Config{
		RPCAddress:     "127.0.0.1:8645",
		MetricsAddress: "127.0.0.1:9645",
		DataDir:        "./rbt-data",
		DBBackend:      storage.BackendLevelDB,
		GenesisFile:    "",
		IndexerDSN:     "",
		Environment:    "local",
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DBBackend) == "" {
		c.DBBackend = storage.BackendLevelDB
	}
	if c.RPCRequestsPerMinute <= 0 {
		c.RPCRequestsPerMinute = 600
	}
	if c.RPCBurst <= 0 {
		c.RPCBurst = 20
	}
	if c.RPCMaxBodyBytes <= 0 {
		c.RPCMaxBodyBytes = 1 << 20
	}
	if c.RPCReadHeaderTimeout <= 0 {
		c.RPCReadHeaderTimeout = 5
	}
	if c.RPCWriteTimeout <= 0 {
		c.RPCWriteTimeout = 15
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "rbtd"
	}
}

// IndexerPath resolves the indexer DSN, defaulting to a SQLite file in the
// data directory.
func (c *Config) IndexerPath() string {
	if dsn := strings.TrimSpace(c.IndexerDSN); dsn != "" {
		return dsn
	}
	return filepath.Join(c.DataDir, "indexer.sqlite")
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
