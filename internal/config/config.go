// Package config loads the vault-x YAML configuration and builds the
// logger it describes.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/MBenz12/vault-x/internal/pda"
	"github.com/MBenz12/vault-x/internal/program"
)

const envPrefix = "VAULTX_"

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type Config struct {
	ProgramID   string        `yaml:"program_id"`
	Initializer string        `yaml:"initializer"`
	Ledger      LedgerConfig  `yaml:"ledger"`
	API         APIConfig     `yaml:"api"`
	RPC         RPCConfig     `yaml:"rpc"`
	Watcher     WatcherConfig `yaml:"watcher"`
	Log         LogConfig     `yaml:"log"`
}

type LedgerConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
}

type RPCConfig struct {
	Endpoint   string `yaml:"endpoint"`
	WSEndpoint string `yaml:"ws_endpoint"`
	Keypair    string `yaml:"keypair"`
}

type WatcherConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ProgramID:   pda.ProgramID.String(),
		Initializer: program.DefaultInitializer.String(),
		Ledger:      LedgerConfig{Driver: DriverMemory, Path: "vaultx.db"},
		API:         APIConfig{Listen: ":8080"},
		RPC: RPCConfig{
			Endpoint:   "http://127.0.0.1:8899",
			WSEndpoint: "ws://127.0.0.1:8900",
		},
		Watcher: WatcherConfig{Interval: 30 * time.Second},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults, then applies VAULTX_* environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"PROGRAM_ID":      &c.ProgramID,
		"INITIALIZER":     &c.Initializer,
		"LEDGER_DRIVER":   &c.Ledger.Driver,
		"LEDGER_PATH":     &c.Ledger.Path,
		"API_LISTEN":      &c.API.Listen,
		"RPC_ENDPOINT":    &c.RPC.Endpoint,
		"RPC_WS_ENDPOINT": &c.RPC.WSEndpoint,
		"RPC_KEYPAIR":     &c.RPC.Keypair,
		"LOG_LEVEL":       &c.Log.Level,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	if v, ok := lookup(envPrefix + "WATCHER_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sWATCHER_INTERVAL: %w", envPrefix, err)
		}
		c.Watcher.Interval = d
	}
	if v, ok := lookup(envPrefix + "LOG_DEVELOPMENT"); ok {
		c.Log.Development = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("invalid program_id %q: %w", c.ProgramID, err)
	}
	if _, err := solana.PublicKeyFromBase58(c.Initializer); err != nil {
		return fmt.Errorf("invalid initializer %q: %w", c.Initializer, err)
	}
	switch c.Ledger.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver)
	}
	if c.Watcher.Interval <= 0 {
		return fmt.Errorf("watcher.interval must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	return nil
}

func (c *Config) ProgramKey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ProgramID)
}

func (c *Config) InitializerKey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.Initializer)
}

// Logger builds the zap logger the log section describes.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
