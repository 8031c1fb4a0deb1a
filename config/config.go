package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Backend names for the persistence layer.
const (
	BackendBolt    = "bolt"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

type Config struct {
	ListenAddress          string `toml:"ListenAddress"`
	DataDir                string `toml:"DataDir"`
	StorageBackend         string `toml:"StorageBackend"`
	Environment            string `toml:"Environment"`
	ConfirmationTTLMinutes int    `toml:"ConfirmationTTLMinutes"`
	SweepIntervalSeconds   int    `toml:"SweepIntervalSeconds"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./coupon-data"
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	switch backend {
	case "":
		backend = BackendBolt
	case BackendBolt, BackendLevelDB, BackendMemory:
	default:
		return nil, fmt.Errorf("config: unsupported storage backend %q", cfg.StorageBackend)
	}
	cfg.StorageBackend = backend
	if cfg.ConfirmationTTLMinutes <= 0 {
		cfg.ConfirmationTTLMinutes = 10
	}
	if cfg.SweepIntervalSeconds <= 0 {
		cfg.SweepIntervalSeconds = 300
	}

	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:          ":8545",
		DataDir:                "./coupon-data",
		StorageBackend:         BackendBolt,
		Environment:            "dev",
		ConfirmationTTLMinutes: 10,
		SweepIntervalSeconds:   300,
	}
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
