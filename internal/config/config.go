// Package config loads the bridge daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Relay    RelayConfig    `yaml:"relay"`
	Database DatabaseConfig `yaml:"database"`
	Chains   []ChainEntry   `yaml:"chains"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	RateLimit int    `yaml:"rate_limit"`
	RateBurst int    `yaml:"rate_burst"`
}

// BridgeConfig covers the controller parameters.
type BridgeConfig struct {
	LocalChain    uint16 `yaml:"local_chain"`
	LocalEndpoint string `yaml:"local_endpoint"`
	MinBridgeFee  int64  `yaml:"min_bridge_fee"`
	CallerID      string `yaml:"caller_id"`
	JWTSecret     string `yaml:"jwt_secret"`
	RelayToken    string `yaml:"relay_token"`
	// SweepInterval and StaleAge are Go durations ("30s", "15m").
	SweepInterval string `yaml:"sweep_interval"`
	StaleAge      string `yaml:"stale_age"`
}

// RelayConfig points at the external relay node. An empty base URL
// runs on the in-process loopback, which only reaches this node.
type RelayConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	// Timeout is a Go duration ("30s"). Zero uses the adapter default.
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// DatabaseConfig selects the storage backend. An empty URL runs on the
// in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ChainEntry seeds one chain's configuration at startup.
type ChainEntry struct {
	Chain         uint16 `yaml:"chain"`
	Endpoint      string `yaml:"endpoint"`
	Confirmations uint64 `yaml:"confirmations"`
	FeeBps        int64  `yaml:"fee_bps"`
	Active        bool   `yaml:"active"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8090", RateLimit: 50, RateBurst: 100},
		Bridge: BridgeConfig{
			LocalChain:    1,
			LocalEndpoint: "bridge-local",
			MinBridgeFee:  50,
			CallerID:      "bridge-controller",
			SweepInterval: "30s",
			StaleAge:      "15m",
		},
	}
}

// Load reads config/bridge.yaml relative to the working directory.
func Load() (Config, error) {
	return LoadFromPath(filepath.Join("config", "bridge.yaml"))
}

// LoadFromPath reads and validates the configuration at path, applying
// environment overrides afterwards.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads the configuration, falling back to defaults plus
// environment overrides when no file exists.
func LoadOrDefault() Config {
	cfg, err := Load()
	if err != nil {
		cfg = Default()
		cfg.applyEnv()
	}
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BRIDGE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("BRIDGE_JWT_SECRET"); v != "" {
		c.Bridge.JWTSecret = v
	}
	if v := os.Getenv("BRIDGE_RELAY_TOKEN"); v != "" {
		c.Bridge.RelayToken = v
	}
	if v := os.Getenv("BRIDGE_RELAY_URL"); v != "" {
		c.Relay.BaseURL = v
	}
	if v := os.Getenv("BRIDGE_RELAY_AUTH"); v != "" {
		c.Relay.Token = v
	}
	if v := os.Getenv("BRIDGE_LOCAL_CHAIN"); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 16); err == nil {
			c.Bridge.LocalChain = uint16(parsed)
		}
	}
	if v := os.Getenv("BRIDGE_MIN_FEE"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Bridge.MinBridgeFee = parsed
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Bridge.MinBridgeFee < 0 {
		return fmt.Errorf("min_bridge_fee must not be negative")
	}
	if c.Relay.MaxRetries < 0 {
		return fmt.Errorf("relay max_retries must not be negative")
	}
	seen := make(map[uint16]struct{}, len(c.Chains))
	for _, chain := range c.Chains {
		if chain.Endpoint == "" {
			return fmt.Errorf("chain %d: endpoint is required", chain.Chain)
		}
		if _, dup := seen[chain.Chain]; dup {
			return fmt.Errorf("chain %d configured twice", chain.Chain)
		}
		seen[chain.Chain] = struct{}{}
	}
	return nil
}
