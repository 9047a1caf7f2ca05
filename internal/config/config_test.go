package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9999"
  rate_limit: 10
bridge:
  local_chain: 3
  min_bridge_fee: 75
chains:
  - chain: 2
    endpoint: "0xremote-bridge"
    confirmations: 12
    fee_bps: 30
    active: true
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("expected addr :9999, got %s", cfg.Server.Addr)
	}
	if cfg.Bridge.LocalChain != 3 || cfg.Bridge.MinBridgeFee != 75 {
		t.Fatalf("bridge section not applied: %+v", cfg.Bridge)
	}
	// defaults survive for fields the file omits
	if cfg.Bridge.CallerID != "bridge-controller" {
		t.Fatalf("expected default caller id, got %q", cfg.Bridge.CallerID)
	}
	if len(cfg.Chains) != 1 || cfg.Chains[0].Endpoint != "0xremote-bridge" {
		t.Fatalf("chains not loaded: %+v", cfg.Chains)
	}
}

func TestRelaySection(t *testing.T) {
	path := writeConfig(t, `
relay:
  base_url: "https://relay.bridge.net"
  token: "s3cret"
  timeout: "10s"
  max_retries: 4
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Relay.BaseURL != "https://relay.bridge.net" || cfg.Relay.Token != "s3cret" {
		t.Fatalf("relay section not applied: %+v", cfg.Relay)
	}
	if cfg.Relay.Timeout != "10s" || cfg.Relay.MaxRetries != 4 {
		t.Fatalf("relay tuning not applied: %+v", cfg.Relay)
	}

	t.Setenv("BRIDGE_RELAY_URL", "https://relay.other.net")
	cfg, err = LoadFromPath(path)
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if cfg.Relay.BaseURL != "https://relay.other.net" {
		t.Fatalf("relay url env override lost: %s", cfg.Relay.BaseURL)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing endpoint", "chains:\n  - chain: 2\n"},
		{"duplicate chain", "chains:\n  - chain: 2\n    endpoint: a\n  - chain: 2\n    endpoint: b\n"},
		{"negative fee", "bridge:\n  min_bridge_fee: -1\n"},
		{"negative retries", "relay:\n  max_retries: -1\n"},
		{"bad yaml", ": not yaml"},
	}
	for _, tc := range cases {
		path := writeConfig(t, tc.content)
		if _, err := LoadFromPath(path); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_ADDR", ":7070")
	t.Setenv("DATABASE_URL", "postgres://localhost/bridge")
	t.Setenv("BRIDGE_LOCAL_CHAIN", "5")

	path := writeConfig(t, "server:\n  addr: \":9999\"\n")
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("env override lost: %s", cfg.Server.Addr)
	}
	if cfg.Database.URL != "postgres://localhost/bridge" {
		t.Fatalf("database env override lost: %s", cfg.Database.URL)
	}
	if cfg.Bridge.LocalChain != 5 {
		t.Fatalf("chain env override lost: %d", cfg.Bridge.LocalChain)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()
	if cfg.Server.Addr == "" {
		t.Fatal("expected a default addr")
	}
}
