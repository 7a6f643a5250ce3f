package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeConfig describes the JSON-RPC endpoint of the full node the tool
// talks to. The RPC password is kept in the system keyring, never here.
type NodeConfig struct {
	Host       string `yaml:"host"` // host:port, no scheme
	User       string `yaml:"user"`
	DisableTLS bool   `yaml:"disable_tls"`
}

// ConsolidateDefaults seeds the consolidation wizard. Values are in
// satoshis unless noted.
type ConsolidateDefaults struct {
	IncludeCoinbase    bool  `yaml:"include_coinbase"`
	IncludeNonCoinbase bool  `yaml:"include_non_coinbase"`
	IncludeFrozen      bool  `yaml:"include_frozen"`
	IncludeTokens      bool  `yaml:"include_tokens"`
	MaxTxSize          int   `yaml:"max_tx_size"` // bytes
	FeeRate            int64 `yaml:"fee_rate"`    // satoshis per kilobyte
}

// Settings is the persisted application configuration.
type Settings struct {
	Network     string              `yaml:"network"` // mainnet, testnet3, regtest
	Node        NodeConfig          `yaml:"node"`
	Consolidate ConsolidateDefaults `yaml:"consolidate"`
	OutboxDir   string              `yaml:"outbox_dir,omitempty"` // overrides the default outbox location
}

// DefaultSettings mirrors the wizard defaults: spend coinbase and regular
// coins, leave frozen and token-bearing coins alone, cap transactions at
// the standard relay size, pay 1 satoshi per byte.
func DefaultSettings() *Settings {
	return &Settings{
		Network: "mainnet",
		Node: NodeConfig{
			Host:       "localhost:8332",
			User:       "",
			DisableTLS: true,
		},
		Consolidate: ConsolidateDefaults{
			IncludeCoinbase:    true,
			IncludeNonCoinbase: true,
			IncludeFrozen:      false,
			IncludeTokens:      false,
			MaxTxSize:          100000,
			FeeRate:            1000,
		},
	}
}

// LoadSettings reads settings.yaml, falling back to defaults when the file
// does not exist yet.
func LoadSettings() (*Settings, error) {
	settingsPath, err := GetSettingsFile()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	// Expand environment variables so hosts and users can reference
	// ${VAR_NAME} without storing the value in the file.
	settings.Node.Host = expandEnvVars(settings.Node.Host)
	settings.Node.User = expandEnvVars(settings.Node.User)

	return settings, nil
}

// SaveSettings writes the settings back to disk.
func SaveSettings(settings *Settings) error {
	settingsPath, err := GetSettingsFile()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	return nil
}

func EnsureSettingsExist() error {
	settingsPath, err := GetSettingsFile()
	if err != nil {
		return err
	}

	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		defaultSettings := `network: mainnet

node:
  host: "localhost:8332"
  user: ""
  disable_tls: true

consolidate:
  include_coinbase: true
  include_non_coinbase: true
  include_frozen: false
  include_tokens: false
  max_tx_size: 100000
  fee_rate: 1000
`

		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return err
		}
	}

	return nil
}

// expandEnvVars expands environment variables in the format ${VAR_NAME}
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

// ValidateNodeHost validates a node host in host:port form.
func ValidateNodeHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if strings.Contains(host, "://") {
		return fmt.Errorf("host must be host:port without a scheme, got: %s", host)
	}

	if !strings.Contains(host, ":") {
		return fmt.Errorf("host must include a port, got: %s", host)
	}

	return nil
}

// KnownNetworks lists the selectable chain networks.
func KnownNetworks() []string {
	return []string{"mainnet", "testnet3", "regtest"}
}

// ValidateNetwork rejects unknown network names.
func ValidateNetwork(network string) error {
	for _, known := range KnownNetworks() {
		if network == known {
			return nil
		}
	}
	return fmt.Errorf("unknown network %q (expected one of: %s)", network, strings.Join(KnownNetworks(), ", "))
}
