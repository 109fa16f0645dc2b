// Package config loads the bridge daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"github.com/psy-protocol/doge-bridge/internal/bridge"
	"github.com/psy-protocol/doge-bridge/internal/custodian"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

// NetworkType selects mainnet or testnet Dogecoin parameters.
type NetworkType string

const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkTestnet NetworkType = "testnet"
)

// HexKey is a 32-byte key encoded as 0x-prefixed hex in YAML.
type HexKey [32]byte

// UnmarshalYAML decodes the hex string form.
func (k *HexKey) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid hex key %q: %w", s, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("hex key %q is %d bytes, want 32", s, len(b))
	}
	copy(k[:], b)
	return nil
}

// MarshalYAML encodes the hex string form.
func (k HexKey) MarshalYAML() (interface{}, error) {
	return hexutil.Encode(k[:]), nil
}

// Pubkey converts the key to the runtime address type.
func (k HexKey) Pubkey() runtime.Pubkey {
	return runtime.Pubkey(k)
}

// IsZero reports whether the key is unset.
func (k HexKey) IsZero() bool {
	return k == HexKey{}
}

// Config holds all daemon configuration.
type Config struct {
	NetworkType NetworkType `yaml:"network_type"`

	Bridge    BridgeConfig    `yaml:"bridge"`
	Custodian CustodianConfig `yaml:"custodian"`
	Network   NetworkConfig   `yaml:"network"`
	RPC       RPCConfig       `yaml:"rpc"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig identifies the programs and privileged signers.
type BridgeConfig struct {
	ProgramID            HexKey `yaml:"program_id"`
	MintBufferProgramID  HexKey `yaml:"mint_buffer_program_id"`
	TxoBufferProgramID   HexKey `yaml:"txo_buffer_program_id"`
	ManualClaimProgramID HexKey `yaml:"manual_claim_program_id"`

	DogeMint   HexKey `yaml:"doge_mint"`
	Operator   HexKey `yaml:"operator"`
	FeeSpender HexKey `yaml:"fee_spender"`

	Fees FeeConfig `yaml:"fees"`
}

// FeeConfig mirrors the on-chain fee parameters.
type FeeConfig struct {
	DepositFeeRateNum     uint64 `yaml:"deposit_fee_rate_num"`
	DepositFeeRateDen     uint64 `yaml:"deposit_fee_rate_den"`
	WithdrawalFeeRateNum  uint64 `yaml:"withdrawal_fee_rate_num"`
	WithdrawalFeeRateDen  uint64 `yaml:"withdrawal_fee_rate_den"`
	DepositFlatFeeSats    uint64 `yaml:"deposit_flat_fee_sats"`
	WithdrawalFlatFeeSats uint64 `yaml:"withdrawal_flat_fee_sats"`
}

// CustodianConfig describes the Dogecoin multisig fleet.
type CustodianConfig struct {
	RequiredSignatures uint8    `yaml:"required_signatures"`
	PublicKeys         []string `yaml:"public_keys"` // 0x-prefixed 33-byte compressed keys
}

// NetworkConfig holds gossip network settings.
type NetworkConfig struct {
	KeyFile        string        `yaml:"key_file"`
	ListenAddrs    []string      `yaml:"listen_addrs"`
	BootstrapPeers []string      `yaml:"bootstrap_peers"`
	EnableDHT      bool          `yaml:"enable_dht"`
	ConnLowWater   int           `yaml:"conn_low_water"`
	ConnHighWater  int           `yaml:"conn_high_water"`
	ConnGrace      time.Duration `yaml:"conn_grace"`
}

// RPCConfig holds the HTTP API settings.
type RPCConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a Config with sensible defaults. Program ids and
// signers must still be filled in before the daemon will validate.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: NetworkMainnet,
		Network: NetworkConfig{
			KeyFile:       "node.key",
			ListenAddrs:   []string{"/ip4/0.0.0.0/tcp/4101", "/ip4/0.0.0.0/udp/4101/quic-v1"},
			EnableDHT:     true,
			ConnLowWater:  50,
			ConnHighWater: 200,
			ConnGrace:     time.Minute,
		},
		RPC: RPCConfig{
			Addr: "127.0.0.1:8545",
		},
		Storage: StorageConfig{
			DataDir: "~/.psybridge",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// IsTestnet reports whether the daemon runs against Dogecoin testnet.
func (c *Config) IsTestnet() bool {
	return c.NetworkType == NetworkTestnet
}

// DogeParams returns the Dogecoin address parameters for the network.
func (c *Config) DogeParams() *chaincfg.Params {
	if c.IsTestnet() {
		return &custodian.DogeTestNetParams
	}
	return &custodian.DogeMainNetParams
}

// WalletConfig builds the custodian wallet description from the config.
func (c *Config) WalletConfig() (*custodian.WalletConfig, error) {
	w := &custodian.WalletConfig{
		RequiredSignatures: c.Custodian.RequiredSignatures,
		PublicKeys:         make([][33]byte, 0, len(c.Custodian.PublicKeys)),
	}
	for i, s := range c.Custodian.PublicKeys {
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("custodian key %d: %w", i, err)
		}
		if len(b) != 33 {
			return nil, fmt.Errorf("custodian key %d is %d bytes, want 33", i, len(b))
		}
		var key [33]byte
		copy(key[:], b)
		w.PublicKeys = append(w.PublicKeys, key)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// BridgeFees converts the fee section to the on-chain config type.
func (c *Config) BridgeFees() bridge.Config {
	f := c.Bridge.Fees
	return bridge.Config{
		DepositFeeRateNum:     f.DepositFeeRateNum,
		DepositFeeRateDen:     f.DepositFeeRateDen,
		WithdrawalFeeRateNum:  f.WithdrawalFeeRateNum,
		WithdrawalFeeRateDen:  f.WithdrawalFeeRateDen,
		DepositFlatFeeSats:    f.DepositFlatFeeSats,
		WithdrawalFlatFeeSats: f.WithdrawalFlatFeeSats,
	}
}

// Validate checks the fields the daemon cannot start without.
func (c *Config) Validate() error {
	if c.NetworkType != NetworkMainnet && c.NetworkType != NetworkTestnet {
		return fmt.Errorf("unknown network type %q", c.NetworkType)
	}
	for name, key := range map[string]HexKey{
		"bridge.program_id":              c.Bridge.ProgramID,
		"bridge.mint_buffer_program_id":  c.Bridge.MintBufferProgramID,
		"bridge.txo_buffer_program_id":   c.Bridge.TxoBufferProgramID,
		"bridge.manual_claim_program_id": c.Bridge.ManualClaimProgramID,
		"bridge.doge_mint":               c.Bridge.DogeMint,
		"bridge.operator":                c.Bridge.Operator,
		"bridge.fee_spender":             c.Bridge.FeeSpender,
	} {
		if key.IsZero() {
			return fmt.Errorf("%s is not set", name)
		}
	}
	if _, err := c.WalletConfig(); err != nil {
		return fmt.Errorf("custodian: %w", err)
	}
	if len(c.Network.ListenAddrs) == 0 {
		return fmt.Errorf("network.listen_addrs is empty")
	}
	if c.RPC.Addr == "" {
		return fmt.Errorf("rpc.addr is not set")
	}
	return nil
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// Load reads the config file under the data directory, creating a default
// one on first run.
func Load(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Psy Doge Bridge daemon configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Path returns the full path of the config file for a data directory.
func Path(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
