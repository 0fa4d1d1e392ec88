package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nornlabs/norn/types"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`   // remote node ID
	Addr string `json:"addr"` // host:port
}

// ValidatorConfig names a validator admitted to the genesis active set and
// the stake it is bonded with at height 0.
type ValidatorConfig struct {
	PubKey string `json:"pubkey"` // hex ed25519 public key
	Stake  uint64 `json:"stake"`  // initial bonded stake, native token units
}

// GenesisConfig describes the weave's state at height 0: the native token
// balances every address starts with, and the validators bonded before the
// first block is proposed.
type GenesisConfig struct {
	ChainID    string            `json:"chain_id"`
	Alloc      map[string]uint64 `json:"alloc"` // address hex -> initial native token balance
	Validators []ValidatorConfig `json:"validators"`
}

// Config holds all node configuration.
type Config struct {
	NodeID      string `json:"node_id"`
	DataDir     string `json:"data_dir"`
	P2PPort     int    `json:"p2p_port"`
	MaxBlockTxs int    `json:"max_block_txs"` // max commitments/fraud proofs per block; 0 -> 500

	Genesis   GenesisConfig `json:"genesis"`
	SeedPeers []SeedPeer    `json:"seed_peers,omitempty"`

	TLS *TLSConfig `json:"tls,omitempty"` // nil -> plain TCP
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		DataDir:     "./data",
		P2PPort:     30303,
		MaxBlockTxs: 500,
		Genesis: GenesisConfig{
			ChainID: "norn-dev",
			Alloc:   map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if len(c.Genesis.Validators) == 0 {
		return fmt.Errorf("genesis.validators list must not be empty")
	}
	for i, v := range c.Genesis.Validators {
		b, err := hex.DecodeString(v.PubKey)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("genesis.validators[%d]: pubkey must be 64-char hex (32 bytes ed25519), got %q", i, v.PubKey)
		}
		if v.Stake == 0 {
			return fmt.Errorf("genesis.validators[%d]: stake must be nonzero", i)
		}
	}
	for addr := range c.Genesis.Alloc {
		if _, err := types.AddressFromHex(addr); err != nil {
			return fmt.Errorf("genesis.alloc: invalid address %q: %w", addr, err)
		}
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
