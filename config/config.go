// Package config holds node configuration and genesis-state construction.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// MarketConfig carries the marketplace parameters fixed at genesis. They are
// written into state in block 0 so every validator executes with identical
// fee and duration rules; only the fee rate can change afterwards, via the
// admin's set_fee_rate transaction.
type MarketConfig struct {
	FeeRateBps         uint64 `json:"fee_rate_bps"`         // basis points; 250 = 2.5%
	FeeAdmin           string `json:"fee_admin"`            // pubkey hex; may set the rate and collect fees
	MinAuctionDuration int64  `json:"min_auction_duration"` // nanoseconds
	MaxAuctionDuration int64  `json:"max_auction_duration"` // nanoseconds
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"` // pubkey hex → initial balance
	Market  MarketConfig      `json:"market"`
}

// SeedPeer identifies a bootstrap peer to dial on startup.
type SeedPeer struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// TLSConfig holds the PEM paths for P2P mTLS. All empty → plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`
	NodeCert string `json:"node_cert"`
	NodeKey  string `json:"node_key"`
}

// Config holds all node configuration.
type Config struct {
	NodeID       string        `json:"node_id"`
	DataDir      string        `json:"data_dir"`
	RPCPort      int           `json:"rpc_port"`
	RPCAuthToken string        `json:"rpc_auth_token,omitempty"` // empty → no auth
	P2PPort      int           `json:"p2p_port"`
	MaxBlockTxs  int           `json:"max_block_txs"` // max transactions per block; 0 → 500
	Validators   []string      `json:"validators"`    // authorised proposer pubkey hexes
	SeedPeers    []SeedPeer    `json:"seed_peers,omitempty"`
	TLS          *TLSConfig    `json:"tls,omitempty"`
	Genesis      GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		DataDir:     "./data",
		RPCPort:     8545,
		P2PPort:     30303,
		MaxBlockTxs: 500,
		Genesis: GenesisConfig{
			ChainID: "galleria-dev",
			Alloc:   map[string]uint64{},
			Market:  DefaultMarketConfig(),
		},
	}
}

// DefaultMarketConfig returns the development marketplace parameters:
// 2.5% fee, auctions between one minute and thirty days.
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		FeeRateBps:         250,
		MinAuctionDuration: int64(time.Minute),
		MaxAuctionDuration: int64(30 * 24 * time.Hour),
	}
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
