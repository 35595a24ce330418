package config_test

import (
	"path/filepath"
	"testing"

	"github.com/minseo/galleria/config"
	"github.com/minseo/galleria/crypto"
	"github.com/minseo/galleria/internal/testutil"
)

func TestCreateGenesisBlock(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Genesis.Alloc = map[string]uint64{"alice": 1000, "bob": 500}

	state := testutil.NewStateDB()
	block, err := config.CreateGenesisBlock(cfg, state, priv)
	if err != nil {
		t.Fatalf("CreateGenesisBlock: %v", err)
	}

	if block.Header.Height != 0 {
		t.Errorf("height: got %d want 0", block.Header.Height)
	}
	if !config.IsGenesisHash(block.Header.PrevHash) {
		t.Errorf("prev hash %q is not the genesis sentinel", block.Header.PrevHash)
	}
	if err := block.Verify(pub); err != nil {
		t.Errorf("genesis signature: %v", err)
	}

	acc, _ := state.GetAccount("alice")
	if acc.Balance != 1000 {
		t.Errorf("alloc: got %d want 1000", acc.Balance)
	}

	market, err := state.GetMarketBook()
	if err != nil {
		t.Fatalf("market book missing after genesis: %v", err)
	}
	if market.FeeRateBps != 250 {
		t.Errorf("fee rate: got %d want 250", market.FeeRateBps)
	}
	// No admin configured → the proposer governs fees.
	if market.Admin != pub.Hex() {
		t.Errorf("admin: got %s want proposer", market.Admin)
	}

	auction, err := state.GetAuctionBook()
	if err != nil {
		t.Fatalf("auction book missing after genesis: %v", err)
	}
	if auction.MinDuration >= auction.MaxDuration {
		t.Errorf("duration bounds inverted: min=%d max=%d", auction.MinDuration, auction.MaxDuration)
	}
}

func TestConfigRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := config.DefaultConfig()
	cfg.NodeID = "node-7"
	cfg.Genesis.Market.FeeRateBps = 125
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.NodeID != "node-7" {
		t.Errorf("node id: got %s want node-7", loaded.NodeID)
	}
	if loaded.Genesis.Market.FeeRateBps != 125 {
		t.Errorf("fee rate: got %d want 125", loaded.Genesis.Market.FeeRateBps)
	}
}

func TestIsGenesisHash(t *testing.T) {
	if !config.IsGenesisHash(config.GenesisHash) {
		t.Error("canonical genesis hash should be recognised")
	}
	if config.IsGenesisHash("abc") {
		t.Error("short string should not be recognised")
	}
}
