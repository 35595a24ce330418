package config

import (
	"strings"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// CreateGenesisBlock builds and signs block #0: it credits all alloc
// accounts, seeds both marketplace registry books from the config's market
// parameters, and commits the resulting state. The fee admin defaults to
// the genesis proposer when unset.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		acc := &core.Account{
			Address: pubkeyHex,
			Balance: balance,
			Nonce:   0,
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	market := cfg.Genesis.Market
	admin := market.FeeAdmin
	if admin == "" {
		admin = proposerPub.Hex()
	}
	if err := state.SetMarketBook(&core.MarketBook{
		FeeRateBps: market.FeeRateBps,
		Admin:      admin,
	}); err != nil {
		return nil, err
	}
	if err := state.SetAuctionBook(&core.AuctionBook{
		MinDuration: market.MinAuctionDuration,
		MaxDuration: market.MaxAuctionDuration,
	}); err != nil {
		return nil, err
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash reports whether h is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
