package core_test

import (
	"testing"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/crypto"
	"github.com/minseo/galleria/internal/testutil"
)

func newSignedBlock(t *testing.T, height int64, prevHash string) *core.Block {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	b := core.NewBlock(height, prevHash, pub.Hex(), nil)
	b.Sign(priv)
	return b
}

func TestBlockchainAddAndLookup(t *testing.T) {
	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}

	b1 := newSignedBlock(t, 1, "prev")
	if err := bc.AddBlock(b1); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if bc.Height() != 1 {
		t.Errorf("height: got %d want 1", bc.Height())
	}
	if tip := bc.Tip(); tip == nil || tip.Hash != b1.Hash {
		t.Error("tip should be the added block")
	}

	got, err := bc.GetBlockByHeight(1)
	if err != nil {
		t.Fatalf("GetBlockByHeight: %v", err)
	}
	if got.Hash != b1.Hash {
		t.Errorf("lookup by height: got %s want %s", got.Hash, b1.Hash)
	}
}

func TestBlockchainRejectsBrokenLinkage(t *testing.T) {
	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}

	b1 := newSignedBlock(t, 1, "prev")
	if err := bc.AddBlock(b1); err != nil {
		t.Fatal(err)
	}

	// Wrong height.
	b3 := newSignedBlock(t, 3, b1.Hash)
	if err := bc.AddBlock(b3); err == nil {
		t.Error("skipping a height should be rejected")
	}

	// Right height, wrong prev hash.
	b2 := newSignedBlock(t, 2, "bogus")
	if err := bc.AddBlock(b2); err == nil {
		t.Error("prev_hash mismatch should be rejected")
	}
}
