package storage_test

import (
	"errors"
	"testing"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/internal/testutil"
	"github.com/minseo/galleria/storage"
)

func TestStateDBAccountDefaultsToZero(t *testing.T) {
	state := testutil.NewStateDB()
	acc, err := state.GetAccount("nobody")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc.Balance != 0 || acc.Nonce != 0 {
		t.Errorf("fresh account should be zero, got balance=%d nonce=%d", acc.Balance, acc.Nonce)
	}
}

func TestStateDBListingRoundtrip(t *testing.T) {
	state := testutil.NewStateDB()
	l := &core.Listing{ID: "l1", AssetID: "a1", Seller: "s", Price: 500, CreatedAt: 42}
	if err := state.SetListing(l); err != nil {
		t.Fatal(err)
	}
	got, err := state.GetListing("l1")
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if got.Price != 500 || got.AssetID != "a1" {
		t.Errorf("listing mismatch: %+v", got)
	}

	if err := state.DeleteListing("l1"); err != nil {
		t.Fatal(err)
	}
	if _, err := state.GetListing("l1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted listing: got %v want ErrNotFound", err)
	}
}

func TestStateDBEscrowZeroDeletesEntry(t *testing.T) {
	state := testutil.NewStateDB()

	held, err := state.GetEscrow("bidder")
	if err != nil || held != 0 {
		t.Fatalf("missing entry should read as 0, got %d err %v", held, err)
	}

	if err := state.SetEscrow("bidder", 300); err != nil {
		t.Fatal(err)
	}
	held, _ = state.GetEscrow("bidder")
	if held != 300 {
		t.Errorf("escrow: got %d want 300", held)
	}

	rootWith := state.ComputeRoot()
	if err := state.SetEscrow("bidder", 0); err != nil {
		t.Fatal(err)
	}
	held, _ = state.GetEscrow("bidder")
	if held != 0 {
		t.Errorf("escrow after zero: got %d want 0", held)
	}
	// A zeroed entry must hash identically to one that never existed.
	empty := testutil.NewStateDB()
	if state.ComputeRoot() != empty.ComputeRoot() {
		t.Error("zeroed escrow entry should leave no trace in the state root")
	}
	if rootWith == state.ComputeRoot() {
		t.Error("root should change when escrow is released")
	}
}

func TestStateDBSnapshotRevert(t *testing.T) {
	state := testutil.NewStateDB()
	if err := state.SetAccount(&core.Account{Address: "alice", Balance: 100}); err != nil {
		t.Fatal(err)
	}

	snapID, err := state.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	_ = state.SetAccount(&core.Account{Address: "alice", Balance: 1})
	_ = state.SetEscrow("alice", 99)
	_ = state.SetAuction(&core.Auction{ID: "x", AssetID: "a", Seller: "s", StartingPrice: 1, CurrentBid: 1})

	if err := state.RevertToSnapshot(snapID); err != nil {
		t.Fatalf("RevertToSnapshot: %v", err)
	}

	acc, _ := state.GetAccount("alice")
	if acc.Balance != 100 {
		t.Errorf("balance after revert: got %d want 100", acc.Balance)
	}
	if held, _ := state.GetEscrow("alice"); held != 0 {
		t.Errorf("escrow after revert: got %d want 0", held)
	}
	if _, err := state.GetAuction("x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("auction after revert: got %v want ErrNotFound", err)
	}
}

func TestStateDBComputeRootDeterministic(t *testing.T) {
	build := func() string {
		state := testutil.NewStateDB()
		_ = state.SetAccount(&core.Account{Address: "a", Balance: 1})
		_ = state.SetAccount(&core.Account{Address: "b", Balance: 2})
		_ = state.SetMarketBook(&core.MarketBook{FeeRateBps: 250, Admin: "a"})
		return state.ComputeRoot()
	}
	if build() != build() {
		t.Error("identical writes should produce identical roots")
	}
}

func TestStateDBCommitPersists(t *testing.T) {
	db := testutil.NewMemDB()

	s1 := storage.NewStateDB(db)
	_ = s1.SetAccount(&core.Account{Address: "alice", Balance: 77})
	rootBefore := s1.ComputeRoot()
	if err := s1.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// A fresh StateDB over the same DB must see the committed data.
	s2 := storage.NewStateDB(db)
	acc, err := s2.GetAccount("alice")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance != 77 {
		t.Errorf("balance after reopen: got %d want 77", acc.Balance)
	}
	if s2.ComputeRoot() != rootBefore {
		t.Error("root must survive commit and reopen")
	}
}
