package asset_test

import (
	"errors"
	"testing"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/crypto"
	"github.com/minseo/galleria/events"
	"github.com/minseo/galleria/internal/testutil"
	"github.com/minseo/galleria/vm"
	"github.com/minseo/galleria/wallet"

	_ "github.com/minseo/galleria/vm/modules/asset"
)

const chainID = "galleria-test"

func newEnv(t *testing.T) (core.State, *vm.Executor) {
	t.Helper()
	state := testutil.NewStateDB()
	return state, vm.NewExecutor(state, events.NewEmitter())
}

// mint executes a mint tx for w and returns the deterministic asset ID.
func mint(t *testing.T, exec *vm.Executor, state core.State, w *wallet.Wallet, name string, nonce uint64) string {
	t.Helper()
	tx, err := w.NewTx(chainID, core.TxMintAsset, nonce, 0, core.MintAssetPayload{
		Name:        name,
		Description: "test piece",
		ImageURL:    "https://img.example/" + name,
	})
	if err != nil {
		t.Fatal(err)
	}
	block := core.NewBlock(1, "0000", w.PubKey(), nil)
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatalf("mint %q: %v", name, err)
	}
	return crypto.Hash([]byte(tx.ID + ":asset:" + name))
}

func TestMintAsset(t *testing.T) {
	state, exec := newEnv(t)
	creator, _ := wallet.Generate()
	_ = state.SetAccount(&core.Account{Address: creator.PubKey(), Balance: 100})

	assetID := mint(t, exec, state, creator, "sunset", 0)

	a, err := state.GetAsset(assetID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if a.Creator != creator.PubKey() || a.Owner != creator.PubKey() {
		t.Errorf("creator/owner: got %s/%s want minter", a.Creator, a.Owner)
	}
	if a.Name != "sunset" {
		t.Errorf("name: got %q want sunset", a.Name)
	}
	if a.HeldBy != "" {
		t.Error("fresh asset must not be in custody")
	}
}

func TestMintToRecipient(t *testing.T) {
	state, exec := newEnv(t)
	creator, _ := wallet.Generate()
	recipient, _ := wallet.Generate()
	_ = state.SetAccount(&core.Account{Address: creator.PubKey(), Balance: 100})

	tx, _ := creator.NewTx(chainID, core.TxMintAsset, 0, 0, core.MintAssetPayload{
		Name:      "gift",
		Recipient: recipient.PubKey(),
	})
	block := core.NewBlock(1, "0000", creator.PubKey(), nil)
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatalf("mint: %v", err)
	}

	assetID := crypto.Hash([]byte(tx.ID + ":asset:gift"))
	a, err := state.GetAsset(assetID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Owner != recipient.PubKey() {
		t.Errorf("owner: got %s want recipient", a.Owner)
	}
	if a.Creator != creator.PubKey() {
		t.Errorf("creator: got %s want minter", a.Creator)
	}
}

func TestTransferAsset(t *testing.T) {
	state, exec := newEnv(t)
	owner, _ := wallet.Generate()
	receiver, _ := wallet.Generate()
	_ = state.SetAccount(&core.Account{Address: owner.PubKey(), Balance: 100})

	assetID := mint(t, exec, state, owner, "tulips", 0)

	tx, _ := owner.NewTx(chainID, core.TxTransferAsset, 1, 0, core.TransferAssetPayload{
		AssetID: assetID,
		To:      receiver.PubKey(),
	})
	block := core.NewBlock(1, "0000", owner.PubKey(), nil)
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	a, _ := state.GetAsset(assetID)
	if a.Owner != receiver.PubKey() {
		t.Errorf("owner after transfer: got %s want receiver", a.Owner)
	}

	// The old owner no longer controls the asset.
	tx2, _ := owner.NewTx(chainID, core.TxTransferAsset, 2, 0, core.TransferAssetPayload{
		AssetID: assetID,
		To:      owner.PubKey(),
	})
	if err := exec.ExecuteTx(block, tx2); !errors.Is(err, core.ErrNotOwner) {
		t.Errorf("transfer by non-owner: got %v want ErrNotOwner", err)
	}
}

func TestBurnAsset(t *testing.T) {
	state, exec := newEnv(t)
	owner, _ := wallet.Generate()
	_ = state.SetAccount(&core.Account{Address: owner.PubKey(), Balance: 100})

	assetID := mint(t, exec, state, owner, "ephemeral", 0)

	tx, _ := owner.NewTx(chainID, core.TxBurnAsset, 1, 0, core.BurnAssetPayload{AssetID: assetID})
	block := core.NewBlock(1, "0000", owner.PubKey(), nil)
	if err := exec.ExecuteTx(block, tx); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if _, err := state.GetAsset(assetID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("burned asset: got %v want ErrNotFound", err)
	}
}

func TestHeldAssetRefusesMutation(t *testing.T) {
	state, exec := newEnv(t)
	owner, _ := wallet.Generate()
	other, _ := wallet.Generate()
	_ = state.SetAccount(&core.Account{Address: owner.PubKey(), Balance: 100})

	assetID := mint(t, exec, state, owner, "locked", 0)

	// Simulate marketplace custody.
	a, _ := state.GetAsset(assetID)
	a.HeldBy = "some-listing"
	_ = state.SetAsset(a)

	block := core.NewBlock(1, "0000", owner.PubKey(), nil)

	transferTx, _ := owner.NewTx(chainID, core.TxTransferAsset, 1, 0, core.TransferAssetPayload{
		AssetID: assetID,
		To:      other.PubKey(),
	})
	if err := exec.ExecuteTx(block, transferTx); !errors.Is(err, core.ErrAssetHeld) {
		t.Errorf("transfer of held asset: got %v want ErrAssetHeld", err)
	}

	burnTx, _ := owner.NewTx(chainID, core.TxBurnAsset, 1, 0, core.BurnAssetPayload{AssetID: assetID})
	if err := exec.ExecuteTx(block, burnTx); !errors.Is(err, core.ErrAssetHeld) {
		t.Errorf("burn of held asset: got %v want ErrAssetHeld", err)
	}
}
