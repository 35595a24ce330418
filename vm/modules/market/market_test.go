package market_test

import (
	"errors"
	"testing"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/crypto"
	"github.com/minseo/galleria/events"
	"github.com/minseo/galleria/internal/testutil"
	"github.com/minseo/galleria/vm"
	"github.com/minseo/galleria/wallet"

	_ "github.com/minseo/galleria/vm/modules/market"
)

const chainID = "galleria-test"

type env struct {
	state core.State
	exec  *vm.Executor
	admin *wallet.Wallet
	block *core.Block
}

// newEnv seeds a state with the market registry book (2.5% fee) and returns
// an executor plus the admin wallet.
func newEnv(t *testing.T) *env {
	t.Helper()
	state := testutil.NewStateDB()
	admin, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := state.SetMarketBook(&core.MarketBook{FeeRateBps: 250, Admin: admin.PubKey()}); err != nil {
		t.Fatal(err)
	}
	return &env{
		state: state,
		exec:  vm.NewExecutor(state, events.NewEmitter()),
		admin: admin,
		block: core.NewBlock(1, "0000", admin.PubKey(), nil),
	}
}

func (e *env) fund(t *testing.T, w *wallet.Wallet, balance uint64) {
	t.Helper()
	if err := e.state.SetAccount(&core.Account{Address: w.PubKey(), Balance: balance}); err != nil {
		t.Fatal(err)
	}
}

func (e *env) seedAsset(t *testing.T, id string, owner *wallet.Wallet) {
	t.Helper()
	err := e.state.SetAsset(&core.Asset{
		ID:      id,
		Name:    id,
		Creator: owner.PubKey(),
		Owner:   owner.PubKey(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (e *env) run(t *testing.T, tx *core.Transaction) error {
	t.Helper()
	return e.exec.ExecuteTx(e.block, tx)
}

// list executes a list tx and returns the listing ID.
func (e *env) list(t *testing.T, seller *wallet.Wallet, assetID string, price, nonce uint64) string {
	t.Helper()
	tx, err := seller.ListAsset(chainID, assetID, price, nonce, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.run(t, tx); err != nil {
		t.Fatalf("list %s: %v", assetID, err)
	}
	return crypto.Hash([]byte(tx.ID + ":listing:" + assetID))
}

func TestListTakesCustody(t *testing.T) {
	e := newEnv(t)
	seller, _ := wallet.Generate()
	e.fund(t, seller, 10)
	e.seedAsset(t, "art-1", seller)

	listingID := e.list(t, seller, "art-1", 1000, 0)

	l, err := e.state.GetListing(listingID)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if l.Price != 1000 || l.Seller != seller.PubKey() {
		t.Errorf("listing mismatch: %+v", l)
	}
	a, _ := e.state.GetAsset("art-1")
	if a.HeldBy != listingID {
		t.Errorf("asset custody: got %q want %q", a.HeldBy, listingID)
	}
}

func TestListRejections(t *testing.T) {
	e := newEnv(t)
	seller, _ := wallet.Generate()
	stranger, _ := wallet.Generate()
	e.fund(t, seller, 10)
	e.fund(t, stranger, 10)
	e.seedAsset(t, "art-1", seller)

	zeroTx, _ := seller.ListAsset(chainID, "art-1", 0, 0, 0)
	if err := e.run(t, zeroTx); !errors.Is(err, core.ErrInvalidPrice) {
		t.Errorf("zero price: got %v want ErrInvalidPrice", err)
	}

	notOwnerTx, _ := stranger.ListAsset(chainID, "art-1", 100, 0, 0)
	if err := e.run(t, notOwnerTx); !errors.Is(err, core.ErrNotOwner) {
		t.Errorf("non-owner list: got %v want ErrNotOwner", err)
	}

	e.list(t, seller, "art-1", 100, 0)
	againTx, _ := seller.ListAsset(chainID, "art-1", 200, 1, 0)
	if err := e.run(t, againTx); !errors.Is(err, core.ErrAssetHeld) {
		t.Errorf("double list: got %v want ErrAssetHeld", err)
	}
}

// TestBuyExactPayment walks the whole settlement: 2.5% of a 2_000_000_000
// price is 50_000_000 in fees, the seller gets the rest, and an exact
// payment produces no change.
func TestBuyExactPayment(t *testing.T) {
	e := newEnv(t)
	seller, _ := wallet.Generate()
	buyer, _ := wallet.Generate()
	const price = uint64(2_000_000_000)
	e.fund(t, seller, 0)
	e.fund(t, buyer, price)
	e.seedAsset(t, "art-1", seller)
	listingID := e.list(t, seller, "art-1", price, 0)

	buyTx, _ := buyer.NewTx(chainID, core.TxBuyListing, 0, 0, core.BuyListingPayload{
		ListingID: listingID,
		Payment:   price,
	})
	if err := e.run(t, buyTx); err != nil {
		t.Fatalf("buy: %v", err)
	}

	sellerAcc, _ := e.state.GetAccount(seller.PubKey())
	if sellerAcc.Balance != 1_950_000_000 {
		t.Errorf("seller proceeds: got %d want 1950000000", sellerAcc.Balance)
	}
	buyerAcc, _ := e.state.GetAccount(buyer.PubKey())
	if buyerAcc.Balance != 0 {
		t.Errorf("buyer balance: got %d want 0 (no change on exact payment)", buyerAcc.Balance)
	}

	book, _ := e.state.GetMarketBook()
	if book.FeePool != 50_000_000 {
		t.Errorf("fee pool: got %d want 50000000", book.FeePool)
	}
	if book.TotalVolume != price || book.TotalSales != 1 {
		t.Errorf("counters: volume=%d sales=%d", book.TotalVolume, book.TotalSales)
	}

	a, _ := e.state.GetAsset("art-1")
	if a.Owner != buyer.PubKey() || a.HeldBy != "" {
		t.Errorf("asset after sale: owner=%s held_by=%q", a.Owner, a.HeldBy)
	}
	if _, err := e.state.GetListing(listingID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("listing after sale: got %v want ErrNotFound", err)
	}
}

func TestBuyOverpaymentReturnsChange(t *testing.T) {
	e := newEnv(t)
	seller, _ := wallet.Generate()
	buyer, _ := wallet.Generate()
	e.fund(t, seller, 0)
	e.fund(t, buyer, 1500)
	e.seedAsset(t, "art-1", seller)
	listingID := e.list(t, seller, "art-1", 1000, 0)

	buyTx, _ := buyer.NewTx(chainID, core.TxBuyListing, 0, 0, core.BuyListingPayload{
		ListingID: listingID,
		Payment:   1500,
	})
	if err := e.run(t, buyTx); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// fee = 1000*250/10000 = 25; seller gets 975; change 500 comes back.
	buyerAcc, _ := e.state.GetAccount(buyer.PubKey())
	if buyerAcc.Balance != 500 {
		t.Errorf("change: got %d want 500", buyerAcc.Balance)
	}
	sellerAcc, _ := e.state.GetAccount(seller.PubKey())
	if sellerAcc.Balance != 975 {
		t.Errorf("seller proceeds: got %d want 975", sellerAcc.Balance)
	}
	book, _ := e.state.GetMarketBook()
	if book.FeePool != 25 {
		t.Errorf("fee pool: got %d want 25", book.FeePool)
	}
	// volume counts the price, not the payment
	if book.TotalVolume != 1000 {
		t.Errorf("volume: got %d want 1000", book.TotalVolume)
	}
}

func TestBuyRejections(t *testing.T) {
	e := newEnv(t)
	seller, _ := wallet.Generate()
	buyer, _ := wallet.Generate()
	e.fund(t, seller, 10)
	e.fund(t, buyer, 2000)
	e.seedAsset(t, "art-1", seller)
	listingID := e.list(t, seller, "art-1", 1000, 0)

	selfTx, _ := seller.NewTx(chainID, core.TxBuyListing, 1, 0, core.BuyListingPayload{
		ListingID: listingID, Payment: 1000,
	})
	if err := e.run(t, selfTx); !errors.Is(err, core.ErrSelfTrade) {
		t.Errorf("self buy: got %v want ErrSelfTrade", err)
	}

	shortTx, _ := buyer.NewTx(chainID, core.TxBuyListing, 0, 0, core.BuyListingPayload{
		ListingID: listingID, Payment: 999,
	})
	if err := e.run(t, shortTx); !errors.Is(err, core.ErrInsufficientPayment) {
		t.Errorf("short payment: got %v want ErrInsufficientPayment", err)
	}
	// Rejection must leave the listing live and the buyer untouched.
	if _, err := e.state.GetListing(listingID); err != nil {
		t.Errorf("listing should survive a rejected buy: %v", err)
	}
	buyerAcc, _ := e.state.GetAccount(buyer.PubKey())
	if buyerAcc.Balance != 2000 {
		t.Errorf("buyer balance after rejection: got %d want 2000", buyerAcc.Balance)
	}

	missTx, _ := buyer.NewTx(chainID, core.TxBuyListing, 0, 0, core.BuyListingPayload{
		ListingID: "no-such-listing", Payment: 1000,
	})
	if err := e.run(t, missTx); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown listing: got %v want ErrNotFound", err)
	}
}

// TestBuyTwiceSecondFails pins the first-buyer-wins rule: once settled, the
// listing is gone and a second purchase reads as not found.
func TestBuyTwiceSecondFails(t *testing.T) {
	e := newEnv(t)
	seller, _ := wallet.Generate()
	b1, _ := wallet.Generate()
	b2, _ := wallet.Generate()
	e.fund(t, seller, 0)
	e.fund(t, b1, 1000)
	e.fund(t, b2, 1000)
	e.seedAsset(t, "art-1", seller)
	listingID := e.list(t, seller, "art-1", 1000, 0)

	buy1, _ := b1.NewTx(chainID, core.TxBuyListing, 0, 0, core.BuyListingPayload{ListingID: listingID, Payment: 1000})
	if err := e.run(t, buy1); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	buy2, _ := b2.NewTx(chainID, core.TxBuyListing, 0, 0, core.BuyListingPayload{ListingID: listingID, Payment: 1000})
	if err := e.run(t, buy2); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second buy: got %v want ErrNotFound", err)
	}
	// The loser keeps their money.
	acc, _ := e.state.GetAccount(b2.PubKey())
	if acc.Balance != 1000 {
		t.Errorf("second buyer balance: got %d want 1000", acc.Balance)
	}
}

func TestUnlistReturnsCustody(t *testing.T) {
	e := newEnv(t)
	seller, _ := wallet.Generate()
	stranger, _ := wallet.Generate()
	e.fund(t, seller, 10)
	e.fund(t, stranger, 10)
	e.seedAsset(t, "art-1", seller)
	listingID := e.list(t, seller, "art-1", 1000, 0)

	wrongTx, _ := stranger.NewTx(chainID, core.TxUnlistAsset, 0, 0, core.UnlistAssetPayload{ListingID: listingID})
	if err := e.run(t, wrongTx); !errors.Is(err, core.ErrNotOwner) {
		t.Errorf("unlist by stranger: got %v want ErrNotOwner", err)
	}

	tx, _ := seller.NewTx(chainID, core.TxUnlistAsset, 1, 0, core.UnlistAssetPayload{ListingID: listingID})
	if err := e.run(t, tx); err != nil {
		t.Fatalf("unlist: %v", err)
	}
	a, _ := e.state.GetAsset("art-1")
	if a.HeldBy != "" || a.Owner != seller.PubKey() {
		t.Errorf("asset after unlist: owner=%s held_by=%q", a.Owner, a.HeldBy)
	}
	if _, err := e.state.GetListing(listingID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("listing after unlist: got %v want ErrNotFound", err)
	}
}

func TestRepriceKeepsCreatedAt(t *testing.T) {
	e := newEnv(t)
	seller, _ := wallet.Generate()
	e.fund(t, seller, 10)
	e.seedAsset(t, "art-1", seller)
	listingID := e.list(t, seller, "art-1", 1000, 0)

	before, _ := e.state.GetListing(listingID)

	zeroTx, _ := seller.NewTx(chainID, core.TxRepriceListing, 1, 0, core.RepriceListingPayload{
		ListingID: listingID, NewPrice: 0,
	})
	if err := e.run(t, zeroTx); !errors.Is(err, core.ErrInvalidPrice) {
		t.Errorf("reprice to zero: got %v want ErrInvalidPrice", err)
	}

	tx, _ := seller.NewTx(chainID, core.TxRepriceListing, 1, 0, core.RepriceListingPayload{
		ListingID: listingID, NewPrice: 750,
	})
	if err := e.run(t, tx); err != nil {
		t.Fatalf("reprice: %v", err)
	}
	after, _ := e.state.GetListing(listingID)
	if after.Price != 750 {
		t.Errorf("price: got %d want 750", after.Price)
	}
	if after.CreatedAt != before.CreatedAt {
		t.Error("reprice must not reset CreatedAt")
	}
}

func TestFeeGovernance(t *testing.T) {
	e := newEnv(t)
	stranger, _ := wallet.Generate()
	e.fund(t, e.admin, 10)
	e.fund(t, stranger, 10)

	// Non-admin cannot change the rate.
	badTx, _ := stranger.NewTx(chainID, core.TxSetFeeRate, 0, 0, core.SetFeeRatePayload{NewRateBps: 100})
	if err := e.run(t, badTx); !errors.Is(err, core.ErrNotOwner) {
		t.Errorf("set rate by stranger: got %v want ErrNotOwner", err)
	}

	// Rates above 100% are rejected outright.
	hugeTx, _ := e.admin.NewTx(chainID, core.TxSetFeeRate, 0, 0, core.SetFeeRatePayload{NewRateBps: 10_001})
	if err := e.run(t, hugeTx); err == nil {
		t.Error("rate above 10000 bps should be rejected")
	}

	goodTx, _ := e.admin.NewTx(chainID, core.TxSetFeeRate, 0, 0, core.SetFeeRatePayload{NewRateBps: 100})
	if err := e.run(t, goodTx); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	book, _ := e.state.GetMarketBook()
	if book.FeeRateBps != 100 {
		t.Errorf("rate: got %d want 100", book.FeeRateBps)
	}
}

func TestCollectFees(t *testing.T) {
	e := newEnv(t)
	e.fund(t, e.admin, 0)

	book, _ := e.state.GetMarketBook()
	book.FeePool = 12345
	_ = e.state.SetMarketBook(book)

	tx, _ := e.admin.NewTx(chainID, core.TxCollectFees, 0, 0, core.CollectFeesPayload{})
	if err := e.run(t, tx); err != nil {
		t.Fatalf("collect: %v", err)
	}

	acc, _ := e.state.GetAccount(e.admin.PubKey())
	if acc.Balance != 12345 {
		t.Errorf("admin balance: got %d want 12345", acc.Balance)
	}
	book, _ = e.state.GetMarketBook()
	if book.FeePool != 0 {
		t.Errorf("fee pool after collect: got %d want 0", book.FeePool)
	}
}
