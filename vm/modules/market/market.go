// Package market implements the fixed-price listing book: list, buy,
// unlist, reprice, plus the admin fee-rate and fee-collection operations.
//
// A listing exists exactly while the book holds custody of the asset on the
// seller's behalf (asset.HeldBy carries the listing ID). Every handler runs
// all of its checks before its first write, and the executor wraps each
// transaction in a snapshot, so a rejected purchase leaves the listing and
// all balances untouched.
package market

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/crypto"
	"github.com/minseo/galleria/events"
	"github.com/minseo/galleria/vm"
)

func init() {
	vm.Register(core.TxListAsset, handleList)
	vm.Register(core.TxBuyListing, handleBuy)
	vm.Register(core.TxUnlistAsset, handleUnlist)
	vm.Register(core.TxRepriceListing, handleReprice)
	vm.Register(core.TxSetFeeRate, handleSetFeeRate)
	vm.Register(core.TxCollectFees, handleCollectFees)
}

func handleList(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ListAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode list_asset payload: %w", err)
	}
	if p.Price == 0 {
		return fmt.Errorf("list asset %q: %w", p.AssetID, core.ErrInvalidPrice)
	}

	a, err := ctx.State.GetAsset(p.AssetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", p.AssetID, err)
	}
	if a.Owner != ctx.Tx.From {
		return fmt.Errorf("list asset %q: %w", p.AssetID, core.ErrNotOwner)
	}
	if a.HeldBy != "" {
		return fmt.Errorf("list asset %q: %w", p.AssetID, core.ErrAssetHeld)
	}

	listingID := crypto.Hash([]byte(ctx.Tx.ID + ":listing:" + p.AssetID))
	// Unreachable while the custody marker holds; defended anyway.
	if _, err := ctx.State.GetListing(listingID); err == nil {
		return fmt.Errorf("listing %q: %w", listingID, core.ErrDuplicateKey)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check listing %q: %w", listingID, err)
	}

	l := &core.Listing{
		ID:        listingID,
		AssetID:   p.AssetID,
		Seller:    ctx.Tx.From,
		Price:     p.Price,
		CreatedAt: ctx.Now(),
	}
	if err := ctx.State.SetListing(l); err != nil {
		return err
	}

	// Custody moves to the book.
	a.HeldBy = listingID
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}

	ctx.Emit(events.EventAssetListed, map[string]any{
		"listing_id": listingID,
		"asset_id":   p.AssetID,
		"seller":     ctx.Tx.From,
		"price":      p.Price,
	})
	return nil
}

func handleBuy(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BuyListingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode buy_listing payload: %w", err)
	}

	l, err := ctx.State.GetListing(p.ListingID)
	if err != nil {
		return fmt.Errorf("listing %q: %w", p.ListingID, err)
	}
	if l.Seller == ctx.Tx.From {
		return fmt.Errorf("buy listing %q: %w", p.ListingID, core.ErrSelfTrade)
	}
	// A payment exactly equal to the price is accepted: a listing is a
	// take-it-or-leave-it price floor, unlike an auction bid.
	if p.Payment < l.Price {
		return fmt.Errorf("buy listing %q: payment %d < price %d: %w",
			p.ListingID, p.Payment, l.Price, core.ErrInsufficientPayment)
	}

	a, err := ctx.State.GetAsset(l.AssetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", l.AssetID, err)
	}

	book, err := ctx.State.GetMarketBook()
	if err != nil {
		return fmt.Errorf("market book: %w", err)
	}

	// Carve the payment into fee, seller amount, and change. Integer
	// truncation favors the fee pool; the three pieces always sum back to
	// the payment.
	payment, err := ctx.Withdraw(ctx.Tx.From, p.Payment)
	if err != nil {
		return err
	}
	feeAmount := l.Price * book.FeeRateBps / core.FeeBasis
	feeCoin, rest, err := payment.Split(feeAmount)
	if err != nil {
		return err
	}
	sellerCoin, change, err := rest.Split(l.Price - feeAmount)
	if err != nil {
		return err
	}

	book.FeePool += feeCoin.Value()
	if err := ctx.Deposit(l.Seller, sellerCoin); err != nil {
		return err
	}
	// Change goes back to the buyer; a zero coin is destroyed by Deposit.
	if err := ctx.Deposit(ctx.Tx.From, change); err != nil {
		return err
	}

	a.Owner = ctx.Tx.From
	a.HeldBy = ""
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}
	if err := ctx.State.DeleteListing(l.ID); err != nil {
		return err
	}

	book.TotalVolume += l.Price
	book.TotalSales++
	if err := ctx.State.SetMarketBook(book); err != nil {
		return err
	}

	ctx.Emit(events.EventListingSold, map[string]any{
		"listing_id": l.ID,
		"asset_id":   l.AssetID,
		"buyer":      ctx.Tx.From,
		"seller":     l.Seller,
		"price":      l.Price,
		"fee":        feeCoin.Value(),
		"change":     change.Value(),
	})
	return nil
}

func handleUnlist(ctx *vm.Context, payload json.RawMessage) error {
	var p core.UnlistAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode unlist_asset payload: %w", err)
	}

	l, err := ctx.State.GetListing(p.ListingID)
	if err != nil {
		return fmt.Errorf("listing %q: %w", p.ListingID, err)
	}
	if l.Seller != ctx.Tx.From {
		return fmt.Errorf("unlist listing %q: %w", p.ListingID, core.ErrNotOwner)
	}

	a, err := ctx.State.GetAsset(l.AssetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", l.AssetID, err)
	}
	a.HeldBy = ""
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}
	if err := ctx.State.DeleteListing(l.ID); err != nil {
		return err
	}

	ctx.Emit(events.EventListingUnlisted, map[string]any{
		"listing_id": l.ID,
		"asset_id":   l.AssetID,
		"seller":     l.Seller,
	})
	return nil
}

func handleReprice(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RepriceListingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode reprice_listing payload: %w", err)
	}
	if p.NewPrice == 0 {
		return fmt.Errorf("reprice listing %q: %w", p.ListingID, core.ErrInvalidPrice)
	}

	l, err := ctx.State.GetListing(p.ListingID)
	if err != nil {
		return fmt.Errorf("listing %q: %w", p.ListingID, err)
	}
	if l.Seller != ctx.Tx.From {
		return fmt.Errorf("reprice listing %q: %w", p.ListingID, core.ErrNotOwner)
	}

	oldPrice := l.Price
	l.Price = p.NewPrice // CreatedAt deliberately untouched
	if err := ctx.State.SetListing(l); err != nil {
		return err
	}

	ctx.Emit(events.EventListingRepriced, map[string]any{
		"listing_id": l.ID,
		"asset_id":   l.AssetID,
		"old_price":  oldPrice,
		"new_price":  p.NewPrice,
	})
	return nil
}

func handleSetFeeRate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetFeeRatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_fee_rate payload: %w", err)
	}
	if p.NewRateBps > core.FeeBasis {
		return fmt.Errorf("fee rate %d exceeds %d basis points", p.NewRateBps, core.FeeBasis)
	}

	book, err := ctx.State.GetMarketBook()
	if err != nil {
		return fmt.Errorf("market book: %w", err)
	}
	if book.Admin != ctx.Tx.From {
		return fmt.Errorf("set fee rate: %w", core.ErrNotOwner)
	}

	oldRate := book.FeeRateBps
	book.FeeRateBps = p.NewRateBps
	if err := ctx.State.SetMarketBook(book); err != nil {
		return err
	}

	ctx.Emit(events.EventFeeRateChanged, map[string]any{
		"old_rate_bps": oldRate,
		"new_rate_bps": p.NewRateBps,
	})
	return nil
}

func handleCollectFees(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CollectFeesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode collect_fees payload: %w", err)
	}

	book, err := ctx.State.GetMarketBook()
	if err != nil {
		return fmt.Errorf("market book: %w", err)
	}
	if book.Admin != ctx.Tx.From {
		return fmt.Errorf("collect fees: %w", core.ErrNotOwner)
	}

	collected := book.FeePool
	book.FeePool = 0
	if err := ctx.State.SetMarketBook(book); err != nil {
		return err
	}
	if err := ctx.Deposit(book.Admin, core.NewCoin(collected)); err != nil {
		return err
	}

	ctx.Emit(events.EventFeesCollected, map[string]any{
		"admin":  book.Admin,
		"amount": collected,
	})
	return nil
}
