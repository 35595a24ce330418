// Package auction implements timed English auctions with an escrow ledger.
//
// Bid value lives in the escrow ledger (keyed by bidder address) from the
// moment a bid is recorded until it is either refunded on outbid or paid to
// the seller on finalize; those two releases are the only ways value leaves
// escrow. Balances for one bidder merge across auctions, so a release
// always deducts exactly the auction's current bid rather than draining the
// whole entry: a bidder leading two auctions at once keeps the second
// auction's escrow intact when outbid on the first.
//
// Expiry is never a stored flag: an auction has ended iff the block
// timestamp has reached its end time.
package auction

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
	vm.Register(core.TxCreateAuction, handleCreate)
	vm.Register(core.TxPlaceBid, handleBid)
	vm.Register(core.TxFinalizeAuction, handleFinalize)
	vm.Register(core.TxCancelAuction, handleCancel)
}

func handleCreate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CreateAuctionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode create_auction payload: %w", err)
	}
	if p.StartingPrice == 0 {
		return fmt.Errorf("create auction for %q: %w", p.AssetID, core.ErrInvalidPrice)
	}

	book, err := ctx.State.GetAuctionBook()
	if err != nil {
		return fmt.Errorf("auction book: %w", err)
	}
	// Bounds keep out degenerate instant auctions and indefinitely locked
	// assets.
	if p.Duration < book.MinDuration || p.Duration > book.MaxDuration {
		return fmt.Errorf("duration %d outside [%d, %d]: %w",
			p.Duration, book.MinDuration, book.MaxDuration, core.ErrDurationOutOfRange)
	}

	a, err := ctx.State.GetAsset(p.AssetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", p.AssetID, err)
	}
	if a.Owner != ctx.Tx.From {
		return fmt.Errorf("auction asset %q: %w", p.AssetID, core.ErrNotOwner)
	}
	if a.HeldBy != "" {
		return fmt.Errorf("auction asset %q: %w", p.AssetID, core.ErrAssetHeld)
	}

	auctionID := crypto.Hash([]byte(ctx.Tx.ID + ":auction:" + p.AssetID))
	// Unreachable while the custody marker holds; defended anyway.
	if _, err := ctx.State.GetAuction(auctionID); err == nil {
		return fmt.Errorf("auction %q: %w", auctionID, core.ErrDuplicateKey)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check auction %q: %w", auctionID, err)
	}

	now := ctx.Now()
	auc := &core.Auction{
		ID:            auctionID,
		AssetID:       p.AssetID,
		Seller:        ctx.Tx.From,
		StartingPrice: p.StartingPrice,
		// CurrentBid == StartingPrice with no HighestBidder is the
		// no-bid sentinel state.
		CurrentBid: p.StartingPrice,
		EndTime:    now + p.Duration,
		CreatedAt:  now,
	}
	if err := ctx.State.SetAuction(auc); err != nil {
		return err
	}

	a.HeldBy = auctionID
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}

	book.TotalCount++
	if err := ctx.State.SetAuctionBook(book); err != nil {
		return err
	}

	ctx.Emit(events.EventAuctionCreated, map[string]any{
		"auction_id":     auctionID,
		"asset_id":       p.AssetID,
		"seller":         ctx.Tx.From,
		"starting_price": p.StartingPrice,
		"end_time":       auc.EndTime,
	})
	return nil
}

func handleBid(ctx *vm.Context, payload json.RawMessage) error {
	var p core.PlaceBidPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode place_bid payload: %w", err)
	}

	auc, err := ctx.State.GetAuction(p.AuctionID)
	if err != nil {
		return fmt.Errorf("auction %q: %w", p.AuctionID, err)
	}
	if auc.Ended(ctx.Now()) {
		return fmt.Errorf("bid on auction %q: %w", p.AuctionID, core.ErrAuctionEnded)
	}
	if auc.Seller == ctx.Tx.From {
		return fmt.Errorf("bid on auction %q: %w", p.AuctionID, core.ErrSelfTrade)
	}
	// Strictly greater: an equal bid would make the winner among
	// concurrent bidders ambiguous.
	if p.Amount <= auc.CurrentBid {
		return fmt.Errorf("bid %d on auction %q (current %d): %w",
			p.Amount, p.AuctionID, auc.CurrentBid, core.ErrBidTooLow)
	}

	bid, err := ctx.Withdraw(ctx.Tx.From, p.Amount)
	if err != nil {
		return err
	}

	// Refund the outbid leader before recording the new bid. The refund is
	// unconditional: a leader raising their own bid gets the old amount
	// back and escrows the new one in full.
	if auc.HasBid() {
		if err := releaseEscrow(ctx, auc.HighestBidder, auc.CurrentBid, auc.HighestBidder); err != nil {
			return fmt.Errorf("refund outbid %s on auction %q: %w", auc.HighestBidder, auc.ID, err)
		}
		ctx.Emit(events.EventBidRefunded, map[string]any{
			"auction_id": auc.ID,
			"bidder":     auc.HighestBidder,
			"amount":     auc.CurrentBid,
		})
	}

	// Escrow the new bid, merging with any balance the bidder already has
	// outstanding on other auctions.
	held, err := ctx.State.GetEscrow(ctx.Tx.From)
	if err != nil {
		return err
	}
	if err := ctx.State.SetEscrow(ctx.Tx.From, held+bid.Value()); err != nil {
		return err
	}

	auc.CurrentBid = p.Amount
	auc.HighestBidder = ctx.Tx.From
	if err := ctx.State.SetAuction(auc); err != nil {
		return err
	}

	ctx.Emit(events.EventBidPlaced, map[string]any{
		"auction_id": auc.ID,
		"bidder":     ctx.Tx.From,
		"amount":     p.Amount,
	})
	return nil
}

func handleFinalize(ctx *vm.Context, payload json.RawMessage) error {
	var p core.FinalizeAuctionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode finalize_auction payload: %w", err)
	}

	// Finalize is permissionless: whoever pays the fee may settle an
	// expired auction; the outcome is the same regardless of caller.
	auc, err := ctx.State.GetAuction(p.AuctionID)
	if err != nil {
		return fmt.Errorf("auction %q: %w", p.AuctionID, err)
	}
	if !auc.Ended(ctx.Now()) {
		return fmt.Errorf("finalize auction %q: %w", p.AuctionID, core.ErrAuctionNotEnded)
	}

	// Remove the record first so a second finalize in the same block hits
	// ErrNotFound instead of paying out twice.
	if err := ctx.State.DeleteAuction(auc.ID); err != nil {
		return err
	}

	a, err := ctx.State.GetAsset(auc.AssetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", auc.AssetID, err)
	}
	a.HeldBy = ""

	if auc.HasBid() {
		if err := releaseEscrow(ctx, auc.HighestBidder, auc.CurrentBid, auc.Seller); err != nil {
			return fmt.Errorf("pay out auction %q: %w", auc.ID, err)
		}
		a.Owner = auc.HighestBidder
	}
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}

	book, err := ctx.State.GetAuctionBook()
	if err != nil {
		return fmt.Errorf("auction book: %w", err)
	}
	book.CompletedCount++
	if err := ctx.State.SetAuctionBook(book); err != nil {
		return err
	}

	ctx.Emit(events.EventAuctionFinalized, map[string]any{
		"auction_id": auc.ID,
		"asset_id":   auc.AssetID,
		"seller":     auc.Seller,
		"winner":     auc.HighestBidder,
		"price":      auc.CurrentBid,
		"sold":       auc.HasBid(),
	})
	return nil
}

func handleCancel(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CancelAuctionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode cancel_auction payload: %w", err)
	}

	auc, err := ctx.State.GetAuction(p.AuctionID)
	if err != nil {
		return fmt.Errorf("auction %q: %w", p.AuctionID, err)
	}
	if auc.Seller != ctx.Tx.From {
		return fmt.Errorf("cancel auction %q: %w", p.AuctionID, core.ErrNotOwner)
	}
	if auc.HasBid() {
		return fmt.Errorf("cancel auction %q: %w", p.AuctionID, core.ErrHasBids)
	}

	if err := ctx.State.DeleteAuction(auc.ID); err != nil {
		return err
	}

	a, err := ctx.State.GetAsset(auc.AssetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", auc.AssetID, err)
	}
	a.HeldBy = ""
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}

	ctx.Emit(events.EventAuctionCancelled, map[string]any{
		"auction_id": auc.ID,
		"asset_id":   auc.AssetID,
		"seller":     auc.Seller,
	})
	return nil
}

// releaseEscrow deducts amount from bidder's escrow balance and deposits it
// to recipient, in one step. The deduct-then-transfer pairing is the only
// way value ever leaves the ledger; a balance below amount means the ledger
// invariant was already broken and the transaction must abort.
func releaseEscrow(ctx *vm.Context, bidder string, amount uint64, recipient string) error {
	held, err := ctx.State.GetEscrow(bidder)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("escrow for %s holds %d, need %d: %w", bidder, held, amount, core.ErrInsufficientBalance)
	}
	if err := ctx.State.SetEscrow(bidder, held-amount); err != nil {
		return err
	}
	return ctx.Deposit(recipient, core.NewCoin(amount))
}
