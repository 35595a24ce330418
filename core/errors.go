package core

import "errors"

// ErrNotFound is returned when a requested record does not exist in storage.
// Marketplace handlers surface it for dead listing/auction IDs as well, so a
// second finalize or buy on the same identity always fails with it.
var ErrNotFound = errors.New("not found")

// Marketplace rejection reasons. Every failed transition maps to exactly one
// of these; handlers wrap them with fmt.Errorf("...: %w", err) for context.
// All checks run before the first state write, and the executor snapshots
// state around every transaction, so a rejected operation leaves no trace.
var (
	// ErrNotOwner rejects an owner-restricted operation (unlist, reprice,
	// cancel, transfer, burn) from anyone but the seller/owner.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrInvalidPrice rejects a price or starting price that is not
	// strictly positive.
	ErrInvalidPrice = errors.New("price must be positive")

	// ErrInsufficientPayment rejects a fixed-price purchase whose payment
	// is below the listing price.
	ErrInsufficientPayment = errors.New("payment below listing price")

	// ErrBidTooLow rejects a bid that does not strictly exceed the current
	// bid. Equal bids are rejected: ties between concurrent bidders would
	// otherwise be ambiguous.
	ErrBidTooLow = errors.New("bid does not exceed current bid")

	// ErrSelfTrade rejects buying one's own listing or bidding on one's
	// own auction.
	ErrSelfTrade = errors.New("cannot trade with yourself")

	// ErrAuctionEnded rejects a bid at or after the auction's end time.
	ErrAuctionEnded = errors.New("auction has ended")

	// ErrAuctionNotEnded rejects a finalize before the auction's end time.
	ErrAuctionNotEnded = errors.New("auction has not ended")

	// ErrHasBids rejects cancelling an auction once a bid is recorded; a
	// committed bidder cannot have the asset pulled out from under them.
	ErrHasBids = errors.New("auction already has a bid")

	// ErrDurationOutOfRange rejects an auction duration outside the
	// configured bounds.
	ErrDurationOutOfRange = errors.New("auction duration out of range")

	// ErrDuplicateKey signals that an insert would overwrite a live
	// record. Unreachable while custody rules hold; treated as an
	// invariant violation, not a user error.
	ErrDuplicateKey = errors.New("record already exists")

	// ErrInsufficientBalance rejects a withdrawal (payment, bid, tx fee)
	// exceeding the account balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAssetHeld rejects transferring, burning, listing or auctioning an
	// asset that is currently under marketplace custody.
	ErrAssetHeld = errors.New("asset is under marketplace custody")
)
