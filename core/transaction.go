package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/minseo/galleria/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer      TxType = "transfer"
	TxMintAsset     TxType = "mint_asset"
	TxTransferAsset TxType = "transfer_asset"
	TxBurnAsset     TxType = "burn_asset"

	TxListAsset      TxType = "list_asset"
	TxBuyListing     TxType = "buy_listing"
	TxUnlistAsset    TxType = "unlist_asset"
	TxRepriceListing TxType = "reprice_listing"
	TxSetFeeRate     TxType = "set_fee_rate"
	TxCollectFees    TxType = "collect_fees"

	TxCreateAuction   TxType = "create_auction"
	TxPlaceBid        TxType = "place_bid"
	TxFinalizeAuction TxType = "finalize_auction"
	TxCancelAuction   TxType = "cancel_auction"
)

// Transaction is the atomic unit of work on the chain. From holds the
// sender's full hex-encoded ed25519 public key; it is the caller identity
// every handler trusts, never a spoofable payload field. Signature covers
// all fields except itself.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves native currency between accounts.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// MintAssetPayload mints a new unique asset. Recipient defaults to the
// minter when empty.
type MintAssetPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Recipient   string `json:"recipient,omitempty"` // pubkey hex
}

// TransferAssetPayload moves an asset to a new owner.
type TransferAssetPayload struct {
	AssetID string `json:"asset_id"`
	To      string `json:"to"` // pubkey hex
}

// BurnAssetPayload permanently destroys an asset.
type BurnAssetPayload struct {
	AssetID string `json:"asset_id"`
}

// ListAssetPayload puts an asset up for fixed-price sale.
type ListAssetPayload struct {
	AssetID string `json:"asset_id"`
	Price   uint64 `json:"price"`
}

// BuyListingPayload purchases a listing. Payment is the amount the buyer
// commits; anything above the price is returned as change.
type BuyListingPayload struct {
	ListingID string `json:"listing_id"`
	Payment   uint64 `json:"payment"`
}

// UnlistAssetPayload withdraws a listing, returning custody to the seller.
type UnlistAssetPayload struct {
	ListingID string `json:"listing_id"`
}

// RepriceListingPayload changes a listing's price in place.
type RepriceListingPayload struct {
	ListingID string `json:"listing_id"`
	NewPrice  uint64 `json:"new_price"`
}

// SetFeeRatePayload changes the marketplace fee rate (admin only).
type SetFeeRatePayload struct {
	NewRateBps uint64 `json:"new_rate_bps"`
}

// CollectFeesPayload moves the accumulated fee pool to the admin account
// (admin only). It has no parameters; the type exists for symmetry.
type CollectFeesPayload struct{}

// CreateAuctionPayload opens a timed auction. Duration is nanoseconds.
type CreateAuctionPayload struct {
	AssetID       string `json:"asset_id"`
	StartingPrice uint64 `json:"starting_price"`
	Duration      int64  `json:"duration"`
}

// PlaceBidPayload bids on an open auction.
type PlaceBidPayload struct {
	AuctionID string `json:"auction_id"`
	Amount    uint64 `json:"amount"`
}

// FinalizeAuctionPayload settles an ended auction. Anyone may send it.
type FinalizeAuctionPayload struct {
	AuctionID string `json:"auction_id"`
}

// CancelAuctionPayload cancels a bid-free auction (seller only).
type CancelAuctionPayload struct {
	AuctionID string `json:"auction_id"`
}
