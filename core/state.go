package core

// Account holds a participant's currency balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Asset is a unique minted item. Metadata is fixed at mint; only Owner and
// HeldBy change afterwards. HeldBy carries the listing or auction ID while
// the marketplace has custody, and is empty otherwise; an asset with a
// non-empty HeldBy cannot be transferred, burned, listed or auctioned.
type Asset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Creator     string `json:"creator"` // pubkey hex of the minter
	Owner       string `json:"owner"`   // pubkey hex
	MintedAt    int64  `json:"minted_at"`
	HeldBy      string `json:"held_by,omitempty"` // listing/auction ID while in custody
}

// Listing is a fixed-price sale offer. It exists exactly as long as the
// marketplace holds custody of the asset on the seller's behalf.
type Listing struct {
	ID        string `json:"id"`
	AssetID   string `json:"asset_id"`
	Seller    string `json:"seller"` // pubkey hex
	Price     uint64 `json:"price"`  // smallest currency unit, > 0
	CreatedAt int64  `json:"created_at"`
}

// Auction is a timed English auction. CurrentBid equals StartingPrice and
// HighestBidder is empty until the first bid; after that CurrentBid only
// increases and HighestBidder is always set. There is no stored "ended"
// flag; expiry is derived by comparing a supplied timestamp to EndTime.
type Auction struct {
	ID            string `json:"id"`
	AssetID       string `json:"asset_id"`
	Seller        string `json:"seller"` // pubkey hex
	StartingPrice uint64 `json:"starting_price"`
	CurrentBid    uint64 `json:"current_bid"`
	HighestBidder string `json:"highest_bidder,omitempty"` // empty until first bid
	EndTime       int64  `json:"end_time"`
	CreatedAt     int64  `json:"created_at"`
}

// HasBid reports whether at least one bid has been recorded.
func (a *Auction) HasBid() bool {
	return a.HighestBidder != ""
}

// Ended reports whether the auction is past its end time at now.
func (a *Auction) Ended(now int64) bool {
	return now >= a.EndTime
}

// MarketBook holds the fixed-price registry's governance parameters and
// aggregate counters. Counters are reporting-only and monotonically
// non-decreasing; correctness decisions never read them.
type MarketBook struct {
	FeeRateBps  uint64 `json:"fee_rate_bps"` // basis points, 10000 = 100%
	Admin       string `json:"admin"`        // pubkey hex allowed to change the rate / collect fees
	FeePool     uint64 `json:"fee_pool"`     // accumulated, uncollected fees
	TotalVolume uint64 `json:"total_volume"`
	TotalSales  uint64 `json:"total_sales"`
}

// FeeBasis is the denominator for fee rates: 10000 basis points = 100%.
const FeeBasis = 10_000

// AuctionBook holds the auction registry's duration bounds and counters.
// Durations are nanoseconds, matching block timestamps.
type AuctionBook struct {
	MinDuration    int64  `json:"min_duration"`
	MaxDuration    int64  `json:"max_duration"`
	TotalCount     uint64 `json:"total_count"`
	CompletedCount uint64 `json:"completed_count"`
}

// State is the full chain state. Implementations must be snapshot-able so
// the executor can roll back failed transactions, keeping every operation
// all-or-nothing.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Assets
	GetAsset(id string) (*Asset, error)
	SetAsset(asset *Asset) error
	DeleteAsset(id string) error

	// Fixed-price listings
	GetListing(id string) (*Listing, error)
	SetListing(l *Listing) error
	DeleteListing(id string) error

	// Auctions
	GetAuction(id string) (*Auction, error)
	SetAuction(a *Auction) error
	DeleteAuction(id string) error

	// Escrow ledger: held bid value per bidder address. A missing entry
	// reads as zero; SetEscrow with zero must delete the entry so that
	// "no entry" and "zero balance" stay indistinguishable.
	GetEscrow(bidder string) (uint64, error)
	SetEscrow(bidder string, amount uint64) error

	// Registry books
	GetMarketBook() (*MarketBook, error)
	SetMarketBook(b *MarketBook) error
	GetAuctionBook() (*AuctionBook, error)
	SetAuctionBook(b *AuctionBook) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root over the current
	// write buffer without flushing. Call before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
