// Package indexer maintains secondary indexes over committed chain events
// so clients can query assets by owner and listings/auctions by seller
// without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/events"
	"github.com/minseo/galleria/storage"
)

const (
	prefixOwnerAssets    = "idx:owner:asset:"
	prefixSellerListings = "idx:seller:listing:"
	prefixSellerAuctions = "idx:seller:auction:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventAssetMinted, idx.onAssetMinted)
	emitter.Subscribe(events.EventAssetTransfer, idx.onAssetMoved)
	emitter.Subscribe(events.EventAssetBurned, idx.onAssetBurned)
	emitter.Subscribe(events.EventAssetListed, idx.onAssetListed)
	emitter.Subscribe(events.EventListingSold, idx.onListingSold)
	emitter.Subscribe(events.EventListingUnlisted, idx.onListingClosed)
	emitter.Subscribe(events.EventAuctionCreated, idx.onAuctionCreated)
	emitter.Subscribe(events.EventAuctionFinalized, idx.onAuctionFinalized)
	emitter.Subscribe(events.EventAuctionCancelled, idx.onAuctionClosed)
	return idx
}

// GetAssetsByOwner returns all asset IDs owned by the given pubkey.
func (idx *Indexer) GetAssetsByOwner(owner string) ([]string, error) {
	return idx.getList(prefixOwnerAssets + owner)
}

// GetListingsBySeller returns the live listing IDs for a seller.
func (idx *Indexer) GetListingsBySeller(seller string) ([]string, error) {
	return idx.getList(prefixSellerListings + seller)
}

// GetAuctionsBySeller returns the live auction IDs for a seller.
func (idx *Indexer) GetAuctionsBySeller(seller string) ([]string, error) {
	return idx.getList(prefixSellerAuctions + seller)
}

// ---- event handlers ----

func (idx *Indexer) onAssetMinted(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if owner == "" || assetID == "" {
		return
	}
	_ = idx.addToList(prefixOwnerAssets+owner, assetID)
}

func (idx *Indexer) onAssetMoved(ev events.Event) {
	from, _ := ev.Data["from"].(string)
	to, _ := ev.Data["to"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if assetID == "" || from == "" || to == "" {
		return
	}
	if err := idx.removeFromList(prefixOwnerAssets+from, assetID); err != nil {
		return
	}
	_ = idx.addToList(prefixOwnerAssets+to, assetID)
}

func (idx *Indexer) onAssetBurned(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if owner == "" || assetID == "" {
		return
	}
	_ = idx.removeFromList(prefixOwnerAssets+owner, assetID)
}

func (idx *Indexer) onAssetListed(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	listingID, _ := ev.Data["listing_id"].(string)
	if seller == "" || listingID == "" {
		return
	}
	_ = idx.addToList(prefixSellerListings+seller, listingID)
}

// onListingSold closes the listing index entry and moves the asset from the
// seller to the buyer (a sale transfers ownership without an asset_transfer
// event).
func (idx *Indexer) onListingSold(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	buyer, _ := ev.Data["buyer"].(string)
	listingID, _ := ev.Data["listing_id"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if seller == "" || listingID == "" {
		return
	}
	_ = idx.removeFromList(prefixSellerListings+seller, listingID)
	if buyer != "" && assetID != "" {
		_ = idx.removeFromList(prefixOwnerAssets+seller, assetID)
		_ = idx.addToList(prefixOwnerAssets+buyer, assetID)
	}
}

func (idx *Indexer) onListingClosed(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	listingID, _ := ev.Data["listing_id"].(string)
	if seller == "" || listingID == "" {
		return
	}
	_ = idx.removeFromList(prefixSellerListings+seller, listingID)
}

func (idx *Indexer) onAuctionCreated(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	auctionID, _ := ev.Data["auction_id"].(string)
	if seller == "" || auctionID == "" {
		return
	}
	_ = idx.addToList(prefixSellerAuctions+seller, auctionID)
}

func (idx *Indexer) onAuctionFinalized(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	winner, _ := ev.Data["winner"].(string)
	auctionID, _ := ev.Data["auction_id"].(string)
	assetID, _ := ev.Data["asset_id"].(string)
	if seller == "" || auctionID == "" {
		return
	}
	_ = idx.removeFromList(prefixSellerAuctions+seller, auctionID)
	if winner != "" && assetID != "" {
		_ = idx.removeFromList(prefixOwnerAssets+seller, assetID)
		_ = idx.addToList(prefixOwnerAssets+winner, assetID)
	}
}

func (idx *Indexer) onAuctionClosed(ev events.Event) {
	seller, _ := ev.Data["seller"].(string)
	auctionID, _ := ev.Data["auction_id"].(string)
	if seller == "" || auctionID == "" {
		return
	}
	_ = idx.removeFromList(prefixSellerAuctions+seller, auctionID)
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key, value string) error {
	ids, _ := idx.getList(key)
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) removeFromList(key, value string) error {
	ids, _ := idx.getList(key)
	filtered := ids[:0]
	for _, id := range ids {
		if id != value {
			filtered = append(filtered, id)
		}
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
