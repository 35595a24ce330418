package indexer_test

import (
	"testing"

	"github.com/minseo/galleria/events"
	"github.com/minseo/galleria/indexer"
	"github.com/minseo/galleria/internal/testutil"
)

func TestIndexerTracksAssetOwnership(t *testing.T) {
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)

	emitter.Emit(events.Event{Type: events.EventAssetMinted, Data: map[string]any{
		"asset_id": "a1", "owner": "alice",
	}})
	emitter.Emit(events.Event{Type: events.EventAssetTransfer, Data: map[string]any{
		"asset_id": "a1", "from": "alice", "to": "bob",
	}})

	aliceAssets, err := idx.GetAssetsByOwner("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(aliceAssets) != 0 {
		t.Errorf("alice should own nothing, got %v", aliceAssets)
	}
	bobAssets, _ := idx.GetAssetsByOwner("bob")
	if len(bobAssets) != 1 || bobAssets[0] != "a1" {
		t.Errorf("bob should own a1, got %v", bobAssets)
	}
}

func TestIndexerListingLifecycle(t *testing.T) {
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)

	emitter.Emit(events.Event{Type: events.EventAssetMinted, Data: map[string]any{
		"asset_id": "a1", "owner": "seller",
	}})
	emitter.Emit(events.Event{Type: events.EventAssetListed, Data: map[string]any{
		"listing_id": "l1", "asset_id": "a1", "seller": "seller",
	}})

	listings, _ := idx.GetListingsBySeller("seller")
	if len(listings) != 1 || listings[0] != "l1" {
		t.Fatalf("live listing: got %v", listings)
	}

	// A sale closes the listing and moves the asset to the buyer.
	emitter.Emit(events.Event{Type: events.EventListingSold, Data: map[string]any{
		"listing_id": "l1", "asset_id": "a1", "seller": "seller", "buyer": "buyer",
	}})

	listings, _ = idx.GetListingsBySeller("seller")
	if len(listings) != 0 {
		t.Errorf("listing after sale: got %v", listings)
	}
	buyerAssets, _ := idx.GetAssetsByOwner("buyer")
	if len(buyerAssets) != 1 || buyerAssets[0] != "a1" {
		t.Errorf("buyer assets after sale: got %v", buyerAssets)
	}
	sellerAssets, _ := idx.GetAssetsByOwner("seller")
	if len(sellerAssets) != 0 {
		t.Errorf("seller assets after sale: got %v", sellerAssets)
	}
}

func TestIndexerAuctionLifecycle(t *testing.T) {
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)

	emitter.Emit(events.Event{Type: events.EventAssetMinted, Data: map[string]any{
		"asset_id": "a1", "owner": "seller",
	}})
	emitter.Emit(events.Event{Type: events.EventAuctionCreated, Data: map[string]any{
		"auction_id": "auc1", "asset_id": "a1", "seller": "seller",
	}})

	auctions, _ := idx.GetAuctionsBySeller("seller")
	if len(auctions) != 1 || auctions[0] != "auc1" {
		t.Fatalf("live auction: got %v", auctions)
	}

	emitter.Emit(events.Event{Type: events.EventAuctionFinalized, Data: map[string]any{
		"auction_id": "auc1", "asset_id": "a1", "seller": "seller", "winner": "winner",
	}})

	auctions, _ = idx.GetAuctionsBySeller("seller")
	if len(auctions) != 0 {
		t.Errorf("auction after settle: got %v", auctions)
	}
	winnerAssets, _ := idx.GetAssetsByOwner("winner")
	if len(winnerAssets) != 1 || winnerAssets[0] != "a1" {
		t.Errorf("winner assets: got %v", winnerAssets)
	}
}

// A no-bid settle carries an empty winner; the asset must stay with the
// seller.
func TestIndexerNoBidFinalize(t *testing.T) {
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)

	emitter.Emit(events.Event{Type: events.EventAssetMinted, Data: map[string]any{
		"asset_id": "a1", "owner": "seller",
	}})
	emitter.Emit(events.Event{Type: events.EventAuctionCreated, Data: map[string]any{
		"auction_id": "auc1", "asset_id": "a1", "seller": "seller",
	}})
	emitter.Emit(events.Event{Type: events.EventAuctionFinalized, Data: map[string]any{
		"auction_id": "auc1", "asset_id": "a1", "seller": "seller", "winner": "",
	}})

	sellerAssets, _ := idx.GetAssetsByOwner("seller")
	if len(sellerAssets) != 1 {
		t.Errorf("seller should keep the asset, got %v", sellerAssets)
	}
	auctions, _ := idx.GetAuctionsBySeller("seller")
	if len(auctions) != 0 {
		t.Errorf("auction entry should be closed, got %v", auctions)
	}
}
