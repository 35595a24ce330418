// Package events provides a synchronous pub/sub broker for chain lifecycle
// notifications. The indexer and the RPC event feed subscribe to it.
package events

import (
	"log"
	"sync"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit   EventType = "block_commit"
	EventTxExecuted    EventType = "tx_executed"
	EventTokenTransfer EventType = "token_transfer"

	EventAssetMinted   EventType = "asset_minted"
	EventAssetTransfer EventType = "asset_transfer"
	EventAssetBurned   EventType = "asset_burned"

	EventAssetListed     EventType = "asset_listed"
	EventListingSold     EventType = "listing_sold"
	EventListingUnlisted EventType = "listing_unlisted"
	EventListingRepriced EventType = "listing_repriced"
	EventFeeRateChanged  EventType = "fee_rate_changed"
	EventFeesCollected   EventType = "fees_collected"

	EventAuctionCreated   EventType = "auction_created"
	EventBidPlaced        EventType = "bid_placed"
	EventBidRefunded      EventType = "bid_refunded"
	EventAuctionFinalized EventType = "auction_finalized"
	EventAuctionCancelled EventType = "auction_cancelled"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type. The RPC event feed uses
// this to stream the full firehose to websocket clients.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all matching subscribers synchronously. Each handler
// is guarded by panic recovery so a misbehaving subscriber cannot crash the
// node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}
