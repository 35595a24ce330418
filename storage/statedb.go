package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All prefix constants must be declared
// via this function.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated by registerPrefix() below. ComputeRoot()
// iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixAsset   = registerPrefix("asset:")
	prefixListing = registerPrefix("list:")
	prefixAuction = registerPrefix("aucn:")
	prefixEscrow  = registerPrefix("escr:")
	prefixBook    = registerPrefix("book:")
)

const (
	keyMarketBook  = "book:market"
	keyAuctionBook = "book:auction"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with an in-memory write
// buffer, snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

func (s *StateDB) getJSON(key string, out any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Accounts ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Assets ----

func (s *StateDB) GetAsset(id string) (*core.Asset, error) {
	var asset core.Asset
	if err := s.getJSON(prefixAsset+id, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

func (s *StateDB) SetAsset(asset *core.Asset) error {
	return s.setJSON(prefixAsset+asset.ID, asset)
}

func (s *StateDB) DeleteAsset(id string) error {
	s.del(prefixAsset + id)
	return nil
}

// ---- Listings ----

func (s *StateDB) GetListing(id string) (*core.Listing, error) {
	var l core.Listing
	if err := s.getJSON(prefixListing+id, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *StateDB) SetListing(l *core.Listing) error {
	return s.setJSON(prefixListing+l.ID, l)
}

func (s *StateDB) DeleteListing(id string) error {
	s.del(prefixListing + id)
	return nil
}

// ---- Auctions ----

func (s *StateDB) GetAuction(id string) (*core.Auction, error) {
	var a core.Auction
	if err := s.getJSON(prefixAuction+id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *StateDB) SetAuction(a *core.Auction) error {
	return s.setJSON(prefixAuction+a.ID, a)
}

func (s *StateDB) DeleteAuction(id string) error {
	s.del(prefixAuction + id)
	return nil
}

// ---- Escrow ledger ----

// GetEscrow returns the held balance for bidder; a missing entry reads as 0.
func (s *StateDB) GetEscrow(bidder string) (uint64, error) {
	data, err := s.get(prefixEscrow + bidder)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	amount, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt escrow entry for %s: %w", bidder, err)
	}
	return amount, nil
}

// SetEscrow writes the held balance for bidder. A zero amount deletes the
// entry so "no entry" and "zero balance" stay indistinguishable.
func (s *StateDB) SetEscrow(bidder string, amount uint64) error {
	if amount == 0 {
		s.del(prefixEscrow + bidder)
		return nil
	}
	s.set(prefixEscrow+bidder, []byte(strconv.FormatUint(amount, 10)))
	return nil
}

// ---- Registry books ----

func (s *StateDB) GetMarketBook() (*core.MarketBook, error) {
	var b core.MarketBook
	if err := s.getJSON(keyMarketBook, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *StateDB) SetMarketBook(b *core.MarketBook) error {
	return s.setJSON(keyMarketBook, b)
}

func (s *StateDB) GetAuctionBook() (*core.AuctionBook, error) {
	var b core.AuctionBook
	if err := s.getJSON(keyAuctionBook, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *StateDB) SetAuctionBook(b *core.AuctionBook) error {
	return s.setJSON(keyAuctionBook, b)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges all persisted entries (scanned by the registered prefixes) with
// the current write buffer, then hashes the sorted key-value pairs using
// length-prefix encoding. It does not flush or modify state, so it is safe
// to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}

	// Apply uncommitted changes from this block.
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it. Call ComputeRoot() before signing the block,
// then Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
