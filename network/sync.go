package network

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/minseo/galleria/core"
)

// syncBatchSize is how many blocks are requested per round trip.
const syncBatchSize = 50

// GetBlocksRequest asks a peer for blocks starting at FromHeight.
type GetBlocksRequest struct {
	FromHeight int64 `json:"from_height"`
	Limit      int   `json:"limit"`
}

// BlocksResponse carries a batch of blocks.
type BlocksResponse struct {
	Blocks []*core.Block `json:"blocks"`
}

// BlockValidator validates a block before it is accepted into the chain.
type BlockValidator interface {
	ValidateBlock(block *core.Block) error
}

// BlockExecutor applies all transactions in a block against the state.
type BlockExecutor interface {
	ExecuteBlock(block *core.Block) error
}

// Syncer handles block synchronisation between nodes.
type Syncer struct {
	node      *Node
	bc        *core.Blockchain
	validator BlockValidator
	exec      BlockExecutor // may be nil; if set, state is also required
	state     core.State    // may be nil; used with exec to commit after each block
}

// NewSyncer creates a Syncer that requests missing blocks from peers.
// Pass non-nil exec and state so that synced blocks are fully replayed into
// the local registries; without them the node has history but no account,
// asset, listing, or auction state.
func NewSyncer(node *Node, bc *core.Blockchain, validator BlockValidator, exec BlockExecutor, state core.State) *Syncer {
	s := &Syncer{node: node, bc: bc, validator: validator, exec: exec, state: state}
	node.Handle(MsgHello, s.handleHello)
	node.Handle(MsgGetBlocks, s.handleGetBlocks)
	node.Handle(MsgBlocks, s.handleBlocks)
	node.Handle(MsgBlock, s.handleBlock)
	return s
}

// handleHello verifies the peer is on our chain and triggers an initial
// block sync.
func (s *Syncer) handleHello(peer *Peer, msg Message) {
	var hello Hello
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		log.Printf("[sync] bad hello from %s: %v", peer.ID, err)
		peer.Close()
		return
	}
	if hello.ChainID != "" && hello.ChainID != s.node.chainID {
		log.Printf("[sync] peer %s is on chain %q, want %q; disconnecting", peer.ID, hello.ChainID, s.node.chainID)
		peer.Close()
		return
	}
	if err := s.RequestBlocks(peer, s.bc.Height()+1); err != nil {
		log.Printf("[sync] failed to request blocks from %s: %v", peer.ID, err)
	}
}

// SyncWithPeer requests missing blocks from the given peer.
// Call this after AddPeer to initiate an outbound sync.
func (s *Syncer) SyncWithPeer(peer *Peer) {
	if err := s.RequestBlocks(peer, s.bc.Height()+1); err != nil {
		log.Printf("[sync] failed to request blocks from %s: %v", peer.ID, err)
	}
}

// RequestBlocks asks peer for blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight int64) error {
	req, err := json.Marshal(GetBlocksRequest{FromHeight: fromHeight, Limit: syncBatchSize})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = syncBatchSize
	}
	blocks := make([]*core.Block, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+int64(req.Limit); h++ {
		b, err := s.bc.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	data, err := json.Marshal(BlocksResponse{Blocks: blocks})
	if err != nil {
		log.Printf("[sync] marshal blocks response: %v", err)
		return
	}
	if err := peer.Send(Message{Type: MsgBlocks, Payload: data}); err != nil {
		log.Printf("[sync] send blocks to %s: %v", peer.ID, err)
	}
}

func (s *Syncer) handleBlocks(peer *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	for _, b := range resp.Blocks {
		if err := s.applyBlock(b); err != nil {
			// Blocks are sequential; once one fails the rest cannot link.
			log.Printf("[sync] block %d from %s rejected: %v", b.Header.Height, peer.ID, err)
			return
		}
	}

	// A full batch means the peer likely has more blocks; keep pulling.
	if len(resp.Blocks) >= syncBatchSize {
		if err := s.RequestBlocks(peer, s.bc.Height()+1); err != nil {
			log.Printf("[sync] follow-up request to %s failed: %v", peer.ID, err)
		}
	}
}

// handleBlock processes a single gossiped block. A block too far ahead means
// we missed some; fall back to a batch pull from the sender.
func (s *Syncer) handleBlock(peer *Peer, msg Message) {
	var b core.Block
	if err := json.Unmarshal(msg.Payload, &b); err != nil {
		return
	}
	if b.Header.Height <= s.bc.Height() {
		return // already have it
	}
	if b.Header.Height > s.bc.Height()+1 {
		if err := s.RequestBlocks(peer, s.bc.Height()+1); err != nil {
			log.Printf("[sync] catch-up request to %s failed: %v", peer.ID, err)
		}
		return
	}
	if err := s.applyBlock(&b); err != nil {
		log.Printf("[sync] gossiped block %d from %s rejected: %v", b.Header.Height, peer.ID, err)
	}
}

// applyBlock validates a block, replays it against the state, checks the
// sealed state root, and commits. Any failure leaves both the chain and the
// state untouched.
func (s *Syncer) applyBlock(b *core.Block) error {
	if s.validator != nil {
		if err := s.validator.ValidateBlock(b); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
	}

	// Take a snapshot so we can revert if replay or AddBlock fails.
	var snapID int
	if s.exec != nil && s.state != nil {
		var err error
		snapID, err = s.state.Snapshot()
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		if err := s.exec.ExecuteBlock(b); err != nil {
			if revErr := s.state.RevertToSnapshot(snapID); revErr != nil {
				log.Fatalf("[sync] FATAL: block %d revert failed after exec error: %v (exec: %v)", b.Header.Height, revErr, err)
			}
			return fmt.Errorf("execute: %w", err)
		}

		// The replayed registries must reproduce the sealed root exactly.
		computedRoot := s.state.ComputeRoot()
		if b.Header.StateRoot != "" && computedRoot != b.Header.StateRoot {
			if revErr := s.state.RevertToSnapshot(snapID); revErr != nil {
				log.Fatalf("[sync] FATAL: block %d revert failed after state root mismatch: %v", b.Header.Height, revErr)
			}
			return fmt.Errorf("state root mismatch: computed %s want %s", computedRoot, b.Header.StateRoot)
		}
	}

	if err := s.bc.AddBlock(b); err != nil {
		if s.exec != nil && s.state != nil {
			if revErr := s.state.RevertToSnapshot(snapID); revErr != nil {
				log.Fatalf("[sync] FATAL: block %d revert failed after add error: %v (add: %v)", b.Header.Height, revErr, err)
			}
		}
		return fmt.Errorf("add: %w", err)
	}

	if s.exec != nil && s.state != nil {
		if err := s.state.Commit(); err != nil {
			log.Fatalf("[sync] FATAL: block %d state commit failed: %v", b.Header.Height, err)
		}
	}
	return nil
}
