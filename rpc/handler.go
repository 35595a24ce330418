package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/indexer"
)

// TxBroadcaster gossips an accepted transaction to peers.
type TxBroadcaster interface {
	BroadcastTx(tx *core.Transaction)
}

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
	net     TxBroadcaster
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID}
}

// SetBroadcaster wires the P2P node so transactions accepted over RPC are
// gossiped to peers, not just held in the local mempool.
func (h *Handler) SetBroadcaster(b TxBroadcaster) {
	h.net = b
}

// Dispatch routes an RPC request to the correct method. State reads return
// copies of the stored records, so callers can never alias live registry
// state.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getAsset":
		return h.byID(req, func(id string) (any, error) { return h.state.GetAsset(id) })

	case "getListing":
		return h.byID(req, func(id string) (any, error) { return h.state.GetListing(id) })

	case "getAuction":
		return h.getAuction(req)

	case "getEscrow":
		return h.getEscrow(req)

	case "getMarketBook":
		return h.noParams(req, func() (any, error) { return h.state.GetMarketBook() })

	case "getAuctionBook":
		return h.noParams(req, func() (any, error) { return h.state.GetAuctionBook() })

	case "getAssetsByOwner":
		return h.byAddress(req, "owner", h.indexer.GetAssetsByOwner)

	case "getListingsBySeller":
		return h.byAddress(req, "seller", h.indexer.GetListingsBySeller)

	case "getAuctionsBySeller":
		return h.byAddress(req, "seller", h.indexer.GetAuctionsBySeller)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

// getAuction returns the auction record plus a derived active flag so web
// clients never have to compare timestamps themselves.
func (h *Handler) getAuction(req Request) Response {
	var params struct {
		ID  string `json:"id"`
		Now *int64 `json:"now,omitempty"` // defaults to the tip timestamp
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	auc, err := h.state.GetAuction(params.ID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	now := int64(0)
	if params.Now != nil {
		now = *params.Now
	} else if tip := h.bc.Tip(); tip != nil {
		now = tip.Header.Timestamp
	}
	return okResponse(req.ID, map[string]any{
		"auction": auc,
		"active":  !auc.Ended(now),
	})
}

func (h *Handler) getEscrow(req Request) Response {
	var params struct {
		Bidder string `json:"bidder"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Bidder == "" {
		return errResponse(req.ID, CodeInvalidParams, "bidder is required")
	}
	held, err := h.state.GetEscrow(params.Bidder)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"bidder": params.Bidder, "held": held})
}

func (h *Handler) byID(req Request, get func(id string) (any, error)) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	v, err := get(params.ID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, v)
}

func (h *Handler) byAddress(req Request, field string, get func(addr string) ([]string, error)) Response {
	var params map[string]string
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	addr := params[field]
	if addr == "" {
		return errResponse(req.ID, CodeInvalidParams, field+" is required")
	}
	ids, err := get(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) noParams(req Request, get func() (any, error)) Response {
	v, err := get()
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, v)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if h.net != nil {
		h.net.BroadcastTx(&tx)
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
