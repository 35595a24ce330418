// Package asset implements minting, transfer, and burn of unique assets.
// The marketplace modules treat it as the custody-tracking supplier of the
// items they sell: an asset whose HeldBy marker is set belongs to a live
// listing or auction and refuses every direct mutation.
package asset

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
	vm.Register(core.TxMintAsset, handleMint)
	vm.Register(core.TxTransferAsset, handleTransfer)
	vm.Register(core.TxBurnAsset, handleBurn)
}

func handleMint(ctx *vm.Context, payload json.RawMessage) error {
	var p core.MintAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode mint_asset payload: %w", err)
	}
	if p.Name == "" {
		return errors.New("asset name required")
	}

	owner := p.Recipient
	if owner == "" {
		owner = ctx.Tx.From
	} else {
		if _, err := crypto.PubKeyFromHex(owner); err != nil {
			return fmt.Errorf("invalid recipient pubkey: %w", err)
		}
	}

	// Deterministic asset ID: hash of tx ID + name.
	assetID := crypto.Hash([]byte(ctx.Tx.ID + ":asset:" + p.Name))
	if _, err := ctx.State.GetAsset(assetID); err == nil {
		return fmt.Errorf("asset %q: %w", assetID, core.ErrDuplicateKey)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check asset %q: %w", assetID, err)
	}

	a := &core.Asset{
		ID:          assetID,
		Name:        p.Name,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Creator:     ctx.Tx.From,
		Owner:       owner,
		MintedAt:    ctx.Now(),
	}
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}

	ctx.Emit(events.EventAssetMinted, map[string]any{
		"asset_id": assetID,
		"name":     p.Name,
		"creator":  ctx.Tx.From,
		"owner":    owner,
	})
	return nil
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_asset payload: %w", err)
	}
	if p.To == "" {
		return errors.New("to address required")
	}
	if _, err := crypto.PubKeyFromHex(p.To); err != nil {
		return fmt.Errorf("invalid to pubkey: %w", err)
	}

	a, err := ctx.State.GetAsset(p.AssetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", p.AssetID, err)
	}
	if a.Owner != ctx.Tx.From {
		return fmt.Errorf("transfer asset %q: %w", p.AssetID, core.ErrNotOwner)
	}
	if a.HeldBy != "" {
		return fmt.Errorf("transfer asset %q: %w", p.AssetID, core.ErrAssetHeld)
	}

	a.Owner = p.To
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}

	ctx.Emit(events.EventAssetTransfer, map[string]any{
		"asset_id": p.AssetID,
		"from":     ctx.Tx.From,
		"to":       p.To,
	})
	return nil
}

func handleBurn(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BurnAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode burn_asset payload: %w", err)
	}

	a, err := ctx.State.GetAsset(p.AssetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", p.AssetID, err)
	}
	if a.Owner != ctx.Tx.From {
		return fmt.Errorf("burn asset %q: %w", p.AssetID, core.ErrNotOwner)
	}
	if a.HeldBy != "" {
		return fmt.Errorf("burn asset %q: %w", p.AssetID, core.ErrAssetHeld)
	}

	if err := ctx.State.DeleteAsset(p.AssetID); err != nil {
		return err
	}

	ctx.Emit(events.EventAssetBurned, map[string]any{
		"asset_id": p.AssetID,
		"owner":    a.Owner,
	})
	return nil
}
