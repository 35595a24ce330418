// Package economy handles native currency transfers between accounts.
package economy

import (
	"encoding/json"
	"fmt"

	"github.com/minseo/galleria/core"
	"github.com/minseo/galleria/events"
	"github.com/minseo/galleria/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("transfer amount must be > 0")
	}
	if p.To == "" {
		return fmt.Errorf("transfer to address required")
	}

	coin, err := ctx.Withdraw(ctx.Tx.From, p.Amount)
	if err != nil {
		return err
	}
	if err := ctx.Deposit(p.To, coin); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Tx.From,
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}
