package vm

import (
	"fmt"

	"github.com/minseo/galleria/core"
)

// Value-transfer helpers shared by the marketplace modules. All in-flight
// payment value moves through core.Coin: Withdraw detaches it from an
// account, Deposit routes it back. A handler that withdraws a coin must
// deposit every split piece (or drop a provably zero one); the executor's
// snapshot/revert covers any path that errors out in between.

// Withdraw moves amount out of addr's balance into a Coin.
func (ctx *Context) Withdraw(addr string, amount uint64) (core.Coin, error) {
	acc, err := ctx.State.GetAccount(addr)
	if err != nil {
		return core.Coin{}, fmt.Errorf("account %s: %w", addr, err)
	}
	if acc.Balance < amount {
		return core.Coin{}, fmt.Errorf("withdraw %d (have %d): %w", amount, acc.Balance, core.ErrInsufficientBalance)
	}
	acc.Balance -= amount
	if err := ctx.State.SetAccount(acc); err != nil {
		return core.Coin{}, err
	}
	return core.NewCoin(amount), nil
}

// Deposit adds coin's value to addr's balance. A zero coin is destroyed
// without touching the account.
func (ctx *Context) Deposit(addr string, coin core.Coin) error {
	if coin.IsZero() {
		return nil
	}
	acc, err := ctx.State.GetAccount(addr)
	if err != nil {
		return fmt.Errorf("account %s: %w", addr, err)
	}
	acc.Balance += coin.Value()
	return ctx.State.SetAccount(acc)
}
