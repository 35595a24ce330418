package core

import "fmt"

// Coin is an in-flight lump of currency detached from any account. Handlers
// withdraw an account balance into a Coin, carve it up with Split, and must
// route every piece back into an account with a deposit (or drop a provably
// zero coin). Coins only exist inside a single transaction; they are never
// persisted.
type Coin struct {
	amount uint64
}

// NewCoin creates a coin holding amount.
func NewCoin(amount uint64) Coin {
	return Coin{amount: amount}
}

// ZeroCoin returns a coin holding nothing.
func ZeroCoin() Coin {
	return Coin{}
}

// Value reports the amount held.
func (c Coin) Value() uint64 {
	return c.amount
}

// IsZero reports whether the coin holds nothing.
func (c Coin) IsZero() bool {
	return c.amount == 0
}

// Split carves amount out of c, returning the carved coin and the remainder.
// The two results always sum to the original value; an over-split is an
// error, never a negative balance.
func (c Coin) Split(amount uint64) (Coin, Coin, error) {
	if amount > c.amount {
		return Coin{}, Coin{}, fmt.Errorf("split %d from coin of %d: %w", amount, c.amount, ErrInsufficientBalance)
	}
	return Coin{amount: amount}, Coin{amount: c.amount - amount}, nil
}

// Merge combines two coins into one.
func Merge(a, b Coin) Coin {
	return Coin{amount: a.amount + b.amount}
}
