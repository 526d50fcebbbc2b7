package token

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: invalid amount")
)

// Token is the fungible-token ledger the payment engines pull funds from and
// pay creators out of. The ledger's custody address is the caller of
// Transfer and the spender of TransferFrom.
type Token interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}

// Store is the persistence the native token needs. core/state.Manager
// satisfies it.
type Store interface {
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	Allowance(owner, spender [20]byte, symbol string) (*big.Int, error)
	SetAllowance(owner, spender [20]byte, symbol string, amount *big.Int) error
}

// Native is a token whose balances live in the ledger's own state trie, so a
// rolled back ledger call also rolls back every token movement it made.
type Native struct {
	store  Store
	symbol string
}

func NewNative(store Store, symbol string) *Native {
	return &Native{store: store, symbol: symbol}
}

// Symbol returns the registered token symbol.
func (n *Native) Symbol() string { return n.symbol }

func (n *Native) BalanceOf(addr [20]byte) (*big.Int, error) {
	return n.store.Balance(addr[:], n.symbol)
}

func (n *Native) Transfer(from, to [20]byte, amount *big.Int) error {
	return n.move(from, to, amount)
}

// TransferFrom moves funds on behalf of from, consuming the allowance granted
// to spender.
func (n *Native) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := n.store.Allowance(from, spender, n.symbol)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := n.move(from, to, amount); err != nil {
		return err
	}
	return n.store.SetAllowance(from, spender, n.symbol, new(big.Int).Sub(allowance, amount))
}

// Approve sets the amount spender may pull from owner.
func (n *Native) Approve(owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return n.store.SetAllowance(owner, spender, n.symbol, amount)
}

// Allowance reports the remaining amount spender may pull from owner.
func (n *Native) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return n.store.Allowance(owner, spender, n.symbol)
}

func (n *Native) move(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBal, err := n.store.Balance(from[:], n.symbol)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientBalance, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := n.store.Balance(to[:], n.symbol)
	if err != nil {
		return err
	}
	if err := n.store.SetBalance(from[:], n.symbol, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return n.store.SetBalance(to[:], n.symbol, new(big.Int).Add(toBal, amount))
}
