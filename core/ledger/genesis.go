package ledger

import (
	"fmt"
	"math/big"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/core/state"
	"creatorpay/native/fees"
)

// TokenSpec describes the settlement token.
type TokenSpec struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// Allocation seeds a token balance, and optionally an allowance toward the
// custody account, at genesis.
type Allocation struct {
	Address   [20]byte
	Balance   *big.Int
	Allowance *big.Int
}

// Genesis is the initial ledger configuration.
type Genesis struct {
	Owner          [20]byte
	Agent          [20]byte
	Custody        [20]byte
	Token          TokenSpec
	PlatformFeeBps uint32
	Allocations    []Allocation
}

func (g *Genesis) validate() error {
	if g.Custody == ([20]byte{}) {
		return fmt.Errorf("custody: %w", ledgererrors.ErrInvalidAddress)
	}
	if g.Owner == g.Agent {
		return fmt.Errorf("owner and agent must be distinct: %w", ledgererrors.ErrInvalidAddress)
	}
	if g.Custody == g.Owner || g.Custody == g.Agent {
		return fmt.Errorf("custody must be distinct from the owner and agent: %w", ledgererrors.ErrInvalidAddress)
	}
	if err := fees.ValidateRate(g.PlatformFeeBps); err != nil {
		return err
	}
	for i, alloc := range g.Allocations {
		if alloc.Address == ([20]byte{}) {
			return fmt.Errorf("allocation %d: %w", i, ledgererrors.ErrInvalidAddress)
		}
		if alloc.Address == g.Custody {
			return fmt.Errorf("allocation %d: custody cannot hold an opening balance: %w", i, ledgererrors.ErrInvalidAddress)
		}
		for _, v := range []*big.Int{alloc.Balance, alloc.Allowance} {
			if v != nil && v.Sign() < 0 {
				return fmt.Errorf("allocation %d: %w", i, ledgererrors.ErrInvalidAmount)
			}
		}
	}
	return nil
}

func (l *Ledger) applyGenesis(g *Genesis) error {
	if err := g.validate(); err != nil {
		return err
	}
	if err := l.state.RegisterToken(g.Token.Symbol, g.Token.Name, g.Token.Decimals); err != nil {
		return err
	}
	if err := l.state.SetCustody(g.Custody, g.Token.Symbol); err != nil {
		return err
	}
	if err := l.access.Initialize(g.Owner, g.Agent); err != nil {
		return err
	}
	if err := l.state.SetPlatformFeeRate(g.PlatformFeeBps); err != nil {
		return err
	}
	for _, alloc := range g.Allocations {
		addr := alloc.Address
		if alloc.Balance != nil {
			if err := l.state.SetBalance(addr[:], g.Token.Symbol, alloc.Balance); err != nil {
				return err
			}
		}
		if alloc.Allowance != nil {
			if err := l.state.SetAllowance(addr, g.Custody, g.Token.Symbol, alloc.Allowance); err != nil {
				return err
			}
		}
	}
	return l.state.SetStateVersion(state.StateVersion)
}
