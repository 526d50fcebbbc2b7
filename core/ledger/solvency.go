package ledger

import (
	"fmt"
	"math/big"
)

// Solvency compares what custody holds with what the ledger owes.
type Solvency struct {
	CustodyBalance *big.Int
	CreatorTotal   *big.Int
	PlatformFees   *big.Int
	EscrowHoldings *big.Int
	Liabilities    *big.Int
	// Surplus is CustodyBalance minus Liabilities. Tokens sent straight to the
	// custody account show up here; a negative surplus is a breach.
	Surplus *big.Int
	Solvent bool
}

// CheckSolvency reports whether custody covers every creator balance, the fee
// accumulator and open escrows.
func (l *Ledger) CheckSolvency() (*Solvency, error) {
	creators, err := l.state.CreatorTotal()
	if err != nil {
		return nil, fmt.Errorf("ledger: creator total: %w", err)
	}
	platformFees, err := l.state.PlatformFees()
	if err != nil {
		return nil, fmt.Errorf("ledger: platform fees: %w", err)
	}
	held, err := l.state.EscrowHoldings()
	if err != nil {
		return nil, fmt.Errorf("ledger: escrow holdings: %w", err)
	}
	balance, err := l.token.BalanceOf(l.custody)
	if err != nil {
		return nil, fmt.Errorf("ledger: custody balance: %w", err)
	}
	liabilities := new(big.Int).Add(creators, platformFees)
	liabilities.Add(liabilities, held)
	report := &Solvency{
		CustodyBalance: balance,
		CreatorTotal:   creators,
		PlatformFees:   platformFees,
		EscrowHoldings: held,
		Liabilities:    liabilities,
		Surplus:        new(big.Int).Sub(balance, liabilities),
	}
	report.Solvent = report.Surplus.Sign() >= 0
	if !report.Solvent {
		l.metrics.RecordSolvencyBreach()
		l.logger.Error("custody does not cover liabilities",
			"custody", balance.String(),
			"liabilities", liabilities.String())
	}
	return report, nil
}
