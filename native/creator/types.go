package creator

import "math/big"

// Earnings is the per-creator balance sheet. Pending is the creator balance
// that Withdraw pays out; the totals are audit counters.
type Earnings struct {
	Creator        [20]byte `json:"creator"`
	Pending        *big.Int `json:"pending"`
	TotalEarned    *big.Int `json:"totalEarned"`
	TotalWithdrawn *big.Int `json:"totalWithdrawn"`
	LastCredit     int64    `json:"lastCredit"`
	LastWithdrawal int64    `json:"lastWithdrawal"`
}

// Clone returns a deep copy of the earnings record.
func (e *Earnings) Clone() *Earnings {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Pending = newBigInt(e.Pending)
	clone.TotalEarned = newBigInt(e.TotalEarned)
	clone.TotalWithdrawn = newBigInt(e.TotalWithdrawn)
	return &clone
}

func newEarnings(creator [20]byte) *Earnings {
	return &Earnings{
		Creator:        creator,
		Pending:        big.NewInt(0),
		TotalEarned:    big.NewInt(0),
		TotalWithdrawn: big.NewInt(0),
	}
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
