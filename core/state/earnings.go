package state

import (
	"fmt"
	"math/big"

	"creatorpay/native/creator"
)

func earningsKey(addr [20]byte) []byte { return prefixedKey("creator/earnings/", addr[:]) }

type storedEarnings struct {
	Creator        [20]byte
	Pending        *big.Int
	TotalEarned    *big.Int
	TotalWithdrawn *big.Int
	LastCredit     uint64
	LastWithdrawal uint64
}

func (m *Manager) CreatorEarningsPut(earnings *creator.Earnings) error {
	if earnings == nil {
		return fmt.Errorf("creator: nil earnings")
	}
	return m.KVPut(earningsKey(earnings.Creator), &storedEarnings{
		Creator:        earnings.Creator,
		Pending:        nonNil(earnings.Pending),
		TotalEarned:    nonNil(earnings.TotalEarned),
		TotalWithdrawn: nonNil(earnings.TotalWithdrawn),
		LastCredit:     fromUnix(earnings.LastCredit),
		LastWithdrawal: fromUnix(earnings.LastWithdrawal),
	})
}

func (m *Manager) CreatorEarningsGet(addr [20]byte) (*creator.Earnings, bool, error) {
	stored := new(storedEarnings)
	ok, err := m.KVGet(earningsKey(addr), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &creator.Earnings{
		Creator:        stored.Creator,
		Pending:        nonNil(stored.Pending),
		TotalEarned:    nonNil(stored.TotalEarned),
		TotalWithdrawn: nonNil(stored.TotalWithdrawn),
		LastCredit:     toUnix(stored.LastCredit),
		LastWithdrawal: toUnix(stored.LastWithdrawal),
	}, true, nil
}
