package ledger

import (
	"math/big"

	nativecommon "creatorpay/native/common"
	"creatorpay/native/creator"
	"creatorpay/native/escrow"
	"creatorpay/native/subscription"
)

// Views read committed and uncommitted state without the reentrancy guard, so
// token callbacks may call them mid-operation.

func (l *Ledger) GetSubscription(id [32]byte) (*subscription.Subscription, error) {
	return l.subscriptions.Get(id)
}

func (l *Ledger) IsPaymentDue(id [32]byte) (bool, error) {
	return l.subscriptions.IsPaymentDue(id)
}

func (l *Ledger) SubscriptionsBySubscriber(addr [20]byte) ([]*subscription.Subscription, error) {
	return l.subscriptions.BySubscriber(addr)
}

func (l *Ledger) SubscriptionsByCreator(addr [20]byte) ([]*subscription.Subscription, error) {
	return l.subscriptions.ByCreator(addr)
}

// DueSubscriptions lists up to limit subscriptions the Agent should charge now.
func (l *Ledger) DueSubscriptions(limit int) ([]*subscription.Subscription, error) {
	return l.subscriptions.Due(limit)
}

func (l *Ledger) GetEscrow(id [32]byte) (*escrow.Escrow, error) {
	return l.escrows.Get(id)
}

func (l *Ledger) EscrowsByPayer(addr [20]byte) ([]*escrow.Escrow, error) {
	return l.escrows.ByPayer(addr)
}

func (l *Ledger) EscrowsByCreator(addr [20]byte) ([]*escrow.Escrow, error) {
	return l.escrows.ByCreator(addr)
}

// CreatorBalance returns the withdrawable balance of creator.
func (l *Ledger) CreatorBalance(addr [20]byte) (*big.Int, error) {
	return l.payouts.Balance(addr)
}

func (l *Ledger) CreatorEarnings(addr [20]byte) (*creator.Earnings, error) {
	return l.payouts.Earnings(addr)
}

func (l *Ledger) PlatformFees() (*big.Int, error) {
	return l.payouts.PlatformFees()
}

func (l *Ledger) PlatformFeeRate() (uint32, error) {
	return l.state.PlatformFeeRate()
}

func (l *Ledger) Owner() ([20]byte, error) { return l.access.Owner() }

func (l *Ledger) Agent() ([20]byte, error) { return l.access.Agent() }

func (l *Ledger) Paused() bool { return l.state.IsPaused(nativecommon.ModuleLedger) }

// TokenBalance returns addr's balance in the settlement token.
func (l *Ledger) TokenBalance(addr [20]byte) (*big.Int, error) {
	return l.token.BalanceOf(addr)
}

// CustodyAllowance returns how much custody may still pull from owner.
func (l *Ledger) CustodyAllowance(owner [20]byte) (*big.Int, error) {
	if l.native == nil {
		return nil, errNoCustody
	}
	return l.native.Allowance(owner, l.custody)
}
