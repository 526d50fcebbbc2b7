package creator

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/core/events"
	"creatorpay/native/fees"
	"creatorpay/native/token"
)

var (
	errNilState  = errors.New("creator engine: state not configured")
	errNilToken  = errors.New("creator engine: token not configured")
	errNilAccess = errors.New("creator engine: access control not configured")
	errUnderflow = errors.New("creator engine: accounting underflow")
)

type engineState interface {
	CreatorEarningsGet(creator [20]byte) (*Earnings, bool, error)
	CreatorEarningsPut(earnings *Earnings) error
	CreatorTotal() (*big.Int, error)
	SetCreatorTotal(amount *big.Int) error
	PlatformFees() (*big.Int, error)
	SetPlatformFees(amount *big.Int) error
}

type ownerCheck interface {
	RequireOwner(caller [20]byte) error
}

// Engine keeps creator balances and the platform fee accumulator, and pays
// both out of the ledger's custody account.
type Engine struct {
	state   engineState
	token   token.Token
	access  ownerCheck
	custody [20]byte
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a creator engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken configures the token and the custody account payouts come from.
func (e *Engine) SetToken(tok token.Token, custody [20]byte) {
	e.token = tok
	e.custody = custody
}

// SetAccess configures the Owner check for platform fee withdrawals.
func (e *Engine) SetAccess(access ownerCheck) { e.access = access }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) load(creator [20]byte) (*Earnings, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	earnings, ok, err := e.state.CreatorEarningsGet(creator)
	if err != nil {
		return nil, err
	}
	if !ok || earnings == nil {
		return newEarnings(creator), nil
	}
	return earnings, nil
}

func (e *Engine) adjustTotal(delta *big.Int) error {
	total, err := e.state.CreatorTotal()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(total, delta)
	if next.Sign() < 0 {
		return errUnderflow
	}
	return e.state.SetCreatorTotal(next)
}

// Credit adds a net settlement to the creator's balance.
func (e *Engine) Credit(creator [20]byte, amount *big.Int) error {
	if creator == ([20]byte{}) {
		return ledgererrors.ErrInvalidAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ledgererrors.ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	earnings, err := e.load(creator)
	if err != nil {
		return err
	}
	earnings.Pending = new(big.Int).Add(newBigInt(earnings.Pending), amount)
	earnings.TotalEarned = new(big.Int).Add(newBigInt(earnings.TotalEarned), amount)
	earnings.LastCredit = e.now()
	if err := e.state.CreatorEarningsPut(earnings); err != nil {
		return err
	}
	return e.adjustTotal(amount)
}

// AccruePlatformFee adds a platform cut to the accumulator.
func (e *Engine) AccruePlatformFee(amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ledgererrors.ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	current, err := e.state.PlatformFees()
	if err != nil {
		return err
	}
	return e.state.SetPlatformFees(new(big.Int).Add(current, amount))
}

// Withdraw pays the caller's whole balance out of custody. The balance is
// zeroed before the token is called.
func (e *Engine) Withdraw(caller [20]byte) (*big.Int, error) {
	if e.token == nil {
		return nil, errNilToken
	}
	earnings, err := e.load(caller)
	if err != nil {
		return nil, err
	}
	amount := newBigInt(earnings.Pending)
	if amount.Sign() == 0 {
		return nil, ledgererrors.ErrNoBalance
	}
	now := e.now()
	earnings.Pending = big.NewInt(0)
	earnings.TotalWithdrawn = new(big.Int).Add(newBigInt(earnings.TotalWithdrawn), amount)
	earnings.LastWithdrawal = now
	if err := e.state.CreatorEarningsPut(earnings); err != nil {
		return nil, err
	}
	if err := e.adjustTotal(new(big.Int).Neg(amount)); err != nil {
		return nil, err
	}
	if err := e.token.Transfer(e.custody, caller, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererrors.ErrTransferFailed, err)
	}
	e.emitter.Emit(events.CreatorWithdrawal{Creator: caller, Amount: new(big.Int).Set(amount), Timestamp: now})
	return amount, nil
}

// WithdrawPlatformFees pays amount from the accumulator to the Owner.
func (e *Engine) WithdrawPlatformFees(caller [20]byte, amount *big.Int) (*big.Int, error) {
	if e.access == nil {
		return nil, errNilAccess
	}
	if err := e.access.RequireOwner(caller); err != nil {
		return nil, err
	}
	if err := fees.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if e.token == nil {
		return nil, errNilToken
	}
	if e.state == nil {
		return nil, errNilState
	}
	current, err := e.state.PlatformFees()
	if err != nil {
		return nil, err
	}
	if amount.Cmp(current) > 0 {
		return nil, fmt.Errorf("%w: requested %s, accrued %s", ledgererrors.ErrInsufficientFunds, amount, current)
	}
	remaining := new(big.Int).Sub(current, amount)
	if err := e.state.SetPlatformFees(remaining); err != nil {
		return nil, err
	}
	if err := e.token.Transfer(e.custody, caller, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererrors.ErrTransferFailed, err)
	}
	e.emitter.Emit(events.PlatformFeesWithdrawn{
		To:        caller,
		Amount:    new(big.Int).Set(amount),
		Remaining: new(big.Int).Set(remaining),
		Timestamp: e.now(),
	})
	return remaining, nil
}

// Balance returns the creator's withdrawable balance.
func (e *Engine) Balance(creator [20]byte) (*big.Int, error) {
	earnings, err := e.load(creator)
	if err != nil {
		return nil, err
	}
	return newBigInt(earnings.Pending), nil
}

// Earnings returns the full balance sheet for creator.
func (e *Engine) Earnings(creator [20]byte) (*Earnings, error) {
	earnings, err := e.load(creator)
	if err != nil {
		return nil, err
	}
	return earnings.Clone(), nil
}

// PlatformFees returns the undistributed platform cut.
func (e *Engine) PlatformFees() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.PlatformFees()
}

// TotalBalances returns the sum of all creator balances.
func (e *Engine) TotalBalances() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.CreatorTotal()
}
