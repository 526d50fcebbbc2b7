package subscription

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/core/events"
	"creatorpay/native/fees"
	"creatorpay/native/token"
)

var (
	errNilState   = errors.New("subscription engine: state not configured")
	errNilToken   = errors.New("subscription engine: token not configured")
	errNilAccess  = errors.New("subscription engine: access control not configured")
	errNilPayouts = errors.New("subscription engine: payouts not configured")
)

type engineState interface {
	SubscriptionGet(id [32]byte) (*Subscription, bool, error)
	SubscriptionPut(sub *Subscription) error
	SubscriptionIDs() ([][32]byte, error)
	SubscriptionsBySubscriber(addr [20]byte) ([][32]byte, error)
	SubscriptionsByCreator(addr [20]byte) ([][32]byte, error)
	NextSequence() (uint64, error)
	PlatformFeeRate() (uint32, error)
}

type authorizer interface {
	RequireAgent(caller [20]byte) error
	IsOwner(caller [20]byte) bool
}

type payouts interface {
	Credit(creator [20]byte, amount *big.Int) error
	AccruePlatformFee(amount *big.Int) error
}

// Engine runs the subscription state machine (nonexistent, active, inactive)
// and settles tips. Every charge credits the creator and the platform before
// funds are pulled from the payer.
type Engine struct {
	state   engineState
	access  authorizer
	payouts payouts
	token   token.Token
	custody [20]byte
	emitter events.Emitter
	nowFn   func() int64
}

func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetAccess(access authorizer) { e.access = access }

// SetPayouts configures where creator and platform cuts are booked.
func (e *Engine) SetPayouts(p payouts) { e.payouts = p }

// SetToken configures the token funds are pulled from and the custody account
// they land in.
func (e *Engine) SetToken(tok token.Token, custody [20]byte) {
	e.token = tok
	e.custody = custody
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
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

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.access == nil:
		return errNilAccess
	case e.payouts == nil:
		return errNilPayouts
	case e.token == nil:
		return errNilToken
	}
	return nil
}

// validateParties rejects the zero address and the custody account on either
// side of a charge. Custody pulling from itself moves nothing.
func (e *Engine) validateParties(payer, creator [20]byte) error {
	if isZeroAddress(payer) || isZeroAddress(creator) {
		return ledgererrors.ErrInvalidAddress
	}
	if payer == e.custody || creator == e.custody {
		return fmt.Errorf("%w: custody cannot take part in a charge", ledgererrors.ErrInvalidAddress)
	}
	return nil
}

// settle books the split of amount and then pulls amount from payer into
// custody. It is the shared pull/split/credit sequence for charges and tips.
func (e *Engine) settle(payer, creator [20]byte, amount *big.Int) (platformCut, creatorCut *big.Int, err error) {
	rate, err := e.state.PlatformFeeRate()
	if err != nil {
		return nil, nil, err
	}
	platformCut, creatorCut = fees.Split(amount, rate)
	if err := e.payouts.Credit(creator, creatorCut); err != nil {
		return nil, nil, err
	}
	if err := e.payouts.AccruePlatformFee(platformCut); err != nil {
		return nil, nil, err
	}
	if err := e.token.TransferFrom(e.custody, payer, e.custody, amount); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ledgererrors.ErrTransferFailed, err)
	}
	return platformCut, creatorCut, nil
}

// Create opens a subscription and takes the first payment. Agent only.
func (e *Engine) Create(caller, subscriber, creator [20]byte, amount *big.Int, interval uint64) (*Subscription, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.access.RequireAgent(caller); err != nil {
		return nil, err
	}
	if err := e.validateParties(subscriber, creator); err != nil {
		return nil, err
	}
	if err := fees.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if interval < MinInterval {
		return nil, fmt.Errorf("%w: %d seconds is below the %d minimum", ledgererrors.ErrInvalidInterval, interval, MinInterval)
	}
	if interval > MaxInterval {
		return nil, fmt.Errorf("%w: %d seconds is above the %d maximum", ledgererrors.ErrInvalidInterval, interval, MaxInterval)
	}
	now := e.now()
	seq, err := e.state.NextSequence()
	if err != nil {
		return nil, err
	}
	id := DeriveID(subscriber, creator, now, amount, seq)
	if _, exists, err := e.state.SubscriptionGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ledgererrors.ErrAlreadyExists
	}
	sub := &Subscription{
		ID:           id,
		Subscriber:   subscriber,
		Creator:      creator,
		Amount:       new(big.Int).Set(amount),
		Interval:     interval,
		NextDue:      now + int64(interval),
		Active:       true,
		TotalPaid:    new(big.Int).Set(amount),
		PaymentCount: 1,
		CreatedAt:    now,
	}
	if err := e.state.SubscriptionPut(sub); err != nil {
		return nil, err
	}
	platformCut, creatorCut, err := e.settle(subscriber, creator, amount)
	if err != nil {
		return nil, err
	}
	e.emitter.Emit(events.SubscriptionCreated{
		ID:         id,
		Subscriber: subscriber,
		Creator:    creator,
		Amount:     new(big.Int).Set(amount),
		Interval:   interval,
		NextDue:    sub.NextDue,
		Timestamp:  now,
	})
	e.emitPayment(sub, platformCut, creatorCut, now)
	return sub.Clone(), nil
}

// ProcessDuePayment takes the next charge once NextDue has passed. A call
// before then fails with ErrNotDue. Agent only.
func (e *Engine) ProcessDuePayment(caller [20]byte, id [32]byte) (*Subscription, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.access.RequireAgent(caller); err != nil {
		return nil, err
	}
	sub, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		return nil, ledgererrors.ErrNotActive
	}
	now := e.now()
	if now < sub.NextDue {
		return nil, fmt.Errorf("%w: next charge at %d", ledgererrors.ErrNotDue, sub.NextDue)
	}
	sub.NextDue += int64(sub.Interval)
	sub.PaymentCount++
	sub.TotalPaid = new(big.Int).Add(cloneBigInt(sub.TotalPaid), sub.Amount)
	if err := e.state.SubscriptionPut(sub); err != nil {
		return nil, err
	}
	platformCut, creatorCut, err := e.settle(sub.Subscriber, sub.Creator, sub.Amount)
	if err != nil {
		return nil, err
	}
	e.emitPayment(sub, platformCut, creatorCut, now)
	return sub.Clone(), nil
}

// Cancel deactivates a subscription for good. Only the subscriber or the
// Owner may cancel; nothing is refunded.
func (e *Engine) Cancel(caller [20]byte, id [32]byte) (*Subscription, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.access == nil {
		return nil, errNilAccess
	}
	sub, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if caller != sub.Subscriber && !e.access.IsOwner(caller) {
		return nil, ledgererrors.ErrUnauthorizedSubscriber
	}
	if !sub.Active {
		return nil, ledgererrors.ErrNotActive
	}
	now := e.now()
	sub.Active = false
	sub.CancelledAt = now
	if err := e.state.SubscriptionPut(sub); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.SubscriptionCancelled{
		ID:          sub.ID,
		Subscriber:  sub.Subscriber,
		Creator:     sub.Creator,
		CancelledBy: caller,
		Timestamp:   now,
	})
	return sub.Clone(), nil
}

// Tip settles a one-off payment from user to creator. Agent only.
func (e *Engine) Tip(caller, user, creator [20]byte, amount *big.Int, contentID string) (*TipReceipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.access.RequireAgent(caller); err != nil {
		return nil, err
	}
	if err := e.validateParties(user, creator); err != nil {
		return nil, err
	}
	if err := fees.ValidateAmount(amount); err != nil {
		return nil, err
	}
	platformCut, creatorCut, err := e.settle(user, creator, amount)
	if err != nil {
		return nil, err
	}
	receipt := &TipReceipt{
		User:        user,
		Creator:     creator,
		Amount:      new(big.Int).Set(amount),
		PlatformCut: platformCut,
		CreatorCut:  creatorCut,
		ContentID:   strings.TrimSpace(contentID),
		SentAt:      e.now(),
	}
	e.emitter.Emit(events.TipSent{
		User:        user,
		Creator:     creator,
		Amount:      new(big.Int).Set(amount),
		PlatformCut: new(big.Int).Set(platformCut),
		CreatorCut:  new(big.Int).Set(creatorCut),
		ContentID:   receipt.ContentID,
		Timestamp:   receipt.SentAt,
	})
	return receipt, nil
}

func (e *Engine) emitPayment(sub *Subscription, platformCut, creatorCut *big.Int, now int64) {
	e.emitter.Emit(events.SubscriptionPaymentProcessed{
		ID:           sub.ID,
		Subscriber:   sub.Subscriber,
		Creator:      sub.Creator,
		Amount:       new(big.Int).Set(sub.Amount),
		PlatformCut:  new(big.Int).Set(platformCut),
		CreatorCut:   new(big.Int).Set(creatorCut),
		PaymentCount: sub.PaymentCount,
		NextDue:      sub.NextDue,
		Timestamp:    now,
	})
}

func (e *Engine) load(id [32]byte) (*Subscription, error) {
	sub, ok, err := e.state.SubscriptionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || sub == nil {
		return nil, ledgererrors.ErrNotFound
	}
	return sub, nil
}

// Get returns the subscription or ErrNotFound.
func (e *Engine) Get(id [32]byte) (*Subscription, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.load(id)
}

// IsPaymentDue reports whether the subscription is active and past NextDue.
func (e *Engine) IsPaymentDue(id [32]byte) (bool, error) {
	sub, err := e.Get(id)
	if err != nil {
		return false, err
	}
	return sub.DueAt(e.now()), nil
}

// BySubscriber lists every subscription opened for addr, oldest first.
func (e *Engine) BySubscriber(addr [20]byte) ([]*Subscription, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.SubscriptionsBySubscriber(addr)
	if err != nil {
		return nil, err
	}
	return e.resolve(ids, nil, 0)
}

// ByCreator lists every subscription paying addr, oldest first.
func (e *Engine) ByCreator(addr [20]byte) ([]*Subscription, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.SubscriptionsByCreator(addr)
	if err != nil {
		return nil, err
	}
	return e.resolve(ids, nil, 0)
}

// Due lists active subscriptions whose next charge has come, up to limit
// entries. A non-positive limit returns all of them.
func (e *Engine) Due(limit int) ([]*Subscription, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.SubscriptionIDs()
	if err != nil {
		return nil, err
	}
	now := e.now()
	return e.resolve(ids, func(sub *Subscription) bool { return sub.DueAt(now) }, limit)
}

func (e *Engine) resolve(ids [][32]byte, keep func(*Subscription) bool, limit int) ([]*Subscription, error) {
	out := make([]*Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := e.load(id)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(sub) {
			continue
		}
		out = append(out, sub)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func isZeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}
