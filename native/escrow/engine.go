package escrow

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
	errNilState   = errors.New("escrow engine: state not configured")
	errNilToken   = errors.New("escrow engine: token not configured")
	errNilAccess  = errors.New("escrow engine: access control not configured")
	errNilPayouts = errors.New("escrow engine: payouts not configured")
	errHoldings   = errors.New("escrow engine: holdings underflow")
)

type engineState interface {
	EscrowGet(id [32]byte) (*Escrow, bool, error)
	EscrowPut(esc *Escrow) error
	EscrowsByPayer(addr [20]byte) ([][32]byte, error)
	EscrowsByCreator(addr [20]byte) ([][32]byte, error)
	EscrowHoldings() (*big.Int, error)
	SetEscrowHoldings(amount *big.Int) error
	NextSequence() (uint64, error)
	PlatformFeeRate() (uint32, error)
}

type ownerView interface {
	IsOwner(caller [20]byte) bool
}

type payouts interface {
	Credit(creator [20]byte, amount *big.Int) error
	AccruePlatformFee(amount *big.Int) error
}

// Engine holds gross deposits per content item. Fees are split when the
// deposit is released, at the rate in effect at that moment.
type Engine struct {
	state   engineState
	access  ownerView
	payouts payouts
	token   token.Token
	custody [20]byte
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetAccess(access ownerView) { e.access = access }

func (e *Engine) SetPayouts(p payouts) { e.payouts = p }

// SetToken configures the token deposits are pulled from and the custody
// account holding them.
func (e *Engine) SetToken(tok token.Token, custody [20]byte) {
	e.token = tok
	e.custody = custody
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

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadEscrow(id [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || esc == nil {
		return nil, ledgererrors.ErrNotFound
	}
	return esc, nil
}

func (e *Engine) adjustHoldings(delta *big.Int) error {
	held, err := e.state.EscrowHoldings()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(held, delta)
	if next.Sign() < 0 {
		return errHoldings
	}
	return e.state.SetEscrowHoldings(next)
}

// Create records a deposit from payer and pulls the gross amount into
// custody. Anyone may open an escrow for themselves.
func (e *Engine) Create(payer, creator [20]byte, amount *big.Int, contentID string) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.token == nil {
		return nil, errNilToken
	}
	if payer == ([20]byte{}) || creator == ([20]byte{}) {
		return nil, ledgererrors.ErrInvalidAddress
	}
	if payer == e.custody || creator == e.custody {
		return nil, fmt.Errorf("%w: custody cannot fund or receive an escrow", ledgererrors.ErrInvalidAddress)
	}
	if err := fees.ValidateAmount(amount); err != nil {
		return nil, err
	}
	normalized, err := NormalizeContentID(contentID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	seq, err := e.state.NextSequence()
	if err != nil {
		return nil, err
	}
	id := DeriveID(payer, creator, normalized, now, seq)
	if _, exists, err := e.state.EscrowGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ledgererrors.ErrAlreadyExists
	}
	esc := &Escrow{
		ID:        id,
		Payer:     payer,
		Creator:   creator,
		Amount:    new(big.Int).Set(amount),
		ContentID: normalized,
		CreatedAt: now,
		Status:    EscrowFunded,
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	if err := e.adjustHoldings(amount); err != nil {
		return nil, err
	}
	if err := e.token.TransferFrom(e.custody, payer, e.custody, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ledgererrors.ErrTransferFailed, err)
	}
	e.emitter.Emit(events.EscrowCreated{
		ID:        id,
		Payer:     payer,
		Creator:   creator,
		Amount:    new(big.Int).Set(amount),
		ContentID: normalized,
		Timestamp: now,
	})
	return esc.Clone(), nil
}

// Release pays the deposit to the creator net of the platform fee. Only the
// payer or the Owner may release, and only once.
func (e *Engine) Release(caller [20]byte, id [32]byte) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.access == nil {
		return nil, errNilAccess
	}
	if e.payouts == nil {
		return nil, errNilPayouts
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if caller != esc.Payer && !e.access.IsOwner(caller) {
		return nil, ledgererrors.ErrUnauthorizedPayer
	}
	if esc.Released() {
		return nil, ledgererrors.ErrAlreadyReleased
	}
	rate, err := e.state.PlatformFeeRate()
	if err != nil {
		return nil, err
	}
	platformCut, creatorCut := fees.Split(esc.Amount, rate)
	now := e.now()
	esc.Status = EscrowReleased
	esc.ReleasedAt = now
	esc.ReleasedBy = caller
	esc.FeeBps = rate
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	if err := e.adjustHoldings(new(big.Int).Neg(esc.Amount)); err != nil {
		return nil, err
	}
	if err := e.payouts.Credit(esc.Creator, creatorCut); err != nil {
		return nil, err
	}
	if err := e.payouts.AccruePlatformFee(platformCut); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.EscrowReleased{
		ID:          esc.ID,
		Payer:       esc.Payer,
		Creator:     esc.Creator,
		ReleasedBy:  caller,
		Amount:      new(big.Int).Set(esc.Amount),
		PlatformCut: platformCut,
		CreatorCut:  creatorCut,
		FeeBps:      rate,
		Timestamp:   now,
	})
	return esc.Clone(), nil
}

// Get returns the escrow or ErrNotFound.
func (e *Engine) Get(id [32]byte) (*Escrow, error) {
	return e.loadEscrow(id)
}

// ByPayer lists deposits made by addr, oldest first.
func (e *Engine) ByPayer(addr [20]byte) ([]*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.EscrowsByPayer(addr)
	if err != nil {
		return nil, err
	}
	return e.resolve(ids)
}

// ByCreator lists deposits held for addr, oldest first.
func (e *Engine) ByCreator(addr [20]byte) ([]*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.EscrowsByCreator(addr)
	if err != nil {
		return nil, err
	}
	return e.resolve(ids)
}

// Holdings returns the sum of unreleased deposits.
func (e *Engine) Holdings() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.EscrowHoldings()
}

func (e *Engine) resolve(ids [][32]byte) ([]*Escrow, error) {
	out := make([]*Escrow, 0, len(ids))
	for _, id := range ids {
		esc, err := e.loadEscrow(id)
		if err != nil {
			return nil, err
		}
		out = append(out, esc)
	}
	return out, nil
}
