package access

import (
	"errors"
	"fmt"
	"time"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/core/events"
)

const (
	RoleOwner = "owner"
	RoleAgent = "agent"
)

var errNilState = errors.New("access engine: state not configured")

type engineState interface {
	RoleHolder(role string) ([20]byte, bool, error)
	SetRoleHolder(role string, addr [20]byte) error
}

// Engine guards privileged entry points with the single-holder Owner and Agent
// roles kept in ledger state.
type Engine struct {
	state   engineState
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

// SetCustody records the ledger's custody account, which may never hold a
// role.
func (e *Engine) SetCustody(custody [20]byte) { e.custody = custody }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Initialize seeds both roles at genesis. It refuses to overwrite an existing
// owner.
func (e *Engine) Initialize(owner, agent [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if isZeroAddress(owner) || isZeroAddress(agent) || owner == agent {
		return ledgererrors.ErrInvalidAddress
	}
	if e.isCustody(owner) || e.isCustody(agent) {
		return ledgererrors.ErrInvalidAddress
	}
	if _, ok, err := e.state.RoleHolder(RoleOwner); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("access: owner already initialised: %w", ledgererrors.ErrAlreadyExists)
	}
	if err := e.state.SetRoleHolder(RoleOwner, owner); err != nil {
		return err
	}
	return e.state.SetRoleHolder(RoleAgent, agent)
}

// Owner returns the current Owner identity, or the zero address before
// initialisation.
func (e *Engine) Owner() ([20]byte, error) { return e.holder(RoleOwner) }

// Agent returns the current Agent identity.
func (e *Engine) Agent() ([20]byte, error) { return e.holder(RoleAgent) }

func (e *Engine) holder(role string) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	addr, _, err := e.state.RoleHolder(role)
	return addr, err
}

// IsOwner reports whether caller currently holds the Owner role. Read errors
// count as "no".
func (e *Engine) IsOwner(caller [20]byte) bool {
	owner, err := e.Owner()
	return err == nil && !isZeroAddress(owner) && owner == caller
}

func (e *Engine) RequireOwner(caller [20]byte) error {
	owner, err := e.Owner()
	if err != nil {
		return err
	}
	if isZeroAddress(owner) || owner != caller {
		return ledgererrors.ErrUnauthorizedOwner
	}
	return nil
}

func (e *Engine) RequireAgent(caller [20]byte) error {
	agent, err := e.Agent()
	if err != nil {
		return err
	}
	if isZeroAddress(agent) || agent != caller {
		return ledgererrors.ErrUnauthorizedAgent
	}
	return nil
}

// SetAgent rotates the automation identity. Owner only.
func (e *Engine) SetAgent(caller, next [20]byte) error {
	return e.rotate(caller, RoleAgent, next, events.TypeAgentChanged)
}

// TransferOwnership hands the Owner role to next. Owner only.
func (e *Engine) TransferOwnership(caller, next [20]byte) error {
	return e.rotate(caller, RoleOwner, next, events.TypeOwnerTransferred)
}

func (e *Engine) rotate(caller [20]byte, role string, next [20]byte, kind string) error {
	if err := e.RequireOwner(caller); err != nil {
		return err
	}
	if isZeroAddress(next) || e.isCustody(next) {
		return ledgererrors.ErrInvalidAddress
	}
	other := RoleAgent
	if role == RoleAgent {
		other = RoleOwner
	}
	counterpart, err := e.holder(other)
	if err != nil {
		return err
	}
	if next == counterpart {
		return fmt.Errorf("access: the %s cannot also be %s: %w", other, role, ledgererrors.ErrInvalidAddress)
	}
	previous, err := e.holder(role)
	if err != nil {
		return err
	}
	if err := e.state.SetRoleHolder(role, next); err != nil {
		return err
	}
	e.emitter.Emit(events.RoleChanged{Kind: kind, Old: previous, New: next, Timestamp: e.nowFn()})
	return nil
}

func (e *Engine) isCustody(addr [20]byte) bool {
	return !isZeroAddress(e.custody) && addr == e.custody
}

func isZeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}
