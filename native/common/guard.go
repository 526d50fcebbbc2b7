package common

import (
	"fmt"
	"sync/atomic"

	ledgererrors "creatorpay/core/errors"
)

// ModuleLedger names the whole-ledger pause switch.
const ModuleLedger = "ledger"

type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrPaused when the module has been stopped by the Owner.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: module %s", ledgererrors.ErrPaused, module)
	}
	return nil
}

// ReentrancyGuard is the whole-ledger "currently executing" flag. Enter fails
// with ErrReentrant while a call is in flight; the caller releases the flag
// with the returned function, normally via defer.
type ReentrancyGuard struct {
	busy atomic.Bool
}

func (g *ReentrancyGuard) Enter() (func(), error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ledgererrors.ErrReentrant
	}
	return func() { g.busy.Store(false) }, nil
}

// Active reports whether a guarded call is executing.
func (g *ReentrancyGuard) Active() bool {
	return g.busy.Load()
}
