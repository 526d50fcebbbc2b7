package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrUnauthorized = stderrors.New("ledger: unauthorized")

	ErrUnauthorizedOwner      = fmt.Errorf("%w: caller is not the owner", ErrUnauthorized)
	ErrUnauthorizedAgent      = fmt.Errorf("%w: caller is not the agent", ErrUnauthorized)
	ErrUnauthorizedSubscriber = fmt.Errorf("%w: caller is neither subscriber nor owner", ErrUnauthorized)
	ErrUnauthorizedPayer      = fmt.Errorf("%w: caller is neither payer nor owner", ErrUnauthorized)

	ErrInvalidAddress   = stderrors.New("ledger: invalid address")
	ErrInvalidAmount    = stderrors.New("ledger: invalid amount")
	ErrInvalidInterval  = stderrors.New("ledger: invalid interval")
	ErrInvalidFeeRate   = stderrors.New("ledger: invalid fee rate")
	ErrInvalidContentID = stderrors.New("ledger: invalid content id")

	ErrAlreadyExists   = stderrors.New("ledger: already exists")
	ErrNotFound        = stderrors.New("ledger: not found")
	ErrNotActive       = stderrors.New("ledger: subscription not active")
	ErrNotDue          = stderrors.New("ledger: payment not due")
	ErrAlreadyReleased = stderrors.New("ledger: escrow already released")

	ErrTransferFailed    = stderrors.New("ledger: token transfer failed")
	ErrNoBalance         = stderrors.New("ledger: no balance to withdraw")
	ErrInsufficientFunds = stderrors.New("ledger: insufficient platform fees")

	ErrReentrant = stderrors.New("ledger: reentrant call")
	ErrPaused    = stderrors.New("ledger: paused")
)

