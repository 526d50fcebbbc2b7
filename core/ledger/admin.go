package ledger

import (
	"context"
	"math/big"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/core/events"
	nativecommon "creatorpay/native/common"
	"creatorpay/native/fees"
)

// SetAgent replaces the Agent. Owner only.
func (l *Ledger) SetAgent(ctx context.Context, caller, next [20]byte) error {
	return l.execute(ctx, "set_agent", true, func() error {
		return l.access.SetAgent(caller, next)
	})
}

// TransferOwnership hands the Owner role to next. Owner only.
func (l *Ledger) TransferOwnership(ctx context.Context, caller, next [20]byte) error {
	return l.execute(ctx, "transfer_ownership", true, func() error {
		return l.access.TransferOwnership(caller, next)
	})
}

// SetPlatformFeeRate changes the platform cut applied to every later charge
// and escrow release. Owner only; capped at fees.MaxPlatformFeeBps.
func (l *Ledger) SetPlatformFeeRate(ctx context.Context, caller [20]byte, bps uint32) error {
	return l.execute(ctx, "set_platform_fee_rate", true, func() error {
		if err := l.access.RequireOwner(caller); err != nil {
			return err
		}
		if err := fees.ValidateRate(bps); err != nil {
			return err
		}
		previous, err := l.state.PlatformFeeRate()
		if err != nil {
			return err
		}
		if err := l.state.SetPlatformFeeRate(bps); err != nil {
			return err
		}
		l.pending.Emit(events.FeeRateChanged{
			OldBps:    previous,
			NewBps:    bps,
			ChangedBy: caller,
			Timestamp: l.nowFn(),
		})
		return nil
	})
}

// Pause stops every non-administrative entry point. Pausing an already paused
// ledger is a no-op.
func (l *Ledger) Pause(ctx context.Context, caller [20]byte) error {
	return l.execute(ctx, "pause", true, func() error {
		return l.setPaused(caller, true)
	})
}

// Unpause resumes normal operation.
func (l *Ledger) Unpause(ctx context.Context, caller [20]byte) error {
	return l.execute(ctx, "unpause", true, func() error {
		return l.setPaused(caller, false)
	})
}

func (l *Ledger) setPaused(caller [20]byte, paused bool) error {
	if err := l.access.RequireOwner(caller); err != nil {
		return err
	}
	if l.state.IsPaused(nativecommon.ModuleLedger) == paused {
		return nil
	}
	if err := l.state.SetPaused(nativecommon.ModuleLedger, paused); err != nil {
		return err
	}
	l.pending.Emit(events.PauseToggled{Paused: paused, By: caller, Timestamp: l.nowFn()})
	return nil
}

// Approve sets how much the custody account may pull from owner in the
// native settlement token.
func (l *Ledger) Approve(ctx context.Context, owner [20]byte, amount *big.Int) error {
	return l.execute(ctx, "approve", false, func() error {
		if l.native == nil {
			return errNoCustody
		}
		if owner == ([20]byte{}) || owner == l.custody {
			return ledgererrors.ErrInvalidAddress
		}
		if amount == nil || amount.Sign() < 0 {
			return ledgererrors.ErrInvalidAmount
		}
		if amount.Sign() > 0 {
			if err := fees.ValidateAmount(amount); err != nil {
				return err
			}
		}
		return l.native.Approve(owner, l.custody, amount)
	})
}
