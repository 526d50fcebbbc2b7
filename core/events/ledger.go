package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"creatorpay/core/types"
	"creatorpay/crypto"
)

const (
	TypeSubscriptionCreated          = "subscription.created"
	TypeSubscriptionPaymentProcessed = "subscription.payment_processed"
	TypeSubscriptionCancelled        = "subscription.cancelled"
	TypeTipSent                      = "tip.sent"
	TypeEscrowCreated                = "escrow.created"
	TypeEscrowReleased               = "escrow.released"
	TypeCreatorWithdrawal            = "creator.withdrawal"
	TypePlatformFeesWithdrawn        = "platform.fees_withdrawn"
	TypeFeeRateChanged               = "ledger.fee_rate.changed"
	TypeAgentChanged                 = "ledger.agent.changed"
	TypeOwnerTransferred             = "ledger.owner.transferred"
	TypeLedgerPaused                 = "ledger.paused"
	TypeLedgerUnpaused               = "ledger.unpaused"
)

// SubscriptionCreated is emitted when the Agent opens a recurring agreement.
type SubscriptionCreated struct {
	ID         [32]byte
	Subscriber [20]byte
	Creator    [20]byte
	Amount     *big.Int
	Interval   uint64
	NextDue    int64
	Timestamp  int64
}

func (SubscriptionCreated) EventType() string { return TypeSubscriptionCreated }

func (e SubscriptionCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeSubscriptionCreated,
		Attributes: map[string]string{
			"id":         hex.EncodeToString(e.ID[:]),
			"subscriber": crypto.FormatAddress(e.Subscriber),
			"creator":    crypto.FormatAddress(e.Creator),
			"amount":     formatAmount(e.Amount),
			"interval":   strconv.FormatUint(e.Interval, 10),
			"nextDue":    intToString(e.NextDue),
			"timestamp":  intToString(e.Timestamp),
		},
	}
}

// SubscriptionPaymentProcessed records a settled charge, including the first
// one taken at creation.
type SubscriptionPaymentProcessed struct {
	ID           [32]byte
	Subscriber   [20]byte
	Creator      [20]byte
	Amount       *big.Int
	PlatformCut  *big.Int
	CreatorCut   *big.Int
	PaymentCount uint64
	NextDue      int64
	Timestamp    int64
}

func (SubscriptionPaymentProcessed) EventType() string { return TypeSubscriptionPaymentProcessed }

func (e SubscriptionPaymentProcessed) Event() *types.Event {
	return &types.Event{
		Type: TypeSubscriptionPaymentProcessed,
		Attributes: map[string]string{
			"id":           hex.EncodeToString(e.ID[:]),
			"subscriber":   crypto.FormatAddress(e.Subscriber),
			"creator":      crypto.FormatAddress(e.Creator),
			"amount":       formatAmount(e.Amount),
			"platformCut":  formatAmount(e.PlatformCut),
			"creatorCut":   formatAmount(e.CreatorCut),
			"paymentCount": strconv.FormatUint(e.PaymentCount, 10),
			"nextDue":      intToString(e.NextDue),
			"timestamp":    intToString(e.Timestamp),
		},
	}
}

type SubscriptionCancelled struct {
	ID          [32]byte
	Subscriber  [20]byte
	Creator     [20]byte
	CancelledBy [20]byte
	Timestamp   int64
}

func (SubscriptionCancelled) EventType() string { return TypeSubscriptionCancelled }

func (e SubscriptionCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeSubscriptionCancelled,
		Attributes: map[string]string{
			"id":          hex.EncodeToString(e.ID[:]),
			"subscriber":  crypto.FormatAddress(e.Subscriber),
			"creator":     crypto.FormatAddress(e.Creator),
			"cancelledBy": crypto.FormatAddress(e.CancelledBy),
			"timestamp":   intToString(e.Timestamp),
		},
	}
}

type TipSent struct {
	User        [20]byte
	Creator     [20]byte
	Amount      *big.Int
	PlatformCut *big.Int
	CreatorCut  *big.Int
	ContentID   string
	Timestamp   int64
}

func (TipSent) EventType() string { return TypeTipSent }

func (e TipSent) Event() *types.Event {
	attrs := map[string]string{
		"user":        crypto.FormatAddress(e.User),
		"creator":     crypto.FormatAddress(e.Creator),
		"amount":      formatAmount(e.Amount),
		"platformCut": formatAmount(e.PlatformCut),
		"creatorCut":  formatAmount(e.CreatorCut),
		"timestamp":   intToString(e.Timestamp),
	}
	if e.ContentID != "" {
		attrs["contentId"] = e.ContentID
	}
	return &types.Event{Type: TypeTipSent, Attributes: attrs}
}

type EscrowCreated struct {
	ID        [32]byte
	Payer     [20]byte
	Creator   [20]byte
	Amount    *big.Int
	ContentID string
	Timestamp int64
}

func (EscrowCreated) EventType() string { return TypeEscrowCreated }

func (e EscrowCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowCreated,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(e.ID[:]),
			"payer":     crypto.FormatAddress(e.Payer),
			"creator":   crypto.FormatAddress(e.Creator),
			"amount":    formatAmount(e.Amount),
			"contentId": e.ContentID,
			"timestamp": intToString(e.Timestamp),
		},
	}
}

// EscrowReleased carries the fee rate applied at release time so reconcilers
// can reproduce the split.
type EscrowReleased struct {
	ID          [32]byte
	Payer       [20]byte
	Creator     [20]byte
	ReleasedBy  [20]byte
	Amount      *big.Int
	PlatformCut *big.Int
	CreatorCut  *big.Int
	FeeBps      uint32
	Timestamp   int64
}

func (EscrowReleased) EventType() string { return TypeEscrowReleased }

func (e EscrowReleased) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowReleased,
		Attributes: map[string]string{
			"id":          hex.EncodeToString(e.ID[:]),
			"payer":       crypto.FormatAddress(e.Payer),
			"creator":     crypto.FormatAddress(e.Creator),
			"releasedBy":  crypto.FormatAddress(e.ReleasedBy),
			"amount":      formatAmount(e.Amount),
			"platformCut": formatAmount(e.PlatformCut),
			"creatorCut":  formatAmount(e.CreatorCut),
			"feeBps":      strconv.FormatUint(uint64(e.FeeBps), 10),
			"timestamp":   intToString(e.Timestamp),
		},
	}
}

type CreatorWithdrawal struct {
	Creator   [20]byte
	Amount    *big.Int
	Timestamp int64
}

func (CreatorWithdrawal) EventType() string { return TypeCreatorWithdrawal }

func (e CreatorWithdrawal) Event() *types.Event {
	return &types.Event{
		Type: TypeCreatorWithdrawal,
		Attributes: map[string]string{
			"creator":   crypto.FormatAddress(e.Creator),
			"amount":    formatAmount(e.Amount),
			"timestamp": intToString(e.Timestamp),
		},
	}
}

type PlatformFeesWithdrawn struct {
	To        [20]byte
	Amount    *big.Int
	Remaining *big.Int
	Timestamp int64
}

func (PlatformFeesWithdrawn) EventType() string { return TypePlatformFeesWithdrawn }

func (e PlatformFeesWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypePlatformFeesWithdrawn,
		Attributes: map[string]string{
			"to":        crypto.FormatAddress(e.To),
			"amount":    formatAmount(e.Amount),
			"remaining": formatAmount(e.Remaining),
			"timestamp": intToString(e.Timestamp),
		},
	}
}

type FeeRateChanged struct {
	OldBps    uint32
	NewBps    uint32
	ChangedBy [20]byte
	Timestamp int64
}

func (FeeRateChanged) EventType() string { return TypeFeeRateChanged }

func (e FeeRateChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeRateChanged,
		Attributes: map[string]string{
			"oldBps":    strconv.FormatUint(uint64(e.OldBps), 10),
			"newBps":    strconv.FormatUint(uint64(e.NewBps), 10),
			"changedBy": crypto.FormatAddress(e.ChangedBy),
			"timestamp": intToString(e.Timestamp),
		},
	}
}

// RoleChanged covers agent rotation and ownership transfer; Kind selects the
// event type.
type RoleChanged struct {
	Kind      string
	Old       [20]byte
	New       [20]byte
	Timestamp int64
}

func (e RoleChanged) EventType() string { return e.Kind }

func (e RoleChanged) Event() *types.Event {
	attrs := map[string]string{
		"new":       crypto.FormatAddress(e.New),
		"timestamp": intToString(e.Timestamp),
	}
	if e.Old != ([20]byte{}) {
		attrs["old"] = crypto.FormatAddress(e.Old)
	}
	return &types.Event{Type: e.Kind, Attributes: attrs}
}

// PauseToggled records an emergency stop or its lifting.
type PauseToggled struct {
	Paused    bool
	By        [20]byte
	Timestamp int64
}

func (e PauseToggled) EventType() string {
	if e.Paused {
		return TypeLedgerPaused
	}
	return TypeLedgerUnpaused
}

func (e PauseToggled) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"by":        crypto.FormatAddress(e.By),
			"timestamp": intToString(e.Timestamp),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
