package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/core/events"
	"creatorpay/core/state"
	"creatorpay/native/access"
	nativecommon "creatorpay/native/common"
	"creatorpay/native/creator"
	"creatorpay/native/escrow"
	"creatorpay/native/subscription"
	"creatorpay/native/token"
	"creatorpay/observability"
	"creatorpay/storage"
	"creatorpay/storage/trie"
)

var (
	rootKey   = []byte("creatorpay/ledger/root")
	heightKey = []byte("creatorpay/ledger/height")

	errGenesisRequired = errors.New("ledger: empty database requires a genesis")
	errNoCustody       = errors.New("ledger: custody account not recorded in state")
)

// Options configures Open.
type Options struct {
	// Genesis seeds an empty database. It is ignored when the database already
	// holds a committed ledger root.
	Genesis *Genesis
	// AllowMigrate opens state written by a different schema version.
	AllowMigrate bool
	Emitter      events.Emitter
	Logger       *slog.Logger
	Now          func() int64
}

// Ledger is the single entry point surface of the subscription and
// micropayment ledger. Every mutating call runs to completion or leaves no
// trace: state writes are rolled back and buffered events dropped on failure.
//
// Ledger is not safe for concurrent use. Callers serialize access.
type Ledger struct {
	db      storage.Database
	state   *state.Manager
	native  *token.Native
	token   token.Token
	custody [20]byte
	height  uint64

	access        *access.Engine
	payouts       *creator.Engine
	subscriptions *subscription.Engine
	escrows       *escrow.Engine

	guard   nativecommon.ReentrancyGuard
	pending pendingEvents
	emitter events.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.LedgerMetrics
	nowFn   func() int64
}

// pendingEvents routes engine emissions into the buffer of the call in flight.
type pendingEvents struct {
	buf *events.Buffer
}

func (p *pendingEvents) Emit(evt events.Event) {
	if p.buf != nil {
		p.buf.Emit(evt)
	}
}

// Open loads the ledger committed in db, or seeds db from opts.Genesis when it
// holds no ledger yet.
func Open(db storage.Database, opts Options) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: nil database")
	}
	var (
		tr     *trie.Trie
		height uint64
		fresh  bool
	)
	root, err := db.Get(rootKey)
	switch {
	case err == nil:
		if tr, err = trie.NewTrie(db, root); err != nil {
			return nil, fmt.Errorf("ledger: open state root %x: %w", root, err)
		}
		if raw, herr := db.Get(heightKey); herr == nil && len(raw) == 8 {
			height = binary.BigEndian.Uint64(raw)
		}
	case errors.Is(err, storage.ErrNotFound):
		if opts.Genesis == nil {
			return nil, errGenesisRequired
		}
		if tr, err = trie.NewTrie(db, nil); err != nil {
			return nil, err
		}
		fresh = true
	default:
		return nil, fmt.Errorf("ledger: read state root: %w", err)
	}

	l := &Ledger{
		db:            db,
		state:         state.NewManager(tr),
		height:        height,
		access:        access.NewEngine(),
		payouts:       creator.NewEngine(),
		subscriptions: subscription.NewEngine(),
		escrows:       escrow.NewEngine(),
		emitter:       events.NoopEmitter{},
		logger:        slog.Default(),
		tracer:        otel.Tracer("creatorpay/core/ledger"),
		metrics:       observability.Ledger(),
		nowFn:         func() int64 { return time.Now().Unix() },
	}
	l.SetEmitter(opts.Emitter)
	l.SetLogger(opts.Logger)
	l.wire()
	l.SetNowFunc(opts.Now)

	if fresh {
		if err := l.applyGenesis(opts.Genesis); err != nil {
			return nil, fmt.Errorf("ledger: genesis: %w", err)
		}
		if _, err := l.Commit(); err != nil {
			return nil, err
		}
	} else if err := l.state.EnsureStateVersion(opts.AllowMigrate); err != nil {
		return nil, err
	}

	custody, symbol, ok, err := l.state.Custody()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoCustody
	}
	l.native = token.NewNative(l.state, symbol)
	l.SetToken(l.native, custody)
	l.recordGauges()
	return l, nil
}

func (l *Ledger) wire() {
	l.access.SetState(l.state)
	l.access.SetEmitter(&l.pending)

	l.payouts.SetState(l.state)
	l.payouts.SetAccess(l.access)
	l.payouts.SetEmitter(&l.pending)

	l.subscriptions.SetState(l.state)
	l.subscriptions.SetAccess(l.access)
	l.subscriptions.SetPayouts(l.payouts)
	l.subscriptions.SetEmitter(&l.pending)

	l.escrows.SetState(l.state)
	l.escrows.SetAccess(l.access)
	l.escrows.SetPayouts(l.payouts)
	l.escrows.SetEmitter(&l.pending)
}

// SetToken swaps the token every engine settles through. The custody account
// must be the ledger's own account in that token.
func (l *Ledger) SetToken(tok token.Token, custody [20]byte) {
	l.token = tok
	l.custody = custody
	l.access.SetCustody(custody)
	l.payouts.SetToken(tok, custody)
	l.subscriptions.SetToken(tok, custody)
	l.escrows.SetToken(tok, custody)
}

// NativeToken exposes the state-backed settlement token.
func (l *Ledger) NativeToken() *token.Native { return l.native }

// Custody returns the ledger's own token account.
func (l *Ledger) Custody() [20]byte { return l.custody }

// SetEmitter configures where committed events are delivered. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	l.logger = logger.With(slog.String("component", "ledger"))
}

// SetNowFunc overrides the clock shared by every engine.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	l.nowFn = now
	l.access.SetNowFunc(now)
	l.payouts.SetNowFunc(now)
	l.subscriptions.SetNowFunc(now)
	l.escrows.SetNowFunc(now)
}

// Hash fingerprints the whole ledger state, including uncommitted writes.
func (l *Ledger) Hash() common.Hash { return l.state.Hash() }

// Height is the number of commits applied to the backing database.
func (l *Ledger) Height() uint64 { return l.height }

// Commit flushes state to the backing database and records the new root so a
// later Open resumes from it.
func (l *Ledger) Commit() (common.Hash, error) {
	next := l.height + 1
	root, err := l.state.Commit(next)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: commit: %w", err)
	}
	if err := l.db.Put(rootKey, root.Bytes()); err != nil {
		return common.Hash{}, fmt.Errorf("ledger: persist root: %w", err)
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], next)
	if err := l.db.Put(heightKey, raw[:]); err != nil {
		return common.Hash{}, fmt.Errorf("ledger: persist height: %w", err)
	}
	l.height = next
	return root, nil
}

// execute runs op as one atomic unit. Administrative calls skip the pause
// check so the Owner can always unpause.
func (l *Ledger) execute(ctx context.Context, op string, admin bool, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := l.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.Bool("ledger.admin", admin)))
	defer span.End()
	start := time.Now()

	buf, err := l.run(admin, fn)
	if err == nil {
		buf.Flush(l.emitter)
		l.recordGauges()
	}

	reason := errorReason(err)
	l.metrics.Observe(op, time.Since(start), reason, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		l.logger.Warn("ledger call rolled back",
			slog.String("operation", op),
			slog.String("reason", reason),
			slog.Any("error", err),
			slog.Duration("duration", time.Since(start)))
		return err
	}
	l.logger.Info("ledger call applied",
		slog.String("operation", op),
		slog.Int("events", buf.Len()),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// run holds the reentrancy guard only while state is being mutated; committed
// events are flushed by the caller after the guard is released.
func (l *Ledger) run(admin bool, fn func() error) (buf *events.Buffer, err error) {
	release, err := l.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if !admin {
		if err := nativecommon.Guard(l.state, nativecommon.ModuleLedger); err != nil {
			return nil, err
		}
	}

	snap := l.state.Snapshot()
	buf = events.NewBuffer()
	l.pending.buf = buf
	defer func() {
		l.pending.buf = nil
		if r := recover(); r != nil {
			l.state.Restore(snap)
			buf.Discard()
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		l.state.Restore(snap)
		buf.Discard()
		return nil, err
	}
	return buf, nil
}

func (l *Ledger) recordGauges() {
	if l.metrics == nil {
		return
	}
	creators, err := l.state.CreatorTotal()
	if err != nil {
		return
	}
	fees, err := l.state.PlatformFees()
	if err != nil {
		return
	}
	held, err := l.state.EscrowHoldings()
	if err != nil {
		return
	}
	l.metrics.RecordTotals(creators, fees, held)
	if rate, err := l.state.PlatformFeeRate(); err == nil {
		l.metrics.SetFeeRate(rate)
	}
	l.metrics.SetPause(l.state.IsPaused(nativecommon.ModuleLedger))
}

var reasons = []struct {
	err  error
	name string
}{
	{ledgererrors.ErrReentrant, "reentrant"},
	{ledgererrors.ErrPaused, "paused"},
	{ledgererrors.ErrUnauthorized, "unauthorized"},
	{ledgererrors.ErrInvalidAddress, "invalid_address"},
	{ledgererrors.ErrInvalidAmount, "invalid_amount"},
	{ledgererrors.ErrInvalidInterval, "invalid_interval"},
	{ledgererrors.ErrInvalidFeeRate, "invalid_fee_rate"},
	{ledgererrors.ErrInvalidContentID, "invalid_content_id"},
	{ledgererrors.ErrAlreadyExists, "already_exists"},
	{ledgererrors.ErrNotFound, "not_found"},
	{ledgererrors.ErrNotActive, "not_active"},
	{ledgererrors.ErrNotDue, "not_due"},
	{ledgererrors.ErrAlreadyReleased, "already_released"},
	{ledgererrors.ErrTransferFailed, "transfer_failed"},
	{ledgererrors.ErrNoBalance, "no_balance"},
	{ledgererrors.ErrInsufficientFunds, "insufficient_funds"},
}

func errorReason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.name
		}
	}
	return "internal"
}

// CreateSubscription opens a recurring agreement and charges the first
// payment immediately. Agent only.
func (l *Ledger) CreateSubscription(ctx context.Context, caller, subscriber, creatorAddr [20]byte, amount *big.Int, interval uint64) (*subscription.Subscription, error) {
	var out *subscription.Subscription
	err := l.execute(ctx, "create_subscription", false, func() error {
		sub, err := l.subscriptions.Create(caller, subscriber, creatorAddr, amount, interval)
		out = sub
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessDuePayment charges one interval of an active, due subscription.
// Agent only.
func (l *Ledger) ProcessDuePayment(ctx context.Context, caller [20]byte, id [32]byte) (*subscription.Subscription, error) {
	var out *subscription.Subscription
	err := l.execute(ctx, "process_due_payment", false, func() error {
		sub, err := l.subscriptions.ProcessDuePayment(caller, id)
		out = sub
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelSubscription deactivates a subscription. The subscriber or the Owner
// may cancel.
func (l *Ledger) CancelSubscription(ctx context.Context, caller [20]byte, id [32]byte) (*subscription.Subscription, error) {
	var out *subscription.Subscription
	err := l.execute(ctx, "cancel_subscription", false, func() error {
		sub, err := l.subscriptions.Cancel(caller, id)
		out = sub
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendTip settles a one-off tip from user to creator. Agent only.
func (l *Ledger) SendTip(ctx context.Context, caller, user, creatorAddr [20]byte, amount *big.Int, contentID string) (*subscription.TipReceipt, error) {
	var out *subscription.TipReceipt
	err := l.execute(ctx, "send_tip", false, func() error {
		receipt, err := l.subscriptions.Tip(caller, user, creatorAddr, amount, contentID)
		out = receipt
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateEscrow pulls amount from payer and holds it against contentID.
func (l *Ledger) CreateEscrow(ctx context.Context, payer, creatorAddr [20]byte, amount *big.Int, contentID string) (*escrow.Escrow, error) {
	var out *escrow.Escrow
	err := l.execute(ctx, "create_escrow", false, func() error {
		esc, err := l.escrows.Create(payer, creatorAddr, amount, contentID)
		out = esc
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReleaseEscrow settles a funded escrow to its creator. The payer or the Owner
// may release.
func (l *Ledger) ReleaseEscrow(ctx context.Context, caller [20]byte, id [32]byte) (*escrow.Escrow, error) {
	var out *escrow.Escrow
	err := l.execute(ctx, "release_escrow", false, func() error {
		esc, err := l.escrows.Release(caller, id)
		out = esc
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Withdraw pays the caller's whole creator balance out of custody.
func (l *Ledger) Withdraw(ctx context.Context, caller [20]byte) (*big.Int, error) {
	var out *big.Int
	err := l.execute(ctx, "withdraw", false, func() error {
		amount, err := l.payouts.Withdraw(caller)
		out = amount
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WithdrawPlatformFees pays amount of the fee accumulator to the Owner and
// returns what is left.
func (l *Ledger) WithdrawPlatformFees(ctx context.Context, caller [20]byte, amount *big.Int) (*big.Int, error) {
	var out *big.Int
	err := l.execute(ctx, "withdraw_platform_fees", false, func() error {
		remaining, err := l.payouts.WithdrawPlatformFees(caller, amount)
		out = remaining
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
