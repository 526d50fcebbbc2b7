package creator

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/core/events"
)

type mockState struct {
	earnings map[[20]byte]*Earnings
	total    *big.Int
	fees     *big.Int
}

func newMockState() *mockState {
	return &mockState{
		earnings: make(map[[20]byte]*Earnings),
		total:    big.NewInt(0),
		fees:     big.NewInt(0),
	}
}

func (m *mockState) CreatorEarningsGet(creator [20]byte) (*Earnings, bool, error) {
	earnings, ok := m.earnings[creator]
	if !ok {
		return nil, false, nil
	}
	return earnings.Clone(), true, nil
}

func (m *mockState) CreatorEarningsPut(earnings *Earnings) error {
	m.earnings[earnings.Creator] = earnings.Clone()
	return nil
}

func (m *mockState) CreatorTotal() (*big.Int, error) { return new(big.Int).Set(m.total), nil }

func (m *mockState) SetCreatorTotal(amount *big.Int) error {
	m.total = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) PlatformFees() (*big.Int, error) { return new(big.Int).Set(m.fees), nil }

func (m *mockState) SetPlatformFees(amount *big.Int) error {
	m.fees = new(big.Int).Set(amount)
	return nil
}

type fakeToken struct {
	balances  map[[20]byte]*big.Int
	fail      error
	transfers int
}

func newFakeToken() *fakeToken { return &fakeToken{balances: make(map[[20]byte]*big.Int)} }

func (f *fakeToken) BalanceOf(addr [20]byte) (*big.Int, error) {
	if bal, ok := f.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeToken) Transfer(from, to [20]byte, amount *big.Int) error {
	if f.fail != nil {
		return f.fail
	}
	fromBal, _ := f.BalanceOf(from)
	toBal, _ := f.BalanceOf(to)
	f.balances[from] = fromBal.Sub(fromBal, amount)
	f.balances[to] = toBal.Add(toBal, amount)
	f.transfers++
	return nil
}

func (f *fakeToken) TransferFrom(_, from, to [20]byte, amount *big.Int) error {
	return f.Transfer(from, to, amount)
}

type ownerOnly [20]byte

func (o ownerOnly) RequireOwner(caller [20]byte) error {
	if caller != [20]byte(o) {
		return ledgererrors.ErrUnauthorizedOwner
	}
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	testOwner   = newTestAddress(0x0A)
	testCustody = newTestAddress(0xCC)
	testCreator = newTestAddress(0x02)
)

func newTestEngine() (*Engine, *mockState, *fakeToken, *capturingEmitter) {
	state := newMockState()
	tok := newFakeToken()
	tok.balances[testCustody] = big.NewInt(10_000_000)
	emitter := &capturingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetToken(tok, testCustody)
	engine.SetAccess(ownerOnly(testOwner))
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine, state, tok, emitter
}

func TestCreditTracksTotals(t *testing.T) {
	engine, state, _, _ := newTestEngine()
	if err := engine.Credit(testCreator, big.NewInt(4_875_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := engine.Credit(testCreator, big.NewInt(125)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	bal, err := engine.Balance(testCreator)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(4_875_125)) != 0 {
		t.Fatalf("unexpected balance %s", bal)
	}
	if state.total.Cmp(bal) != 0 {
		t.Fatalf("total %s does not match balance %s", state.total, bal)
	}
	if err := engine.Credit([20]byte{}, big.NewInt(1)); !errors.Is(err, ledgererrors.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestWithdrawZeroesBeforeTransfer(t *testing.T) {
	engine, state, tok, emitter := newTestEngine()
	if err := engine.Credit(testCreator, big.NewInt(900)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	paid, err := engine.Withdraw(testCreator)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paid.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("unexpected payout %s", paid)
	}
	got, _ := tok.BalanceOf(testCreator)
	if got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("creator token balance %s", got)
	}
	if state.total.Sign() != 0 {
		t.Fatalf("total not reduced: %s", state.total)
	}
	earnings, _ := engine.Earnings(testCreator)
	if earnings.Pending.Sign() != 0 || earnings.TotalWithdrawn.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("unexpected earnings %+v", earnings)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != events.TypeCreatorWithdrawal {
		t.Fatalf("expected a withdrawal event, got %#v", emitter.events)
	}

	if _, err := engine.Withdraw(testCreator); !errors.Is(err, ledgererrors.ErrNoBalance) {
		t.Fatalf("expected ErrNoBalance, got %v", err)
	}
}

func TestWithdrawReportsTransferFailure(t *testing.T) {
	engine, _, tok, emitter := newTestEngine()
	if err := engine.Credit(testCreator, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	tok.fail = errors.New("token paused")
	if _, err := engine.Withdraw(testCreator); !errors.Is(err, ledgererrors.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("failed withdrawal emitted %d events", len(emitter.events))
	}
}

func TestWithdrawPlatformFees(t *testing.T) {
	engine, _, tok, emitter := newTestEngine()
	if err := engine.AccruePlatformFee(big.NewInt(125_000)); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	if _, err := engine.WithdrawPlatformFees(testCreator, big.NewInt(1)); !errors.Is(err, ledgererrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.WithdrawPlatformFees(testOwner, big.NewInt(0)); !errors.Is(err, ledgererrors.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.WithdrawPlatformFees(testOwner, big.NewInt(125_001)); !errors.Is(err, ledgererrors.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	remaining, err := engine.WithdrawPlatformFees(testOwner, big.NewInt(100_000))
	if err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	if remaining.Cmp(big.NewInt(25_000)) != 0 {
		t.Fatalf("unexpected remaining %s", remaining)
	}
	paid, _ := tok.BalanceOf(testOwner)
	if paid.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("owner received %s", paid)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != events.TypePlatformFeesWithdrawn {
		t.Fatalf("unexpected events %#v", emitter.events)
	}
}
