package escrow

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/core/events"
)

type mockState struct {
	escrows   map[[32]byte]*Escrow
	byPayer   map[[20]byte][][32]byte
	byCreator map[[20]byte][][32]byte
	holdings  *big.Int
	seq       uint64
	rate      uint32
}

func newMockState() *mockState {
	return &mockState{
		escrows:   make(map[[32]byte]*Escrow),
		byPayer:   make(map[[20]byte][][32]byte),
		byCreator: make(map[[20]byte][][32]byte),
		holdings:  big.NewInt(0),
		rate:      250,
	}
}

func (m *mockState) EscrowGet(id [32]byte) (*Escrow, bool, error) {
	esc, ok := m.escrows[id]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

func (m *mockState) EscrowPut(esc *Escrow) error {
	if _, ok := m.escrows[esc.ID]; !ok {
		m.byPayer[esc.Payer] = append(m.byPayer[esc.Payer], esc.ID)
		m.byCreator[esc.Creator] = append(m.byCreator[esc.Creator], esc.ID)
	}
	m.escrows[esc.ID] = esc.Clone()
	return nil
}

func (m *mockState) EscrowsByPayer(addr [20]byte) ([][32]byte, error) { return m.byPayer[addr], nil }

func (m *mockState) EscrowsByCreator(addr [20]byte) ([][32]byte, error) {
	return m.byCreator[addr], nil
}

func (m *mockState) EscrowHoldings() (*big.Int, error) { return new(big.Int).Set(m.holdings), nil }

func (m *mockState) SetEscrowHoldings(amount *big.Int) error {
	m.holdings = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) NextSequence() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) PlatformFeeRate() (uint32, error) { return m.rate, nil }

type ownerIs [20]byte

func (o ownerIs) IsOwner(caller [20]byte) bool { return caller == [20]byte(o) }

type recordingPayouts struct {
	credited *big.Int
	platform *big.Int
}

func (r *recordingPayouts) Credit(_ [20]byte, amount *big.Int) error {
	r.credited = new(big.Int).Add(r.credited, amount)
	return nil
}

func (r *recordingPayouts) AccruePlatformFee(amount *big.Int) error {
	r.platform = new(big.Int).Add(r.platform, amount)
	return nil
}

type fakeToken struct {
	pulled *big.Int
	fail   error
}

func (f *fakeToken) BalanceOf([20]byte) (*big.Int, error) { return new(big.Int).Set(f.pulled), nil }

func (f *fakeToken) Transfer(_, _ [20]byte, _ *big.Int) error { return f.fail }

func (f *fakeToken) TransferFrom(_, _, _ [20]byte, amount *big.Int) error {
	if f.fail != nil {
		return f.fail
	}
	f.pulled = new(big.Int).Add(f.pulled, amount)
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
	testPayer   = newTestAddress(0x01)
	testCreator = newTestAddress(0x02)
	testCustody = newTestAddress(0xCC)
)

func newTestEngine() (*Engine, *mockState, *recordingPayouts, *fakeToken, *capturingEmitter) {
	state := newMockState()
	payouts := &recordingPayouts{credited: big.NewInt(0), platform: big.NewInt(0)}
	tok := &fakeToken{pulled: big.NewInt(0)}
	emitter := &capturingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetAccess(ownerIs(testOwner))
	engine.SetPayouts(payouts)
	engine.SetToken(tok, testCustody)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine, state, payouts, tok, emitter
}

func TestCreateHoldsGross(t *testing.T) {
	engine, state, payouts, tok, emitter := newTestEngine()
	esc, err := engine.Create(testPayer, testCreator, big.NewInt(1_000_000), " content-1 ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if esc.Released() || esc.ContentID != "content-1" {
		t.Fatalf("unexpected escrow %+v", esc)
	}
	if state.holdings.Cmp(big.NewInt(1_000_000)) != 0 || tok.pulled.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("holdings %s pulled %s", state.holdings, tok.pulled)
	}
	if payouts.credited.Sign() != 0 || payouts.platform.Sign() != 0 {
		t.Fatalf("deposit must not be split at creation")
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != events.TypeEscrowCreated {
		t.Fatalf("unexpected events %#v", emitter.events)
	}
}

func TestCreateValidation(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()
	cases := []struct {
		name      string
		creator   [20]byte
		amount    *big.Int
		contentID string
		want      error
	}{
		{name: "null creator", amount: big.NewInt(1), contentID: "c", want: ledgererrors.ErrInvalidAddress},
		{name: "zero amount", creator: testCreator, amount: big.NewInt(0), contentID: "c", want: ledgererrors.ErrInvalidAmount},
		{name: "blank content", creator: testCreator, amount: big.NewInt(1), contentID: "   ", want: ledgererrors.ErrInvalidContentID},
		{name: "long content", creator: testCreator, amount: big.NewInt(1), contentID: strings.Repeat("x", MaxContentIDLength+1), want: ledgererrors.ErrInvalidContentID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Create(testPayer, tc.creator, tc.amount, tc.contentID); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateRejectsCustody(t *testing.T) {
	engine, state, _, tok, emitter := newTestEngine()
	pairs := map[string][2][20]byte{
		"custody payer":   {testCustody, testCreator},
		"custody creator": {testPayer, testCustody},
	}
	for name, pair := range pairs {
		t.Run(name, func(t *testing.T) {
			if _, err := engine.Create(pair[0], pair[1], big.NewInt(1_000), "c"); !errors.Is(err, ledgererrors.ErrInvalidAddress) {
				t.Fatalf("expected ErrInvalidAddress, got %v", err)
			}
		})
	}
	if state.holdings.Sign() != 0 || tok.pulled.Sign() != 0 || len(emitter.events) != 0 {
		t.Fatalf("rejected escrow left side effects")
	}
}

func TestReleaseOnceByPayer(t *testing.T) {
	engine, state, payouts, _, emitter := newTestEngine()
	esc, err := engine.Create(testPayer, testCreator, big.NewInt(1_000_000), "content-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	released, err := engine.Release(testPayer, esc.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !released.Released() || released.ReleasedBy != testPayer || released.FeeBps != 250 {
		t.Fatalf("unexpected release record %+v", released)
	}
	if payouts.credited.Cmp(big.NewInt(975_000)) != 0 || payouts.platform.Cmp(big.NewInt(25_000)) != 0 {
		t.Fatalf("split %s/%s", payouts.credited, payouts.platform)
	}
	if state.holdings.Sign() != 0 {
		t.Fatalf("holdings not reduced: %s", state.holdings)
	}

	if _, err := engine.Release(testPayer, esc.ID); !errors.Is(err, ledgererrors.ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased, got %v", err)
	}
	if _, err := engine.Release(testOwner, esc.ID); !errors.Is(err, ledgererrors.ErrAlreadyReleased) {
		t.Fatalf("owner must not release twice either, got %v", err)
	}
	if got := len(emitter.events); got != 2 {
		t.Fatalf("expected create and release events, got %d", got)
	}
	rec := events.ToRecord(emitter.events[1])
	if rec.Attributes["feeBps"] != "250" || rec.Attributes["creatorCut"] != "975000" {
		t.Fatalf("release attributes %v", rec.Attributes)
	}
}

func TestReleaseUsesRateAtRelease(t *testing.T) {
	engine, state, payouts, _, _ := newTestEngine()
	esc, err := engine.Create(testPayer, testCreator, big.NewInt(1_000_000), "content-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	state.rate = 1_000
	if _, err := engine.Release(testOwner, esc.ID); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if payouts.platform.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("expected fee at release-time rate, got %s", payouts.platform)
	}
}

func TestReleaseRejectsStrangers(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()
	esc, err := engine.Create(testPayer, testCreator, big.NewInt(1_000_000), "content-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Release(testCreator, esc.ID); !errors.Is(err, ledgererrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := engine.Release(testPayer, [32]byte{0x99}); !errors.Is(err, ledgererrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestViews(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()
	first, err := engine.Create(testPayer, testCreator, big.NewInt(5), "a")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := engine.Create(testPayer, newTestAddress(0x03), big.NewInt(7), "a")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("ids collided")
	}
	mine, err := engine.ByPayer(testPayer)
	if err != nil || len(mine) != 2 {
		t.Fatalf("by payer: %d %v", len(mine), err)
	}
	held, err := engine.ByCreator(testCreator)
	if err != nil || len(held) != 1 || held[0].ID != first.ID {
		t.Fatalf("by creator: %v %v", held, err)
	}
	total, err := engine.Holdings()
	if err != nil || total.Int64() != 12 {
		t.Fatalf("holdings %v %v", total, err)
	}
}
