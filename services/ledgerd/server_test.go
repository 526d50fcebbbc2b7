package ledgerd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/core/ledger"
	"creatorpay/crypto"
	"creatorpay/observability/logging"
	"creatorpay/services/ledgerd/auditlog"
	"creatorpay/storage"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	startTime    = int64(1_700_000_000)
	monthSeconds = uint64(30 * 86_400)
)

var (
	ownerAddr   = fill(0x01)
	agentAddr   = fill(0x02)
	custodyAddr = fill(0xCC)
	aliceAddr   = fill(0xA1)
	bobAddr     = fill(0xB0)
)

func fill(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

type testServer struct {
	t      *testing.T
	srv    *Server
	auth   *Authenticator
	ledger *ledger.Ledger
	now    int64
}

func newTestServer(t *testing.T, limit RateLimit) *testServer {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	ts := &testServer{t: t, now: startTime}
	opening := big.NewInt(1_000_000_000_000)
	l, err := ledger.Open(db, ledger.Options{
		Genesis: &ledger.Genesis{
			Owner:          ownerAddr,
			Agent:          agentAddr,
			Custody:        custodyAddr,
			Token:          ledger.TokenSpec{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			PlatformFeeBps: 250,
			Allocations: []ledger.Allocation{
				{Address: aliceAddr, Balance: opening, Allowance: opening},
			},
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() int64 { return ts.now },
	})
	require.NoError(t, err)

	gdb, err := auditlog.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	audit, err := auditlog.New(context.Background(), gdb, nil)
	require.NoError(t, err)

	auth, err := NewAuthenticator(testSecret, "creatorpay", time.Hour)
	require.NoError(t, err)
	srv, err := New(Config{
		Ledger:    l,
		Audit:     audit,
		Auth:      auth,
		RateLimit: limit,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	ts.srv, ts.auth, ts.ledger = srv, auth, l
	return ts
}

func (ts *testServer) token(addr [20]byte) string {
	ts.t.Helper()
	tok, err := ts.auth.Issue(addr)
	require.NoError(ts.t, err)
	return tok
}

func (ts *testServer) do(method, path string, as *[20]byte, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+ts.token(*as))
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (ts *testServer) createSubscription(amount string) subscriptionView {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/v1/subscriptions", &agentAddr, map[string]interface{}{
		"subscriber": crypto.FormatAddress(aliceAddr),
		"creator":    crypto.FormatAddress(bobAddr),
		"amount":     amount,
		"interval":   monthSeconds,
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[subscriptionView](ts.t, rec)
}

func TestSubscriptionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, RateLimit{})

	sub := ts.createSubscription("5000000")
	require.True(t, sub.Active)
	require.EqualValues(t, 1, sub.PaymentCount)
	require.Equal(t, "5000000", sub.TotalPaid)

	rec := ts.do(http.MethodGet, "/v1/balances/"+crypto.FormatAddress(bobAddr), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[balanceView](t, rec)
	require.Equal(t, "4875000", balance.CreatorBalance)

	rec = ts.do(http.MethodPost, "/v1/subscriptions/"+sub.ID+"/process", &agentAddr, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/subscriptions/"+sub.ID+"/due", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"due":false`)

	ts.now = sub.NextDue
	rec = ts.do(http.MethodGet, "/v1/subscriptions/due", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]subscriptionView](t, rec), 1)

	rec = ts.do(http.MethodPost, "/v1/subscriptions/"+sub.ID+"/process", &agentAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	processed := decode[subscriptionView](t, rec)
	require.EqualValues(t, 2, processed.PaymentCount)
	require.Equal(t, "10000000", processed.TotalPaid)

	rec = ts.do(http.MethodPost, "/v1/subscriptions/"+sub.ID+"/cancel", &aliceAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.False(t, decode[subscriptionView](t, rec).Active)

	rec = ts.do(http.MethodGet, "/v1/subscriptions?subscriber="+crypto.FormatAddress(aliceAddr), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]subscriptionView](t, rec), 1)

	rec = ts.do(http.MethodGet, "/v1/events?after=0", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[eventsPage](t, rec)
	types := make([]string, 0, len(page.Events))
	for _, evt := range page.Events {
		types = append(types, evt.Type)
	}
	require.Equal(t, []string{
		"subscription.created",
		"subscription.payment_processed",
		"subscription.payment_processed",
		"subscription.cancelled",
	}, types)
	require.EqualValues(t, 4, page.Next)
	require.Equal(t, page.Events[0].Hash, page.Events[1].PrevHash)

	rec = ts.do(http.MethodGet, "/v1/events?after=3&limit=10", nil, nil)
	require.Len(t, decode[eventsPage](t, rec).Events, 1)
}

func TestCallerIdentityIsRequired(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	body := map[string]interface{}{
		"subscriber": crypto.FormatAddress(aliceAddr),
		"creator":    crypto.FormatAddress(bobAddr),
		"amount":     "100",
		"interval":   monthSeconds,
	}

	rec := ts.do(http.MethodPost, "/v1/subscriptions", nil, body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/subscriptions", &aliceAddr, body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer not-a-token")
	out := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(out, req)
	require.Equal(t, http.StatusUnauthorized, out.Code)
}

func TestInvalidRequestsAreRejected(t *testing.T) {
	ts := newTestServer(t, RateLimit{})

	rec := ts.do(http.MethodPost, "/v1/subscriptions", &agentAddr, map[string]interface{}{
		"subscriber": crypto.FormatAddress(aliceAddr),
		"creator":    crypto.FormatAddress(bobAddr),
		"amount":     "0",
		"interval":   monthSeconds,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/subscriptions", &agentAddr, map[string]interface{}{
		"subscriber": "not-an-address",
		"creator":    crypto.FormatAddress(bobAddr),
		"amount":     "10",
		"interval":   monthSeconds,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/subscriptions/zz", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/subscriptions/"+strings.Repeat("ab", 32), nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/subscriptions", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEscrowReleaseOverHTTP(t *testing.T) {
	ts := newTestServer(t, RateLimit{})

	rec := ts.do(http.MethodPost, "/v1/escrows", &aliceAddr, map[string]string{
		"creator":   crypto.FormatAddress(bobAddr),
		"amount":    "1000000",
		"contentId": "post-42",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	esc := decode[escrowView](t, rec)
	require.Equal(t, "funded", esc.Status)

	rec = ts.do(http.MethodPost, "/v1/escrows/"+esc.ID+"/release", &bobAddr, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/escrows/"+esc.ID+"/release", &aliceAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	released := decode[escrowView](t, rec)
	require.Equal(t, "released", released.Status)
	require.Equal(t, crypto.FormatAddress(aliceAddr), released.ReleasedBy)

	rec = ts.do(http.MethodPost, "/v1/escrows/"+esc.ID+"/release", &aliceAddr, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/escrows?payer="+crypto.FormatAddress(aliceAddr), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]escrowView](t, rec), 1)

	rec = ts.do(http.MethodPost, "/v1/withdraw", &bobAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "975000", decode[amountResponse](t, rec).Amount)

	rec = ts.do(http.MethodPost, "/v1/withdraw", &bobAddr, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/ledger", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[ledgerInfo](t, rec)
	require.True(t, info.Solvent)
	require.Equal(t, "25000", info.PlatformFees)
	require.Equal(t, "USDC", info.Token)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t, RateLimit{})

	rec := ts.do(http.MethodPost, "/v1/admin/fee-rate", &agentAddr, map[string]uint32{"feeBps": 500})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/admin/fee-rate", &ownerAddr, map[string]uint32{"feeBps": 1001})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/admin/fee-rate", &ownerAddr, map[string]uint32{"feeBps": 500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/v1/admin/pause", &ownerAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"paused":true`)

	rec = ts.do(http.MethodPost, "/v1/tips", &agentAddr, map[string]string{
		"user":    crypto.FormatAddress(aliceAddr),
		"creator": crypto.FormatAddress(bobAddr),
		"amount":  "1000",
	})
	require.Equal(t, http.StatusLocked, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/admin/unpause", &ownerAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/tips", &agentAddr, map[string]string{
		"user":      crypto.FormatAddress(aliceAddr),
		"creator":   crypto.FormatAddress(bobAddr),
		"amount":    "1000",
		"contentId": "clip-7",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tip := decode[tipView](t, rec)
	require.Equal(t, "50", tip.PlatformCut)
	require.Equal(t, "950", tip.CreatorCut)

	rec = ts.do(http.MethodPost, "/v1/admin/platform-fees/withdraw", &ownerAddr, map[string]string{"amount": "51"})
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(http.MethodPost, "/v1/admin/platform-fees/withdraw", &ownerAddr, map[string]string{"amount": "50"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	newAgent := fill(0x03)
	rec = ts.do(http.MethodPost, "/v1/admin/agent", &ownerAddr, map[string]string{"agent": crypto.FormatAddress(newAgent)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	agent, err := ts.ledger.Agent()
	require.NoError(t, err)
	require.Equal(t, newAgent, agent)

	rec = ts.do(http.MethodPost, "/v1/admin/owner", &ownerAddr, map[string]string{"owner": crypto.FormatAddress(bobAddr)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(http.MethodPost, "/v1/admin/pause", &ownerAddr, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveRaisesAllowance(t *testing.T) {
	ts := newTestServer(t, RateLimit{})

	rec := ts.do(http.MethodPost, "/v1/allowances", &bobAddr, map[string]string{"amount": "777"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/v1/balances/"+crypto.FormatAddress(bobAddr), nil, nil)
	require.Equal(t, "777", decode[balanceView](t, rec).CustodyAllowance)
}

func TestRateLimiterThrottlesClient(t *testing.T) {
	ts := newTestServer(t, RateLimit{RequestsPerSecond: 1, Burst: 1})

	rec := ts.do(http.MethodGet, "/v1/ledger", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodGet, "/v1/ledger", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = ts.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestResponsesCarryRequestID(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	rec := ts.do(http.MethodGet, "/healthz", nil, nil)
	_, err := uuid.Parse(rec.Header().Get("X-Request-Id"))
	require.NoError(t, err)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ledgererrors.ErrUnauthorizedOwner, http.StatusForbidden},
		{ledgererrors.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", ledgererrors.ErrInvalidInterval), http.StatusBadRequest},
		{ledgererrors.ErrNotDue, http.StatusConflict},
		{ledgererrors.ErrInsufficientFunds, http.StatusConflict},
		{ledgererrors.ErrTransferFailed, http.StatusPaymentRequired},
		{ledgererrors.ErrReentrant, http.StatusLocked},
		{ledgererrors.ErrPaused, http.StatusLocked},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestAuthenticatorRejectsExpiredTokens(t *testing.T) {
	auth, err := NewAuthenticator(testSecret, "creatorpay", time.Minute)
	require.NoError(t, err)
	issuedAt := time.Unix(startTime, 0)
	auth.SetNowFunc(func() time.Time { return issuedAt })
	tok, err := auth.Issue(aliceAddr)
	require.NoError(t, err)

	caller, err := auth.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, aliceAddr, caller)

	auth.SetNowFunc(func() time.Time { return issuedAt.Add(2 * time.Minute) })
	_, err = auth.Verify(tok)
	require.ErrorIs(t, err, errInvalidToken)

	other, err := NewAuthenticator(strings.Repeat("x", 32), "creatorpay", time.Minute)
	require.NoError(t, err)
	other.SetNowFunc(func() time.Time { return issuedAt })
	_, err = other.Verify(tok)
	require.ErrorIs(t, err, errInvalidToken)

	_, err = NewAuthenticator("short", "creatorpay", time.Minute)
	require.Error(t, err)
}

func TestRejectedTokenIsMaskedInLogs(t *testing.T) {
	foreign, err := NewAuthenticator(strings.Repeat("x", 32), "creatorpay", time.Minute)
	require.NoError(t, err)
	forged, err := foreign.Issue(aliceAddr)
	require.NoError(t, err)

	auth, err := NewAuthenticator(testSecret, "creatorpay", time.Minute)
	require.NoError(t, err)
	var logs bytes.Buffer
	auth.SetLogger(slog.New(logging.NewHandler(&logs)))
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler reached with a forged token")
	}))

	for _, header := range []string{"Bearer " + forged, "Basic " + forged} {
		req := httptest.NewRequest(http.MethodGet, "/v1/ledger", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	require.NotContains(t, logs.String(), forged)
	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		require.Equal(t, logging.RedactedValue, entry["authorization"])
		require.Equal(t, "/v1/ledger", entry["path"])
	}
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	httpSrv := httptest.NewServer(ts.srv.Handler())
	t.Cleanup(httpSrv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/v1/events/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return ts.srv.Hub().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := ts.do(http.MethodPost, "/v1/tips", &agentAddr, map[string]string{
		"user":    crypto.FormatAddress(aliceAddr),
		"creator": crypto.FormatAddress(bobAddr),
		"amount":  "4000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame StreamEvent
	require.NoError(t, json.Unmarshal(data, &frame))
	require.Equal(t, "tip.sent", frame.Type)
	require.EqualValues(t, 1, frame.Sequence)
	require.Equal(t, ts.ledger.Hash().Hex(), frame.LedgerRoot)
}

func TestFailedCallsLeaveNoAuditTrail(t *testing.T) {
	ts := newTestServer(t, RateLimit{})
	before := ts.ledger.Hash()

	rec := ts.do(http.MethodPost, "/v1/subscriptions", &agentAddr, map[string]interface{}{
		"subscriber": crypto.FormatAddress(bobAddr),
		"creator":    crypto.FormatAddress(aliceAddr),
		"amount":     "10",
		"interval":   monthSeconds,
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Equal(t, before, ts.ledger.Hash())

	rec = ts.do(http.MethodGet, "/v1/events", nil, nil)
	require.Empty(t, decode[eventsPage](t, rec).Events)
}
