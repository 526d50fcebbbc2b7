package ledgerd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	ledgererrors "creatorpay/core/errors"
	"creatorpay/crypto"
	"creatorpay/native/escrow"
	"creatorpay/native/subscription"
)

const (
	maxBodyBytes     = 1 << 20
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

type subscriptionView struct {
	ID           string `json:"id"`
	Subscriber   string `json:"subscriber"`
	Creator      string `json:"creator"`
	Amount       string `json:"amount"`
	Interval     uint64 `json:"interval"`
	NextDue      int64  `json:"nextDue"`
	Active       bool   `json:"active"`
	TotalPaid    string `json:"totalPaid"`
	PaymentCount uint64 `json:"paymentCount"`
	CreatedAt    int64  `json:"createdAt"`
	CancelledAt  int64  `json:"cancelledAt,omitempty"`
}

func subscriptionFrom(sub *subscription.Subscription) subscriptionView {
	return subscriptionView{
		ID:           hex.EncodeToString(sub.ID[:]),
		Subscriber:   crypto.FormatAddress(sub.Subscriber),
		Creator:      crypto.FormatAddress(sub.Creator),
		Amount:       amountString(sub.Amount),
		Interval:     sub.Interval,
		NextDue:      sub.NextDue,
		Active:       sub.Active,
		TotalPaid:    amountString(sub.TotalPaid),
		PaymentCount: sub.PaymentCount,
		CreatedAt:    sub.CreatedAt,
		CancelledAt:  sub.CancelledAt,
	}
}

func subscriptionsFrom(subs []*subscription.Subscription) []subscriptionView {
	out := make([]subscriptionView, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionFrom(sub))
	}
	return out
}

type escrowView struct {
	ID         string `json:"id"`
	Payer      string `json:"payer"`
	Creator    string `json:"creator"`
	Amount     string `json:"amount"`
	ContentID  string `json:"contentId"`
	CreatedAt  int64  `json:"createdAt"`
	Status     string `json:"status"`
	ReleasedAt int64  `json:"releasedAt,omitempty"`
	ReleasedBy string `json:"releasedBy,omitempty"`
	FeeBps     uint32 `json:"feeBps,omitempty"`
}

func escrowFrom(esc *escrow.Escrow) escrowView {
	view := escrowView{
		ID:         hex.EncodeToString(esc.ID[:]),
		Payer:      crypto.FormatAddress(esc.Payer),
		Creator:    crypto.FormatAddress(esc.Creator),
		Amount:     amountString(esc.Amount),
		ContentID:  esc.ContentID,
		CreatedAt:  esc.CreatedAt,
		Status:     esc.Status.String(),
		ReleasedAt: esc.ReleasedAt,
		FeeBps:     esc.FeeBps,
	}
	if esc.ReleasedBy != ([20]byte{}) {
		view.ReleasedBy = crypto.FormatAddress(esc.ReleasedBy)
	}
	return view
}

func escrowsFrom(list []*escrow.Escrow) []escrowView {
	out := make([]escrowView, 0, len(list))
	for _, esc := range list {
		out = append(out, escrowFrom(esc))
	}
	return out
}

type tipView struct {
	User        string `json:"user"`
	Creator     string `json:"creator"`
	Amount      string `json:"amount"`
	PlatformCut string `json:"platformCut"`
	CreatorCut  string `json:"creatorCut"`
	ContentID   string `json:"contentId,omitempty"`
	SentAt      int64  `json:"sentAt"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("amount %q: %w", raw, ledgererrors.ErrInvalidAmount)
	}
	return value, nil
}

func parseAddress(field, raw string) ([20]byte, error) {
	addr, err := crypto.ParseLedgerAddress(raw)
	if err != nil {
		return addr, fmt.Errorf("%s: %v: %w", field, err, ledgererrors.ErrInvalidAddress)
	}
	return addr, nil
}

func parseID(raw string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(id) {
		return id, errors.New("id must be 32 bytes of hex")
	}
	copy(id[:], decoded)
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, err := CallerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return caller, false
	}
	return caller, true
}

func pageLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultPageLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return limit, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ledgerInfo struct {
	Owner          string `json:"owner"`
	Agent          string `json:"agent"`
	Custody        string `json:"custody"`
	Token          string `json:"token"`
	FeeRateBps     uint32 `json:"feeRateBps"`
	PlatformFees   string `json:"platformFees"`
	Paused         bool   `json:"paused"`
	Height         uint64 `json:"height"`
	Root           string `json:"root"`
	CustodyBalance string `json:"custodyBalance"`
	CreatorTotal   string `json:"creatorTotal"`
	EscrowHoldings string `json:"escrowHoldings"`
	Surplus        string `json:"surplus"`
	Solvent        bool   `json:"solvent"`
}

func (s *Server) handleLedgerInfo(w http.ResponseWriter, r *http.Request) {
	var info ledgerInfo
	err := s.view(func() error {
		owner, err := s.ledger.Owner()
		if err != nil {
			return err
		}
		agent, err := s.ledger.Agent()
		if err != nil {
			return err
		}
		rate, err := s.ledger.PlatformFeeRate()
		if err != nil {
			return err
		}
		report, err := s.ledger.CheckSolvency()
		if err != nil {
			return err
		}
		info = ledgerInfo{
			Owner:          crypto.FormatAddress(owner),
			Agent:          crypto.FormatAddress(agent),
			Custody:        crypto.FormatAddress(s.ledger.Custody()),
			FeeRateBps:     rate,
			PlatformFees:   amountString(report.PlatformFees),
			Paused:         s.ledger.Paused(),
			Height:         s.ledger.Height(),
			Root:           s.ledger.Hash().Hex(),
			CustodyBalance: amountString(report.CustodyBalance),
			CreatorTotal:   amountString(report.CreatorTotal),
			EscrowHoldings: amountString(report.EscrowHoldings),
			Surplus:        amountString(report.Surplus),
			Solvent:        report.Solvent,
		}
		if native := s.ledger.NativeToken(); native != nil {
			info.Token = native.Symbol()
		}
		return nil
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type balanceView struct {
	Address          string `json:"address"`
	CreatorBalance   string `json:"creatorBalance"`
	TotalEarned      string `json:"totalEarned"`
	TotalWithdrawn   string `json:"totalWithdrawn"`
	TokenBalance     string `json:"tokenBalance"`
	CustodyAllowance string `json:"custodyAllowance"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view := balanceView{Address: crypto.FormatAddress(addr)}
	err = s.view(func() error {
		earnings, err := s.ledger.CreatorEarnings(addr)
		if err != nil {
			return err
		}
		tokenBalance, err := s.ledger.TokenBalance(addr)
		if err != nil {
			return err
		}
		allowance, err := s.ledger.CustodyAllowance(addr)
		if err != nil {
			return err
		}
		view.CreatorBalance = amountString(earnings.Pending)
		view.TotalEarned = amountString(earnings.TotalEarned)
		view.TotalWithdrawn = amountString(earnings.TotalWithdrawn)
		view.TokenBalance = amountString(tokenBalance)
		view.CustodyAllowance = amountString(allowance)
		return nil
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type eventView struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	LedgerRoot string            `json:"ledgerRoot"`
	PrevHash   string            `json:"prevHash"`
	Hash       string            `json:"hash"`
	CreatedAt  int64             `json:"createdAt"`
}

type eventsPage struct {
	Events []eventView `json:"events"`
	Next   uint64      `json:"next"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log disabled")
		return
	}
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be a sequence number")
			return
		}
		after = parsed
	}
	limit, err := pageLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.audit.Since(r.Context(), after, limit)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	page := eventsPage{Events: make([]eventView, 0, len(entries)), Next: after}
	for _, entry := range entries {
		attrs, err := entry.Attrs()
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		page.Events = append(page.Events, eventView{
			Sequence:   entry.Sequence,
			Type:       entry.Type,
			Attributes: attrs,
			LedgerRoot: entry.LedgerRoot,
			PrevHash:   entry.PrevHash,
			Hash:       entry.Hash,
			CreatedAt:  entry.CreatedAt.Unix(),
		})
		page.Next = entry.Sequence
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Subscriber string `json:"subscriber"`
		Creator    string `json:"creator"`
		Amount     string `json:"amount"`
		Interval   uint64 `json:"interval"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	subscriber, err := parseAddress("subscriber", req.Subscriber)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	creatorAddr, err := parseAddress("creator", req.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var sub *subscription.Subscription
	err = s.mutate(r.Context(), func(ctx context.Context) error {
		var err error
		sub, err = s.ledger.CreateSubscription(ctx, caller, subscriber, creatorAddr, amount, req.Interval)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscriptionFrom(sub))
}

func (s *Server) subscriptionCall(w http.ResponseWriter, r *http.Request, call func(context.Context, [20]byte, [32]byte) (*subscription.Subscription, error)) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var sub *subscription.Subscription
	err = s.mutate(r.Context(), func(ctx context.Context) error {
		var err error
		sub, err = call(ctx, caller, id)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionFrom(sub))
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	s.subscriptionCall(w, r, s.ledger.ProcessDuePayment)
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	s.subscriptionCall(w, r, s.ledger.CancelSubscription)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var sub *subscription.Subscription
	err = s.view(func() error {
		var err error
		sub, err = s.ledger.GetSubscription(id)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionFrom(sub))
}

func (s *Server) handleIsPaymentDue(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var due bool
	err = s.view(func() error {
		var err error
		due, err = s.ledger.IsPaymentDue(id)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": hex.EncodeToString(id[:]), "due": due})
}

func (s *Server) handleDueSubscriptions(w http.ResponseWriter, r *http.Request) {
	limit, err := pageLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var subs []*subscription.Subscription
	err = s.view(func() error {
		var err error
		subs, err = s.ledger.DueSubscriptions(limit)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionsFrom(subs))
}

// handleListSubscriptions filters by exactly one of subscriber or creator.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	subscriberRaw, creatorRaw := query.Get("subscriber"), query.Get("creator")
	if (subscriberRaw == "") == (creatorRaw == "") {
		writeError(w, http.StatusBadRequest, "exactly one of subscriber or creator is required")
		return
	}
	var (
		subs []*subscription.Subscription
		err  error
	)
	if subscriberRaw != "" {
		addr, perr := parseAddress("subscriber", subscriberRaw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		err = s.view(func() error {
			var err error
			subs, err = s.ledger.SubscriptionsBySubscriber(addr)
			return err
		})
	} else {
		addr, perr := parseAddress("creator", creatorRaw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		err = s.view(func() error {
			var err error
			subs, err = s.ledger.SubscriptionsByCreator(addr)
			return err
		})
	}
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionsFrom(subs))
}

func (s *Server) handleSendTip(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		User      string `json:"user"`
		Creator   string `json:"creator"`
		Amount    string `json:"amount"`
		ContentID string `json:"contentId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	creatorAddr, err := parseAddress("creator", req.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var receipt *subscription.TipReceipt
	err = s.mutate(r.Context(), func(ctx context.Context) error {
		var err error
		receipt, err = s.ledger.SendTip(ctx, caller, user, creatorAddr, amount, req.ContentID)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tipView{
		User:        crypto.FormatAddress(receipt.User),
		Creator:     crypto.FormatAddress(receipt.Creator),
		Amount:      amountString(receipt.Amount),
		PlatformCut: amountString(receipt.PlatformCut),
		CreatorCut:  amountString(receipt.CreatorCut),
		ContentID:   receipt.ContentID,
		SentAt:      receipt.SentAt,
	})
}

func (s *Server) handleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	payer, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Creator   string `json:"creator"`
		Amount    string `json:"amount"`
		ContentID string `json:"contentId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	creatorAddr, err := parseAddress("creator", req.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var esc *escrow.Escrow
	err = s.mutate(r.Context(), func(ctx context.Context) error {
		var err error
		esc, err = s.ledger.CreateEscrow(ctx, payer, creatorAddr, amount, req.ContentID)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, escrowFrom(esc))
}

func (s *Server) handleReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var esc *escrow.Escrow
	err = s.mutate(r.Context(), func(ctx context.Context) error {
		var err error
		esc, err = s.ledger.ReleaseEscrow(ctx, caller, id)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, escrowFrom(esc))
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var esc *escrow.Escrow
	err = s.view(func() error {
		var err error
		esc, err = s.ledger.GetEscrow(id)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, escrowFrom(esc))
}

func (s *Server) handleListEscrows(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	payerRaw, creatorRaw := query.Get("payer"), query.Get("creator")
	if (payerRaw == "") == (creatorRaw == "") {
		writeError(w, http.StatusBadRequest, "exactly one of payer or creator is required")
		return
	}
	field, raw, list := "payer", payerRaw, s.ledger.EscrowsByPayer
	if creatorRaw != "" {
		field, raw, list = "creator", creatorRaw, s.ledger.EscrowsByCreator
	}
	addr, err := parseAddress(field, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var found []*escrow.Escrow
	err = s.view(func() error {
		var err error
		found, err = list(addr)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, escrowsFrom(found))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var paid *big.Int
	err := s.mutate(r.Context(), func(ctx context.Context) error {
		var err error
		paid, err = s.ledger.Withdraw(ctx, caller)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(paid)})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = s.mutate(r.Context(), func(ctx context.Context) error {
		return s.ledger.Approve(ctx, caller, amount)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(amount)})
}

func (s *Server) handleWithdrawPlatformFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var paid *big.Int
	err = s.mutate(r.Context(), func(ctx context.Context) error {
		var err error
		paid, err = s.ledger.WithdrawPlatformFees(ctx, caller, amount)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{Amount: amountString(paid)})
}

func (s *Server) roleChange(w http.ResponseWriter, r *http.Request, field string, call func(context.Context, [20]byte, [20]byte) error) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req map[string]string
	if !decodeBody(w, r, &req) {
		return
	}
	next, err := parseAddress(field, req[field])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = s.mutate(r.Context(), func(ctx context.Context) error {
		return call(ctx, caller, next)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{field: crypto.FormatAddress(next)})
}

func (s *Server) handleSetAgent(w http.ResponseWriter, r *http.Request) {
	s.roleChange(w, r, "agent", s.ledger.SetAgent)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	s.roleChange(w, r, "owner", s.ledger.TransferOwnership)
}

func (s *Server) handleSetFeeRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		FeeBps *uint32 `json:"feeBps"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FeeBps == nil {
		writeError(w, http.StatusBadRequest, "feeBps is required")
		return
	}
	err := s.mutate(r.Context(), func(ctx context.Context) error {
		return s.ledger.SetPlatformFeeRate(ctx, caller, *req.FeeBps)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint32{"feeBps": *req.FeeBps})
}

func (s *Server) pauseCall(w http.ResponseWriter, r *http.Request, call func(context.Context, [20]byte) error) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	err := s.mutate(r.Context(), func(ctx context.Context) error {
		return call(ctx, caller)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var paused bool
	_ = s.view(func() error {
		paused = s.ledger.Paused()
		return nil
	})
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.pauseCall(w, r, s.ledger.Pause)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.pauseCall(w, r, s.ledger.Unpause)
}
