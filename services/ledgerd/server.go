package ledgerd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"creatorpay/core/events"
	"creatorpay/core/ledger"
	"creatorpay/core/types"
	"creatorpay/observability"
	"creatorpay/services/ledgerd/auditlog"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger    *ledger.Ledger
	Audit     *auditlog.Store
	Auth      *Authenticator
	RateLimit RateLimit
	Logger    *slog.Logger
}

// Server binds the ledger to an HTTP JSON API. Every ledger call runs under a
// single mutex; successful mutations are committed before their events are
// written to the audit log and pushed to stream subscribers.
type Server struct {
	ledger  *ledger.Ledger
	audit   *auditlog.Store
	auth    *Authenticator
	limiter *RateLimiter
	hub     *Hub
	logger  *slog.Logger

	mu     sync.Mutex
	outbox *events.Buffer

	router http.Handler
}

// New wires the server and takes over the ledger's event emitter.
func New(cfg Config) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledgerd: ledger required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("ledgerd: authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "ledgerd"))
	cfg.Auth.SetLogger(logger)
	srv := &Server{
		ledger:  cfg.Ledger,
		audit:   cfg.Audit,
		auth:    cfg.Auth,
		limiter: NewRateLimiter(cfg.RateLimit),
		hub:     newHub(logger),
		logger:  logger,
		outbox:  events.NewBuffer(),
	}
	cfg.Ledger.SetEmitter(srv.outbox)
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub exposes the live event fan-out.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(assignRequestID)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Use(s.auth.Middleware)

		api.Get("/ledger", s.handleLedgerInfo)
		api.Get("/balances/{address}", s.handleBalance)
		api.Get("/events", s.handleEvents)
		api.Get("/events/ws", s.hub.serveWS)

		api.Route("/subscriptions", func(subs chi.Router) {
			subs.Get("/", s.handleListSubscriptions)
			subs.Post("/", s.handleCreateSubscription)
			subs.Get("/due", s.handleDueSubscriptions)
			subs.Get("/{id}", s.handleGetSubscription)
			subs.Get("/{id}/due", s.handleIsPaymentDue)
			subs.Post("/{id}/process", s.handleProcessPayment)
			subs.Post("/{id}/cancel", s.handleCancelSubscription)
		})
		api.Post("/tips", s.handleSendTip)
		api.Route("/escrows", func(esc chi.Router) {
			esc.Get("/", s.handleListEscrows)
			esc.Post("/", s.handleCreateEscrow)
			esc.Get("/{id}", s.handleGetEscrow)
			esc.Post("/{id}/release", s.handleReleaseEscrow)
		})
		api.Post("/withdraw", s.handleWithdraw)
		api.Post("/allowances", s.handleApprove)

		api.Route("/admin", func(admin chi.Router) {
			admin.Post("/platform-fees/withdraw", s.handleWithdrawPlatformFees)
			admin.Post("/agent", s.handleSetAgent)
			admin.Post("/owner", s.handleTransferOwnership)
			admin.Post("/fee-rate", s.handleSetFeeRate)
			admin.Post("/pause", s.handlePause)
			admin.Post("/unpause", s.handleUnpause)
		})
	})

	return otelhttp.NewHandler(r, "ledgerd")
}

func assignRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(chimw.RequestIDHeader) == "" {
			r.Header.Set(chimw.RequestIDHeader, uuid.NewString())
		}
		w.Header().Set(chimw.RequestIDHeader, r.Header.Get(chimw.RequestIDHeader))
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	return chimw.GetReqID(r.Context())
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		observability.ModuleMetrics().Observe("ledgerd", r.Method+" "+route, status, time.Since(start))
		s.logger.Debug("request served",
			slog.String("method", r.Method),
			slog.String("path", route),
			slog.Int("status", status),
			slog.String("request_id", requestID(r)))
	})
}

// view runs a read-only ledger call under the executor lock. Trie reads can
// resolve nodes in place, so they are not safe alongside writes.
func (s *Server) view(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// mutate runs one ledger entry point, commits on success and delivers the
// events it emitted.
func (s *Server) mutate(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.outbox.Discard()

	if err := fn(ctx); err != nil {
		return err
	}
	root, err := s.ledger.Commit()
	if err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	s.deliver(ctx, root.Hex(), s.outbox.Events())
	return nil
}

func (s *Server) deliver(ctx context.Context, root string, pending []events.Event) {
	records := make([]*types.Event, 0, len(pending))
	for _, evt := range pending {
		if rec := events.ToRecord(evt); rec != nil {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return
	}
	frames := make([]StreamEvent, 0, len(records))
	var entries []auditlog.Entry
	if s.audit != nil {
		var err error
		// The ledger has already committed; a lost audit write is reported, not undone.
		entries, err = s.audit.Append(context.WithoutCancel(ctx), root, records)
		if err != nil {
			s.logger.Error("audit log append failed", slog.String("root", root), slog.Any("error", err))
		}
	}
	if len(entries) == len(records) {
		for i, entry := range entries {
			frames = append(frames, StreamEvent{
				Sequence:   entry.Sequence,
				Type:       entry.Type,
				Attributes: records[i].Attributes,
				LedgerRoot: root,
				Hash:       entry.Hash,
			})
		}
	} else {
		for _, rec := range records {
			frames = append(frames, StreamEvent{Type: rec.Type, Attributes: rec.Attributes, LedgerRoot: root})
		}
		if s.audit == nil {
			for _, rec := range records {
				observability.Events().RecordEmitted(rec.Type)
			}
		}
	}
	s.hub.Publish(frames)
}
