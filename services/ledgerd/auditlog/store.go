package auditlog

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"creatorpay/core/types"
	"creatorpay/observability"
)

// ErrChainBroken is returned by Verify when a stored entry does not hash to
// the value recorded for it or does not link to its predecessor.
var ErrChainBroken = errors.New("auditlog: hash chain broken")

const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one committed ledger event. Entries form a blake3 hash chain in
// sequence order so a reconciler can detect edits or gaps.
type Entry struct {
	Sequence   uint64    `gorm:"primaryKey;autoIncrement:false" json:"sequence"`
	Type       string    `gorm:"size:64;index" json:"type"`
	Attributes string    `gorm:"type:text" json:"-"`
	LedgerRoot string    `gorm:"size:66" json:"ledgerRoot"`
	PrevHash   string    `gorm:"size:64" json:"prevHash"`
	Hash       string    `gorm:"size:64;uniqueIndex" json:"hash"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Entry) TableName() string { return "ledger_audit_entries" }

// Attrs decodes the stored attribute map.
func (e Entry) Attrs() (map[string]string, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(e.Attributes) == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("auditlog: decode attributes of %d: %w", e.Sequence, err)
	}
	return attrs, nil
}

// Open connects to the audit database. Driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("auditlog: unsupported driver %q", driver)
	}
}

// Store appends ledger events to the audit table.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	headSeq  uint64
	headHash string
}

// New migrates the schema and loads the chain head.
func New(ctx context.Context, db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("auditlog: nil database")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("auditlog: migrate: %w", err)
	}
	s := &Store{
		db:       db,
		logger:   log.With(slog.String("component", "auditlog")),
		now:      func() time.Time { return time.Now().UTC() },
		headHash: genesisHash,
	}
	var last Entry
	err := db.WithContext(ctx).Order("sequence desc").Limit(1).Take(&last).Error
	switch {
	case err == nil:
		s.headSeq, s.headHash = last.Sequence, last.Hash
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("auditlog: load head: %w", err)
	}
	return s, nil
}

// Head returns the last sequence number and its hash.
func (s *Store) Head() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headSeq, s.headHash
}

func chainHash(prev string, seq uint64, eventType, attrs, root string) (string, error) {
	prevRaw, err := hex.DecodeString(prev)
	if err != nil {
		return "", fmt.Errorf("auditlog: previous hash: %w", err)
	}
	h := blake3.New(32, nil)
	h.Write(prevRaw)
	var seqRaw [8]byte
	binary.BigEndian.PutUint64(seqRaw[:], seq)
	h.Write(seqRaw[:])
	for _, part := range []string{eventType, attrs, root} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Append stores evts in one transaction, chained after the current head, and
// tags them with the ledger root they were committed under.
func (s *Store) Append(ctx context.Context, root string, evts []*types.Event) ([]Entry, error) {
	if len(evts) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, prev := s.headSeq, s.headHash
	entries := make([]Entry, 0, len(evts))
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		attrs, err := json.Marshal(evt.Attributes)
		if err != nil {
			return nil, fmt.Errorf("auditlog: encode %s: %w", evt.Type, err)
		}
		seq++
		hash, err := chainHash(prev, seq, evt.Type, string(attrs), root)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Sequence:   seq,
			Type:       evt.Type,
			Attributes: string(attrs),
			LedgerRoot: root,
			PrevHash:   prev,
			Hash:       hash,
			CreatedAt:  s.now(),
		})
		prev = hash
	}
	if len(entries) == 0 {
		return nil, nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&entries).Error
	})
	if err != nil {
		for range entries {
			observability.Events().RecordDropped("auditlog")
		}
		s.logger.Error("audit append failed", slog.Int("events", len(entries)), slog.Any("error", err))
		return nil, fmt.Errorf("auditlog: append: %w", err)
	}
	for _, entry := range entries {
		observability.Events().RecordEmitted(entry.Type)
	}
	s.headSeq, s.headHash = seq, prev
	return entries, nil
}

// Since returns up to limit entries with a sequence greater than after.
func (s *Store) Since(ctx context.Context, after uint64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("sequence > ?", after).
		Order("sequence asc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("auditlog: query: %w", err)
	}
	return entries, nil
}

// Verify walks the whole chain and recomputes every hash.
func (s *Store) Verify(ctx context.Context) error {
	prev := genesisHash
	var expected uint64 = 1
	for {
		page, err := s.Since(ctx, expected-1, 500)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, entry := range page {
			if entry.Sequence != expected {
				return fmt.Errorf("%w: gap before sequence %d", ErrChainBroken, entry.Sequence)
			}
			if entry.PrevHash != prev {
				return fmt.Errorf("%w: sequence %d does not link to its predecessor", ErrChainBroken, entry.Sequence)
			}
			hash, err := chainHash(prev, entry.Sequence, entry.Type, entry.Attributes, entry.LedgerRoot)
			if err != nil {
				return err
			}
			if hash != entry.Hash {
				return fmt.Errorf("%w: sequence %d was modified", ErrChainBroken, entry.Sequence)
			}
			prev = entry.Hash
			expected++
		}
	}
}
