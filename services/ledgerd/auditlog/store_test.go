package auditlog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"gorm.io/gorm"

	"creatorpay/core/types"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func sampleEvents(n int) []*types.Event {
	out := make([]*types.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &types.Event{
			Type:       "tip.sent",
			Attributes: map[string]string{"amount": fmt.Sprintf("%d", 100+i), "timestamp": "1700000000"},
		})
	}
	return out
}

func TestAppendChainsEntries(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, setupTestDB(t), nil)
	require.NoError(t, err)

	first, err := store.Append(ctx, "0xroot1", sampleEvents(2))
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, genesisHash, first[0].PrevHash)
	require.Equal(t, first[0].Hash, first[1].PrevHash)

	second, err := store.Append(ctx, "0xroot2", sampleEvents(1))
	require.NoError(t, err)
	require.EqualValues(t, 3, second[0].Sequence)
	require.Equal(t, first[1].Hash, second[0].PrevHash)

	seq, hash := store.Head()
	require.EqualValues(t, 3, seq)
	require.Equal(t, second[0].Hash, hash)
	require.NoError(t, store.Verify(ctx))

	page, err := store.Since(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	attrs, err := page[0].Attrs()
	require.NoError(t, err)
	require.Equal(t, "101", attrs["amount"])
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store, err := New(ctx, db, nil)
	require.NoError(t, err)
	_, err = store.Append(ctx, "0xroot", sampleEvents(3))
	require.NoError(t, err)

	require.NoError(t, db.Model(&Entry{}).Where("sequence = ?", 2).
		Update("attributes", `{"amount":"999999"}`).Error)
	require.ErrorIs(t, store.Verify(ctx), ErrChainBroken)
}

func TestNewResumesFromHead(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store, err := New(ctx, db, nil)
	require.NoError(t, err)
	_, err = store.Append(ctx, "0xroot", sampleEvents(4))
	require.NoError(t, err)
	wantSeq, wantHash := store.Head()

	reopened, err := New(ctx, db, nil)
	require.NoError(t, err)
	seq, hash := reopened.Head()
	require.Equal(t, wantSeq, seq)
	require.Equal(t, wantHash, hash)

	_, err = reopened.Append(ctx, "0xroot", sampleEvents(1))
	require.NoError(t, err)
	require.NoError(t, reopened.Verify(ctx))
}

func TestExportParquet(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, setupTestDB(t), nil)
	require.NoError(t, err)
	_, err = store.Append(ctx, "0xroot", sampleEvents(5))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "audit.parquet")
	written, err := store.ExportParquet(ctx, path, 2)
	require.NoError(t, err)
	require.Equal(t, 3, written)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.EqualValues(t, 3, pr.GetNumRows())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
}
