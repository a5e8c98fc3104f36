package etl

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagehq/vantage/pkg/types"
)

func testWriter(batchSize int) *Writer {
	return NewWriter(nil, WriterConfig{
		BatchSize:     batchSize,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		FlushDelay:    0,
	})
}

func record(abn string, names ...types.RawName) types.NormalizedRecord {
	return types.NormalizedRecord{
		Business: types.Business{ABN: abn, ABNStatus: "ACT", EntityTypeCode: "PRV", EntityName: "E " + abn},
		Names:    names,
	}
}

func TestWriterFlushesAtBatchSize(t *testing.T) {
	w := testWriter(3)

	var batches [][]types.NormalizedRecord
	w.runBatch = func(ctx context.Context, batch []types.NormalizedRecord) error {
		batches = append(batches, batch)
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, w.Add(ctx, record("1234567890"+string(rune('0'+i)))))
	}

	// Two full batches flushed by Add; one record still buffered
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Equal(t, int64(6), w.TotalInserted())

	require.NoError(t, w.Flush(ctx))
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 1)
	assert.Equal(t, int64(7), w.TotalInserted())

	// The in-flight buffer never exceeded the batch threshold
	for _, b := range batches {
		assert.LessOrEqual(t, len(b), 3)
	}
}

func TestWriterFlushEmptyIsNoop(t *testing.T) {
	w := testWriter(10)

	called := false
	w.runBatch = func(ctx context.Context, batch []types.NormalizedRecord) error {
		called = true
		return nil
	}

	require.NoError(t, w.Flush(context.Background()))
	assert.False(t, called)
}

func TestWriterRetriesTransientFailures(t *testing.T) {
	w := testWriter(1)

	attempts := 0
	w.runBatch = func(ctx context.Context, batch []types.NormalizedRecord) error {
		attempts++
		if attempts < 3 {
			return syscall.ECONNRESET
		}
		return nil
	}

	require.NoError(t, w.Add(context.Background(), record("11111111111")))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, int64(1), w.TotalInserted())
}

func TestWriterDoesNotRetryPermanentFailures(t *testing.T) {
	w := testWriter(1)

	attempts := 0
	permanent := errors.New("syntax error at or near")
	w.runBatch = func(ctx context.Context, batch []types.NormalizedRecord) error {
		attempts++
		return permanent
	}

	err := w.Add(context.Background(), record("11111111111"))
	require.Error(t, err)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, int64(0), w.TotalInserted())
}

func TestWriterSurfacesExhaustedRetries(t *testing.T) {
	w := testWriter(1)

	attempts := 0
	w.runBatch = func(ctx context.Context, batch []types.NormalizedRecord) error {
		attempts++
		return syscall.ECONNREFUSED
	}

	err := w.Add(context.Background(), record("11111111111"))
	require.Error(t, err)
	// Initial attempt plus RetryAttempts retries
	assert.Equal(t, 4, attempts)
}

func TestWriterDestroyFlushesRemainder(t *testing.T) {
	w := testWriter(100)

	var flushed int
	w.runBatch = func(ctx context.Context, batch []types.NormalizedRecord) error {
		flushed += len(batch)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, w.Add(ctx, record("11111111111")))
	require.NoError(t, w.Add(ctx, record("22222222222")))

	result, err := w.Destroy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, flushed)
	assert.Equal(t, int64(2), result.TotalInserted)
}

// orderedRepo records the order of repository calls during a batch
type orderedRepo struct {
	calls []string
	ids   map[string]int64

	insertedNames []types.BusinessName
	deletedIDs    []int64
}

func (r *orderedRepo) BulkUpsert(ctx context.Context, rows []types.Business) (int, error) {
	r.calls = append(r.calls, "upsert")
	return len(rows), nil
}

func (r *orderedRepo) BulkInsertNames(ctx context.Context, rows []types.BusinessName) (int, error) {
	r.calls = append(r.calls, "insertNames")
	r.insertedNames = append(r.insertedNames, rows...)
	return len(rows), nil
}

func (r *orderedRepo) GetIDsByABNs(ctx context.Context, abns []string) (map[string]int64, error) {
	r.calls = append(r.calls, "getIDs")
	return r.ids, nil
}

func (r *orderedRepo) DeleteNamesByBusinessIDs(ctx context.Context, ids []int64) error {
	r.calls = append(r.calls, "deleteNames")
	r.deletedIDs = append(r.deletedIDs, ids...)
	return nil
}

func (r *orderedRepo) FindByABN(ctx context.Context, abn string) (*types.Business, int64, error) {
	return nil, 0, nil
}

func (r *orderedRepo) SearchNative(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	return nil, nil
}

func (r *orderedRepo) SearchOptimized(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	return nil, nil
}

func (r *orderedRepo) FindWithFilters(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	return nil, nil
}

func TestReplaceNamesOrdering(t *testing.T) {
	w := testWriter(10)
	repo := &orderedRepo{ids: map[string]int64{"11111111111": 7}}

	batch := []types.NormalizedRecord{
		record("11111111111",
			types.RawName{NameType: "TRD", NameText: "ACME TRADING"},
			types.RawName{NameType: "BN", NameText: "ACME"},
		),
	}

	require.NoError(t, w.replaceNames(context.Background(), repo, batch))

	// Replace semantics: resolve ids, delete old names, insert fresh ones
	assert.Equal(t, []string{"getIDs", "deleteNames", "insertNames"}, repo.calls)
	assert.Equal(t, []int64{7}, repo.deletedIDs)
	require.Len(t, repo.insertedNames, 2)
	assert.Equal(t, int64(7), repo.insertedNames[0].BusinessID)
}

func TestReplaceNamesSkipsUnresolvedABNs(t *testing.T) {
	w := testWriter(10)
	repo := &orderedRepo{ids: map[string]int64{"11111111111": 7}}

	batch := []types.NormalizedRecord{
		record("11111111111", types.RawName{NameType: "TRD", NameText: "KNOWN"}),
		record("99999999999", types.RawName{NameType: "TRD", NameText: "UNKNOWN"}),
	}

	require.NoError(t, w.replaceNames(context.Background(), repo, batch))
	require.Len(t, repo.insertedNames, 1)
	assert.Equal(t, "KNOWN", repo.insertedNames[0].NameText)
}

func TestReplaceNamesNoNamesIsNoop(t *testing.T) {
	w := testWriter(10)
	repo := &orderedRepo{}

	require.NoError(t, w.replaceNames(context.Background(), repo, []types.NormalizedRecord{
		record("11111111111"),
	}))
	assert.Empty(t, repo.calls)
}
