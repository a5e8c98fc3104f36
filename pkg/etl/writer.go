package etl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/vantagehq/vantage/pkg/apperr"
	"github.com/vantagehq/vantage/pkg/log"
	"github.com/vantagehq/vantage/pkg/metrics"
	"github.com/vantagehq/vantage/pkg/storage"
	"github.com/vantagehq/vantage/pkg/types"
)

// WriterConfig tunes the batch writer
type WriterConfig struct {
	BatchSize     int
	RetryAttempts int
	RetryDelay    time.Duration
	FlushDelay    time.Duration
	RepoOpts      storage.Options
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 5000
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Writer buffers normalized records and flushes them as chunked,
// transactional, retried bulk upserts. It owns a small private connection
// pool distinct from the serving pool.
type Writer struct {
	pool   *pgxpool.Pool
	cfg    WriterConfig
	logger zerolog.Logger

	buffer        []types.NormalizedRecord
	totalInserted int64

	// flushMu serializes flushes; overlapping flushes would exhaust the
	// private pool and reorder name replacement relative to upsert
	flushMu sync.Mutex

	// runBatch executes one drained batch; replaced in tests
	runBatch func(ctx context.Context, batch []types.NormalizedRecord) error
}

// NewWriter creates a batch writer over its private pool
func NewWriter(pool *pgxpool.Pool, cfg WriterConfig) *Writer {
	w := &Writer{
		pool:   pool,
		cfg:    cfg.withDefaults(),
		logger: log.WithComponent("etl.writer"),
	}
	w.runBatch = w.runBatchTx
	return w
}

// TotalInserted returns the rows upserted so far
func (w *Writer) TotalInserted() int64 {
	return w.totalInserted
}

// Add appends a record to the buffer, flushing when the batch threshold is
// reached. Callers are expected to invoke Add from a single goroutine.
func (w *Writer) Add(ctx context.Context, rec types.NormalizedRecord) error {
	w.buffer = append(w.buffer, rec)
	if len(w.buffer) >= w.cfg.BatchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush drains the buffer and writes it as one batch, waiting for the run
// to complete. A no-op when the buffer is empty.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	batch := w.buffer
	w.buffer = nil

	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	timer := metrics.NewTimer()
	if err := w.flushWithRetry(ctx, batch); err != nil {
		return err
	}
	timer.ObserveDuration(metrics.IngestFlushDuration)

	w.totalInserted += int64(len(batch))
	metrics.IngestRecordsInserted.Add(float64(len(batch)))
	w.logger.Debug().Int("rows", len(batch)).Int64("total", w.totalInserted).Msg("Batch flushed")

	// Pacing: cap write throughput so managed stores don't rate-limit us
	if w.cfg.FlushDelay > 0 {
		select {
		case <-time.After(w.cfg.FlushDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// flushWithRetry retries transient connection failures with exponential
// backoff; other failures surface immediately
func (w *Writer) flushWithRetry(ctx context.Context, batch []types.NormalizedRecord) error {
	attempt := 0
	op := func() error {
		err := w.runBatch(ctx, batch)
		if err == nil {
			return nil
		}
		if !apperr.IsTransient(err) {
			return backoff.Permanent(err)
		}
		attempt++
		metrics.IngestFlushRetries.Inc()
		w.logger.Warn().Err(err).Int("attempt", attempt).Msg("Transient flush failure, retrying")
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.cfg.RetryDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	return backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(w.cfg.RetryAttempts)), ctx))
}

// runBatchTx executes one batch inside a single transaction: upsert
// businesses, then replace their child names. A partial batch never lands.
func (w *Writer) runBatchTx(ctx context.Context, batch []types.NormalizedRecord) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin flush transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	repo := storage.NewRepository(tx, w.cfg.RepoOpts)

	businesses := make([]types.Business, len(batch))
	for i, rec := range batch {
		businesses[i] = rec.Business
	}
	if _, err := repo.BulkUpsert(ctx, businesses); err != nil {
		return err
	}

	if err := w.replaceNames(ctx, repo, batch); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit flush transaction: %w", err)
	}
	return nil
}

// replaceNames deletes and re-inserts the child names of every business in
// the batch that carries names, so a re-ingested record's names reflect
// only the latest source
func (w *Writer) replaceNames(ctx context.Context, repo storage.Repository, batch []types.NormalizedRecord) error {
	type flatName struct {
		abn  string
		name types.RawName
	}
	var flat []flatName
	seen := make(map[string]struct{})
	var abns []string

	for _, rec := range batch {
		for _, n := range rec.Names {
			flat = append(flat, flatName{abn: rec.Business.ABN, name: n})
			if _, ok := seen[rec.Business.ABN]; !ok {
				seen[rec.Business.ABN] = struct{}{}
				abns = append(abns, rec.Business.ABN)
			}
		}
	}
	if len(flat) == 0 {
		return nil
	}

	ids, err := repo.GetIDsByABNs(ctx, abns)
	if err != nil {
		return err
	}

	idList := make([]int64, 0, len(ids))
	for _, id := range ids {
		idList = append(idList, id)
	}
	if err := repo.DeleteNamesByBusinessIDs(ctx, idList); err != nil {
		return err
	}

	rows := make([]types.BusinessName, 0, len(flat))
	for _, f := range flat {
		id, ok := ids[f.abn]
		if !ok {
			// Should not occur once the upsert landed; skip defensively
			w.logger.Warn().Str("abn", f.abn).Msg("Unresolved ABN while inserting names")
			continue
		}
		rows = append(rows, types.BusinessName{
			BusinessID: id,
			NameType:   f.name.NameType,
			NameText:   f.name.NameText,
		})
	}
	_, err = repo.BulkInsertNames(ctx, rows)
	return err
}

// Destroy flushes any buffered records, closes the private pool, and
// returns the run totals
func (w *Writer) Destroy(ctx context.Context) (types.IngestResult, error) {
	if err := w.Flush(ctx); err != nil {
		return types.IngestResult{}, err
	}
	if w.pool != nil {
		w.pool.Close()
	}
	return types.IngestResult{TotalInserted: w.totalInserted}, nil
}
