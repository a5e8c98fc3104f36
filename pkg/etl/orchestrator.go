package etl

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vantagehq/vantage/pkg/apperr"
	"github.com/vantagehq/vantage/pkg/config"
	"github.com/vantagehq/vantage/pkg/log"
	"github.com/vantagehq/vantage/pkg/metrics"
	"github.com/vantagehq/vantage/pkg/storage"
	"github.com/vantagehq/vantage/pkg/types"
)

// MessageKind discriminates orchestrator messages
type MessageKind string

const (
	MessageProgress MessageKind = "progress"
	MessageDone     MessageKind = "done"
	MessageError    MessageKind = "error"
)

// Message is one event from a running ingestion. Exactly one payload field
// is set, matching Kind.
type Message struct {
	Kind      MessageKind
	Processed int64
	Done      *types.IngestResult
	Err       string
}

// Orchestrator owns the parser-writer pipeline for one ingestion run. The
// pipeline runs in its own goroutine with its own connection pool so that
// long parsing work cannot block request serving.
type Orchestrator struct {
	cfg *config.Config
}

// NewOrchestrator creates an orchestrator bound to configuration
func NewOrchestrator(cfg *config.Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Run starts an ingestion of the given file and returns its message stream.
// The channel carries progress messages, then exactly one done or error
// message, and is closed when the run is over.
func (o *Orchestrator) Run(ctx context.Context, filePath string) (<-chan Message, error) {
	if filePath == "" {
		return nil, apperr.Validation("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation,
			fmt.Sprintf("cannot open source file %s", filePath), err)
	}

	pool, err := storage.IngestPool(ctx, o.cfg)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create ingestion pool: %w", err)
	}

	runID := uuid.NewString()
	logger := log.WithRunID(runID)

	writer := NewWriter(pool, WriterConfig{
		BatchSize:     o.cfg.ETL.BatchSize,
		RetryAttempts: o.cfg.ETL.RetryAttempts,
		RetryDelay:    time.Duration(o.cfg.ETL.RetryDelayMs) * time.Millisecond,
		FlushDelay:    time.Duration(o.cfg.ETL.FlushDelayMs) * time.Millisecond,
		RepoOpts:      storage.Options{MaxCandidates: o.cfg.Search.MaxCandidates},
	})

	messages := make(chan Message, 16)
	parser := NewParser(f, writer)
	parser.OnProgress = func(processed int64) {
		select {
		case messages <- Message{Kind: MessageProgress, Processed: processed}:
		default:
			// A slow consumer must not stall the pipeline; progress is
			// advisory and the next tick carries the newer count.
		}
	}

	started := time.Now()
	logger.Info().Str("file", filePath).Msg("Ingestion started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer f.Close()
		if _, err := parser.Parse(gctx); err != nil {
			return err
		}
		return writer.Flush(gctx)
	})

	go func() {
		defer close(messages)

		err := g.Wait()
		result, destroyErr := writer.Destroy(context.WithoutCancel(ctx))
		if err == nil {
			err = destroyErr
		}
		if err != nil {
			logger.Error().Err(err).Msg("Ingestion failed")
			metrics.IngestRunsTotal.WithLabelValues("error").Inc()
			messages <- Message{Kind: MessageError, Err: err.Error()}
			return
		}

		result.TotalProcessed = parser.Processed()
		result.DurationMs = time.Since(started).Milliseconds()
		logger.Info().
			Int64("processed", result.TotalProcessed).
			Int64("inserted", result.TotalInserted).
			Int64("duration_ms", result.DurationMs).
			Msg("Ingestion complete")
		metrics.IngestRunsTotal.WithLabelValues("done").Inc()
		messages <- Message{Kind: MessageDone, Done: &result}
	}()

	return messages, nil
}

// RunAndWait runs an ingestion to completion, resolving on the first done
// message and failing on the first error message
func (o *Orchestrator) RunAndWait(ctx context.Context, filePath string) (types.IngestResult, error) {
	messages, err := o.Run(ctx, filePath)
	if err != nil {
		return types.IngestResult{}, err
	}

	for msg := range messages {
		switch msg.Kind {
		case MessageDone:
			return *msg.Done, nil
		case MessageError:
			return types.IngestResult{}, fmt.Errorf("ingestion failed: %s", msg.Err)
		}
	}
	return types.IngestResult{}, fmt.Errorf("ingestion ended without completion")
}
