package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vantagehq/vantage/pkg/types"
)

// Queryer is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
// Binding the repository to a Queryer lets the batch writer run the same
// statements inside its flush transaction.
type Queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository defines the store operations over businesses and their names
type Repository interface {
	// BulkUpsert inserts rows keyed by abn, replacing all other columns on
	// conflict. Returns the count of rows submitted.
	BulkUpsert(ctx context.Context, rows []types.Business) (int, error)

	// BulkInsertNames appends business_names rows
	BulkInsertNames(ctx context.Context, rows []types.BusinessName) (int, error)

	// GetIDsByABNs resolves ABNs to surrogate ids; unknown ABNs are absent
	GetIDsByABNs(ctx context.Context, abns []string) (map[string]int64, error)

	// DeleteNamesByBusinessIDs removes all names owned by the given businesses
	DeleteNamesByBusinessIDs(ctx context.Context, ids []int64) error

	// FindByABN fetches a business and its names; query time in milliseconds
	FindByABN(ctx context.Context, abn string) (*types.Business, int64, error)

	// SearchNative is the baseline substring-match path
	SearchNative(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error)

	// SearchOptimized is the index-backed full-text path
	SearchOptimized(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error)

	// FindWithFilters applies structured filters only
	FindWithFilters(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error)
}

// Options tunes repository behavior
type Options struct {
	// MaxCandidates caps the candidate set used for pagination counts
	MaxCandidates int

	// UpsertChunkSize bounds rows per bulk upsert statement
	UpsertChunkSize int

	// NameChunkSize bounds rows per bulk name insert statement
	NameChunkSize int
}

func (o Options) withDefaults() Options {
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = 5000
	}
	if o.UpsertChunkSize <= 0 {
		o.UpsertChunkSize = 1000
	}
	if o.NameChunkSize <= 0 {
		o.NameChunkSize = 1000
	}
	return o
}
