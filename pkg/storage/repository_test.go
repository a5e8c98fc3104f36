package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagehq/vantage/pkg/types"
)

// recordingQueryer captures executed statements without a live store
type recordingQueryer struct {
	execSQL  []string
	execArgs [][]any
}

func (r *recordingQueryer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.execSQL = append(r.execSQL, sql)
	r.execArgs = append(r.execArgs, args)
	return pgconn.CommandTag{}, nil
}

func (r *recordingQueryer) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (r *recordingQueryer) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func makeBusinesses(n int) []types.Business {
	rows := make([]types.Business, n)
	for i := range rows {
		rows[i] = types.Business{
			ABN:            "5300408561" + string(rune('0'+i%10)),
			ABNStatus:      "ACT",
			EntityTypeCode: "PRV",
			EntityName:     "VANTAGE SEARCH PTY LTD",
		}
	}
	return rows
}

func TestBulkUpsertEmptyIsNoop(t *testing.T) {
	q := &recordingQueryer{}
	repo := NewRepository(q, Options{})

	count, err := repo.BulkUpsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, q.execSQL)
}

func TestBulkUpsertChunksToConfiguredSize(t *testing.T) {
	q := &recordingQueryer{}
	repo := NewRepository(q, Options{UpsertChunkSize: 100})

	count, err := repo.BulkUpsert(context.Background(), makeBusinesses(250))
	require.NoError(t, err)
	assert.Equal(t, 250, count)
	require.Len(t, q.execSQL, 3)

	assert.Len(t, q.execArgs[0], 100*upsertColumnCount)
	assert.Len(t, q.execArgs[1], 100*upsertColumnCount)
	assert.Len(t, q.execArgs[2], 50*upsertColumnCount)
}

func TestBulkUpsertStatementShape(t *testing.T) {
	q := &recordingQueryer{}
	repo := NewRepository(q, Options{})

	_, err := repo.BulkUpsert(context.Background(), makeBusinesses(2))
	require.NoError(t, err)
	require.Len(t, q.execSQL, 1)

	sql := q.execSQL[0]
	assert.Contains(t, sql, "INSERT INTO businesses")
	assert.Contains(t, sql, "ON CONFLICT (abn) DO UPDATE SET")
	assert.Contains(t, sql, "entity_name = EXCLUDED.entity_name")
	assert.Contains(t, sql, "updated_at = now()")
	// search_tokens belongs to the store trigger, never to the statement
	assert.NotContains(t, sql, "search_tokens")
	assert.Contains(t, sql, "$28")
	assert.NotContains(t, sql, "$29")
}

func TestBulkUpsertNeverExceedsParameterCap(t *testing.T) {
	q := &recordingQueryer{}
	repo := NewRepository(q, Options{UpsertChunkSize: 1 << 20})

	_, err := repo.BulkUpsert(context.Background(), makeBusinesses(5000))
	require.NoError(t, err)

	for _, args := range q.execArgs {
		assert.Less(t, len(args), maxBoundParams)
	}
}

func TestBulkInsertNamesChunks(t *testing.T) {
	q := &recordingQueryer{}
	repo := NewRepository(q, Options{NameChunkSize: 2})

	rows := []types.BusinessName{
		{BusinessID: 1, NameType: "TRD", NameText: "VANTAGE DIRECTORY"},
		{BusinessID: 1, NameType: "BN", NameText: "VANTAGE SEARCH"},
		{BusinessID: 2, NameType: "TRD", NameText: "ACME"},
	}

	count, err := repo.BulkInsertNames(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.Len(t, q.execSQL, 2)
	assert.Contains(t, q.execSQL[0], "INSERT INTO business_names")
	assert.Len(t, q.execArgs[0], 2*nameColumnCount)
	assert.Len(t, q.execArgs[1], 1*nameColumnCount)
}

func TestDeleteNamesByBusinessIDsEmptyIsNoop(t *testing.T) {
	q := &recordingQueryer{}
	repo := NewRepository(q, Options{})

	require.NoError(t, repo.DeleteNamesByBusinessIDs(context.Background(), nil))
	assert.Empty(t, q.execSQL)
}

func TestFilterPredicates(t *testing.T) {
	tests := []struct {
		name      string
		query     types.SearchQuery
		wantConds []string
		wantArgs  []any
	}{
		{
			name:      "no filters",
			query:     types.SearchQuery{},
			wantConds: nil,
			wantArgs:  nil,
		},
		{
			name:      "state only",
			query:     types.SearchQuery{State: "NSW"},
			wantConds: []string{"state = $1"},
			wantArgs:  []any{"NSW"},
		},
		{
			name: "all filters keep argument order",
			query: types.SearchQuery{
				State:      "VIC",
				Postcode:   "3000",
				EntityType: "PRV",
				ABNStatus:  "ACT",
			},
			wantConds: []string{
				"state = $1",
				"postcode = $2",
				"entity_type_code = $3",
				"abn_status = $4",
			},
			wantArgs: []any{"VIC", "3000", "PRV", "ACT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds, args := filterPredicates(tt.query)
			assert.Equal(t, tt.wantConds, conds)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSelectColumnsExcludeSearchTokens(t *testing.T) {
	assert.False(t, strings.Contains(selectBusinessColumns, "search_tokens"))
}
