package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vantagehq/vantage/pkg/apperr"
	"github.com/vantagehq/vantage/pkg/types"
)

// maxBoundParams is the PostgreSQL wire-protocol parameter cap; the bound
// value count of any single statement must stay strictly below it.
const maxBoundParams = 65535

const (
	upsertColumnCount = 14
	nameColumnCount   = 3
)

const selectBusinessColumns = `id, abn, abn_status, abn_status_from, entity_type_code,
	entity_type_text, entity_name, given_name, family_name, state, postcode,
	gst_status, gst_from_date, acn, record_last_updated, created_at, updated_at`

// PostgresRepository implements Repository against a pgx Queryer
type PostgresRepository struct {
	q    Queryer
	opts Options
}

// NewRepository creates a repository bound to a pool or transaction
func NewRepository(q Queryer, opts Options) *PostgresRepository {
	return &PostgresRepository{q: q, opts: opts.withDefaults()}
}

// WithQueryer rebinds the repository to another Queryer, typically a
// transaction started by the batch writer
func (r *PostgresRepository) WithQueryer(q Queryer) *PostgresRepository {
	return &PostgresRepository{q: q, opts: r.opts}
}

// statementChunkSize bounds rows per statement so bound params stay strictly
// below the wire-protocol cap
func statementChunkSize(configured, columns int) int {
	ceiling := (maxBoundParams - 1) / columns
	if configured > ceiling {
		return ceiling
	}
	return configured
}

// BulkUpsert inserts businesses keyed by abn, replacing all other columns on
// conflict. The store trigger re-derives search_tokens as a side effect.
func (r *PostgresRepository) BulkUpsert(ctx context.Context, rows []types.Business) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	chunkSize := statementChunkSize(r.opts.UpsertChunkSize, upsertColumnCount)
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.upsertChunk(ctx, rows[start:end]); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func (r *PostgresRepository) upsertChunk(ctx context.Context, rows []types.Business) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO businesses (abn, abn_status, abn_status_from,
		entity_type_code, entity_type_text, entity_name, given_name, family_name,
		state, postcode, gst_status, gst_from_date, acn, record_last_updated) VALUES `)

	args := make([]any, 0, len(rows)*upsertColumnCount)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * upsertColumnCount
		sb.WriteByte('(')
		for j := 1; j <= upsertColumnCount; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteByte(')')
		args = append(args,
			row.ABN, row.ABNStatus, row.ABNStatusFrom,
			row.EntityTypeCode, row.EntityTypeText, row.EntityName,
			row.GivenName, row.FamilyName, row.State, row.Postcode,
			row.GSTStatus, row.GSTFromDate, row.ACN, row.RecordLastUpdated,
		)
	}

	sb.WriteString(` ON CONFLICT (abn) DO UPDATE SET
		abn_status = EXCLUDED.abn_status,
		abn_status_from = EXCLUDED.abn_status_from,
		entity_type_code = EXCLUDED.entity_type_code,
		entity_type_text = EXCLUDED.entity_type_text,
		entity_name = EXCLUDED.entity_name,
		given_name = EXCLUDED.given_name,
		family_name = EXCLUDED.family_name,
		state = EXCLUDED.state,
		postcode = EXCLUDED.postcode,
		gst_status = EXCLUDED.gst_status,
		gst_from_date = EXCLUDED.gst_from_date,
		acn = EXCLUDED.acn,
		record_last_updated = EXCLUDED.record_last_updated,
		updated_at = now()`)

	if _, err := r.q.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("bulk upsert of %d businesses: %w", len(rows), err)
	}
	return nil
}

// BulkInsertNames appends business_names rows, chunked to the parameter cap
func (r *PostgresRepository) BulkInsertNames(ctx context.Context, rows []types.BusinessName) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	chunkSize := statementChunkSize(r.opts.NameChunkSize, nameColumnCount)
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.insertNamesChunk(ctx, rows[start:end]); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func (r *PostgresRepository) insertNamesChunk(ctx context.Context, rows []types.BusinessName) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO business_names (business_id, name_type, name_text) VALUES `)

	args := make([]any, 0, len(rows)*nameColumnCount)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * nameColumnCount
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", base+1, base+2, base+3)
		args = append(args, row.BusinessID, row.NameType, row.NameText)
	}

	if _, err := r.q.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("bulk insert of %d business names: %w", len(rows), err)
	}
	return nil
}

// GetIDsByABNs resolves ABNs to surrogate ids; unknown ABNs are absent from
// the returned mapping
func (r *PostgresRepository) GetIDsByABNs(ctx context.Context, abns []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(abns))
	if len(abns) == 0 {
		return ids, nil
	}

	rows, err := r.q.Query(ctx, `SELECT abn, id FROM businesses WHERE abn = ANY($1)`, abns)
	if err != nil {
		return nil, fmt.Errorf("resolve ids for %d abns: %w", len(abns), err)
	}
	defer rows.Close()

	for rows.Next() {
		var abn string
		var id int64
		if err := rows.Scan(&abn, &id); err != nil {
			return nil, fmt.Errorf("scan abn id row: %w", err)
		}
		ids[abn] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate abn id rows: %w", err)
	}
	return ids, nil
}

// DeleteNamesByBusinessIDs removes every name owned by the given businesses
func (r *PostgresRepository) DeleteNamesByBusinessIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM business_names WHERE business_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete names for %d businesses: %w", len(ids), err)
	}
	return nil
}

// FindByABN fetches a business and its child names in two statements
func (r *PostgresRepository) FindByABN(ctx context.Context, abn string) (*types.Business, int64, error) {
	start := time.Now()

	row := r.q.QueryRow(ctx,
		`SELECT `+selectBusinessColumns+` FROM businesses WHERE abn = $1`, abn)

	b, err := scanBusiness(row)
	if err != nil {
		elapsed := time.Since(start).Milliseconds()
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, elapsed, apperr.NotFound(fmt.Sprintf("Business not found: %s", abn))
		}
		return nil, elapsed, fmt.Errorf("find business by abn: %w", err)
	}

	nameRows, err := r.q.Query(ctx,
		`SELECT id, business_id, name_type, name_text FROM business_names
		 WHERE business_id = $1 ORDER BY id`, b.ID)
	if err != nil {
		return nil, time.Since(start).Milliseconds(), fmt.Errorf("fetch business names: %w", err)
	}
	defer nameRows.Close()

	b.Names = []types.BusinessName{}
	for nameRows.Next() {
		var n types.BusinessName
		if err := nameRows.Scan(&n.ID, &n.BusinessID, &n.NameType, &n.NameText); err != nil {
			return nil, time.Since(start).Milliseconds(), fmt.Errorf("scan business name: %w", err)
		}
		b.Names = append(b.Names, n)
	}
	if err := nameRows.Err(); err != nil {
		return nil, time.Since(start).Milliseconds(), fmt.Errorf("iterate business names: %w", err)
	}

	return b, time.Since(start).Milliseconds(), nil
}

// SearchNative applies a case-insensitive substring match on entity_name.
// It exists as a performance baseline against the index-backed path.
func (r *PostgresRepository) SearchNative(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return r.FindWithFilters(ctx, q)
	}

	conds, args := filterPredicates(q)
	args = append(args, "%"+EscapeLike(term)+"%")
	conds = append(conds, fmt.Sprintf(`entity_name ILIKE $%d`, len(args)))

	return r.paginate(ctx, conds, args, q)
}

// SearchOptimized dispatches the term through the search_tokens inverted
// index using a conjunctive tsquery with a trailing prefix marker
func (r *PostgresRepository) SearchOptimized(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	tsQuery := BuildTSQuery(q.Term)
	if tsQuery == "" {
		return r.FindWithFilters(ctx, q)
	}

	conds, args := filterPredicates(q)
	args = append(args, tsQuery)
	conds = append(conds, fmt.Sprintf(`search_tokens @@ to_tsquery('english', $%d)`, len(args)))

	return r.paginate(ctx, conds, args, q)
}

// FindWithFilters applies the structured filters alone; an empty candidate
// set is a valid result
func (r *PostgresRepository) FindWithFilters(ctx context.Context, q types.SearchQuery) (*types.SearchResult, error) {
	conds, args := filterPredicates(q)
	return r.paginate(ctx, conds, args, q)
}

// filterPredicates turns the structured filters into equality predicates
func filterPredicates(q types.SearchQuery) ([]string, []any) {
	var conds []string
	var args []any

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	add("state", q.State)
	add("postcode", q.Postcode)
	add("entity_type_code", q.EntityType)
	add("abn_status", q.ABNStatus)
	return conds, args
}

// paginate implements the shared envelope: a candidate count capped at
// MaxCandidates, then the requested page ordered by entity_name.
func (r *PostgresRepository) paginate(ctx context.Context, conds []string, args []any, q types.SearchQuery) (*types.SearchResult, error) {
	start := time.Now()

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = 20
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	countArgs := append(append([]any{}, args...), r.opts.MaxCandidates)
	countSQL := fmt.Sprintf(
		`SELECT count(*) FROM (SELECT 1 FROM businesses%s ORDER BY entity_name LIMIT $%d) candidates`,
		where, len(countArgs))

	var total int
	if err := r.q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count search candidates: %w", err)
	}

	pageArgs := append(append([]any{}, args...), limit, (page-1)*limit)
	pageSQL := fmt.Sprintf(
		`SELECT `+selectBusinessColumns+` FROM businesses%s ORDER BY entity_name ASC LIMIT $%d OFFSET $%d`,
		where, len(pageArgs)-1, len(pageArgs))

	rows, err := r.q.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetch search page: %w", err)
	}
	defer rows.Close()

	data := []types.Business{}
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		data = append(data, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return &types.SearchResult{
		Data: data,
		Pagination: types.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
		QueryTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBusiness(row rowScanner) (*types.Business, error) {
	var b types.Business
	err := row.Scan(
		&b.ID, &b.ABN, &b.ABNStatus, &b.ABNStatusFrom,
		&b.EntityTypeCode, &b.EntityTypeText, &b.EntityName,
		&b.GivenName, &b.FamilyName, &b.State, &b.Postcode,
		&b.GSTStatus, &b.GSTFromDate, &b.ACN, &b.RecordLastUpdated,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
