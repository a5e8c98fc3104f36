/*
Package storage provides the PostgreSQL persistence layer for Vantage.

It owns the schema (embedded golang-migrate migrations, including the
search_tokens trigger and its one-shot backfill), connection pool
construction, and the Repository implementation over pgx.

The repository binds to a Queryer, satisfied by both *pgxpool.Pool and
pgx.Tx, so the batch writer can run bulk statements inside its flush
transaction while the serving path runs against a pool.

Two search paths exist over the same corpus. SearchNative is a plain
case-insensitive substring match on entity_name and serves as a performance
baseline. SearchOptimized builds a conjunctive tsquery with a trailing
prefix marker and dispatches through the GIN index on search_tokens. Both
share the capped-candidate pagination envelope: the reported total is
bounded by MaxCandidates, so a saturated total means "many results, refine
filters" rather than a true universe size.
*/
package storage
