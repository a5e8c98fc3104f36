/*
Package etl implements the ABR ingestion pipeline: a streaming XML parser,
a normalizing adapter, a transactional batch writer, and the orchestrator
that ties them together for one run.

The pipeline is pull-based end to end. The parser reads one XML token at a
time and hands each completed record to the writer before consuming further
input, so the writer's buffer is the only buffering in the pipeline and its
size is bounded by the flush threshold. Each flush is a single transaction:
business upserts keyed by ABN followed by delete-and-reinsert of the child
names, retried with exponential backoff on transient connection failures.

An ingestion run executes in its own goroutine with its own small
connection pool, reporting progress, completion, or failure to the caller
over a typed message channel. The HTTP ingest endpoint and the seed CLI
drive runs through the same orchestrator.
*/
package etl
