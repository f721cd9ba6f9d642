// Package core holds the product domain: CSV row parsing, field validation,
// the upsert engine, the ingestion orchestrator and the Service used by the
// HTTP, GraphQL and worker entry points.
//
// # Ingestion
//
// A document is processed in one storage session:
//
//  1. [RowReader] splits the text into header-keyed [RawRow] values
//  2. [ValidateRow] coerces each row into a [NormalizedRecord]
//  3. [UpsertEngine.ApplyRecord] updates the product with the same
//     (part_number, branch_id) or stages a new one
//  4. the session commits once at the end
//
// Any failure rolls the whole document back and is reported as a single
// [*IngestError]. Rows apply in file order, so a later row for the same key
// overwrites an earlier one. When two documents race to insert the same key,
// the first commit wins and the other fails with [ErrConflict].
//
// # Collaborators
//
// Storage, queue, cache and search index sit behind the interfaces in
// types.go ([SessionFactory], [ProductReader], [Dispatcher], [ListCache],
// [ProductSearcher], [ProductIndexer]). Only the session factory and the
// reader are required.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]:
//
//   - DB001-DB008: storage errors (integrity, connection, availability)
//   - VAL001-VAL008: validation and request errors
//   - FILE001-FILE004: upload file errors
//   - JOB001-JOB003: ingestion job errors
//   - SRCH001: search index errors
//   - UPL002-UPL005: upload concurrency and cancellation
package core
