// Package journal persists pipeline output in SQLite and exposes the queries
// the orchestrator, registry, and report service need.
//
// The Store manages the database connection, schema initialization, and the
// four logical tables plus bookkeeping: raw transcriptions, categories, the
// processed-file registry (unique on item identity), optimized transcriptions
// (each referencing its original), journal entries, and append-only stage
// attempt records. Writes happen from a single orchestrator process; the
// report service only reads, so it can run alongside a scheduled run under
// WAL without coordination.
//
// Treat this package as the single source of truth for persistence semantics;
// when you add new tables or columns, update schema.sql and bump
// schemaVersion.
package journal
