// Package services defines shared utilities consumed by the pipeline
// orchestrator and the external stage clients.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, item identities, and stage
//     names for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify stage
//     failures as transient (retried with backoff) or terminal (item marked
//     failed, run continues).
//
// Use these helpers when wiring new stage clients so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
