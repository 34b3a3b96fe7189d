// Package logging builds slog loggers for the Chronicle pipeline and
// standardizes the structured fields used across packages.
//
// It provides console and JSON handlers, context-carried attributes for run,
// item, and stage identifiers, and field helper constructors so call sites
// stay terse. Use WithContext to derive a logger that carries whatever
// pipeline coordinates the context has accumulated.
package logging
