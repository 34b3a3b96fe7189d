// Package logs reads the pipeline log file for the CLI.
//
// It supports "last N lines" snapshots with bounded memory usage and a
// follow mode that polls the file for appended lines, resuming from a byte
// offset so rotation back to zero is handled. Callers cancel the context to
// stop following.
package logs
