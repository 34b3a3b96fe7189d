// Package config loads, normalizes, and validates Chronicle configuration
// data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and CHRONICLE_DRIVE_TOKEN. The Config type centralizes every
// knob the scheduler, orchestrator, and CLI need, so the run cadence, stage
// credentials, and retry budgets are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
// Validation is fail-closed: a run never starts against a broken config.
package config
