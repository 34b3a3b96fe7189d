// Package digest produces on-demand reports over already-persisted journal
// data. It re-runs only the summarize and delivery steps for an inclusive
// date range, never touches the registry or run state, and records its
// output as an ondemand journal entry alongside the scheduled dailies.
package digest
