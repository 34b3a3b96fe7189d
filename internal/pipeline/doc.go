// Package pipeline drives recordings from discovery to a delivered journal
// entry: acquire, transcribe, and optimize per item, then one summarize and
// one delivery per calendar day represented.
//
// The orchestrator owns all retry policy. Stage clients are single shot and
// classify their failures with the services error markers; the runner
// retries transient failures with bounded exponential backoff and persists
// attempt counts in the run state, so a process restart resumes at the
// lowest incomplete stage with its retry budget intact. Registry completion
// is recorded only after the day's journal entry is durably persisted, and
// a failed delivery never rolls that completion back.
package pipeline
