// Package llm wraps the chat-completion API shared by the optimize,
// summarize, and report features.
//
// The client issues a single request per call and classifies failures with
// the services error markers: rate limits, timeouts, and upstream 5xx
// responses are transient; authentication rejections and content-policy
// refusals are terminal. Retry and backoff belong to the pipeline
// orchestrator, which persists attempt budgets across restarts.
package llm
