// Package drive downloads voice recordings from a Google Drive folder.
//
// The client wraps the Drive v3 REST API with a bearer token: listing the
// configured folder, fetching file content, and deleting source files once
// the pipeline has fully processed them. Calls are rate limited and each
// request is single shot. Failures carry the services error markers, auth
// problems are terminal and throttling or server errors are transient, so
// the orchestrator owns all retry decisions.
package drive
