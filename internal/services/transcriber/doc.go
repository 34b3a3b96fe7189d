// Package transcriber converts downloaded recordings into text through an
// OpenAI-compatible audio transcription endpoint.
//
// Each Transcribe call uploads one file as multipart form data and returns
// the verbose JSON result with the transcript text and reported duration.
// The client never retries on its own. Failures carry the services error
// markers so the orchestrator can distinguish a throttled request from an
// unsupported or corrupt recording.
package transcriber
