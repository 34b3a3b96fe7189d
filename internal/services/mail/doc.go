// Package mail delivers finished journal entries over SMTP.
//
// The sender is a noop when email delivery is disabled in the
// configuration. Address and configuration problems are terminal, a
// refused connection is transient, and as with the other service clients
// the orchestrator owns retries.
package mail
