// Package notifications sends operational push notifications about pipeline
// runs through ntfy. These are for the operator, separate from the journal
// email delivered to the diary owner. When no topic is configured every
// notification is a noop.
package notifications
