// Package scheduler triggers pipeline runs on a fixed daily cadence. Each
// trigger invokes the run function synchronously and waits for it to settle
// before arming the next one, so runs never overlap. A flock file guards
// against a second process doing the same.
package scheduler
