// Package timer implements a one-shot timer that can be armed, reset to a full
// interval and cancelled from any goroutine.
//
// # Generations
//
// Every Arm or Reset starts a new generation. A callback that was already queued by
// the runtime when its timer was stopped compares its generation with the current one
// and returns without calling the user function, so a cancelled or reset timer never
// fires late.
//
// # Idempotency
//
// Cancel on a stopped timer is a no-op. Arm on a running timer keeps the running
// deadline; use Reset to restart the full interval.
package timer
