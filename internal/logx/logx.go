// Package logx provides the diagnostic logging used across kpdg's
// analysis passes. Every non-fatal condition ("warn and proceed") is
// surfaced through Warnf; Fatalf is reserved for invariant violations
// that should crash the analysis early rather than produce a silently
// corrupt graph.
package logx

import "log"

// Warnf logs a non-fatal diagnostic and continues.
func Warnf(format string, args ...interface{}) {
	log.Printf("kpdg: warning: "+format, args...)
}

// Fatalf logs an internal invariant violation and terminates the process.
// Reserved for programmer errors (e.g. mutating a sealed pdg.Graph), never
// for recoverable analysis conditions.
func Fatalf(format string, args ...interface{}) {
	log.Fatalf("kpdg: fatal: "+format, args...)
}
