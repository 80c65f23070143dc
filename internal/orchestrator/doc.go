// Package orchestrator runs queries against a set of specialists.
//
// # Overview
//
// The Driver is the single entry point. For each query it:
//
//  1. resolves candidate specialists from the registry cache
//  2. opens a tracker session with one participant per specialist
//  3. runs every specialist on a bounded worker pool, selecting a
//     resource for the specialist's domain and calling its generator
//  4. feeds each outcome back into the selection engine
//  5. merges the answers and completes (or fails) the session
//
// Workers never touch the tracker directly. They report transitions to the
// driver goroutine, which is the only writer for its session:
//
//	idle → analyzing → processing → (collaborating) → completing → finished
//
// # Failures
//
// Every failure surfaces as a Result with an ErrorKind and a generic
// message, and SelectAndRun returns an error wrapping the matching
// sentinel. Internal details stay in the logs and the tracker event log.
//
// # Observers
//
// An Observer passed with WithObserver is told about every participant
// transition and every finished query, in order, from the driver goroutine.
package orchestrator
