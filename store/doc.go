// Package store implements the effect-execution runtime at the heart
// of the module: a Store owns one State value, serializes reducer
// invocations over it, executes the returned effects concurrently
// outside the critical section, and feeds effect-produced Actions back
// into the loop while broadcasting them to subscribers.
//
// Ordering guarantees:
//   - the state mutation of a dispatch happens-before any of its
//     effects begin,
//   - Sequential sub-effects execute in listed order,
//   - Parallel branches have no relative order,
//   - per-subscriber delivery order is preserved, though a lagging
//     subscriber may skip entries.
//
// Error taxonomy: a reducer panic is a defect that poisons the store;
// effect failures are handled entirely by retry, circuit breaker and
// dead-letter queue and never reach the dispatch caller; domain errors
// travel as ordinary Actions; ErrWaitTimeout is returned only by
// DispatchAndWait and means "no terminal Action observed in time",
// not "the workflow failed".
package store
