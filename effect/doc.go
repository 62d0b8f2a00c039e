// Package effect defines the value model of the runtime — Action,
// Effect, Environment — and the Interpreter that executes effects.
//
// # Effects as data
//
// A reducer never performs I/O. It returns Effect values describing
// the work to do: a delayed Action, an async computation, a named
// capability call, or a Parallel/Sequential composition of those.
// The Interpreter executes them outside the store's critical section,
// so an effect can never observe or corrupt in-progress state.
//
// # Failure isolation
//
// Capability dispatches are retried with exponential backoff, gated by
// a per-capability circuit breaker, and routed to an append-only
// dead-letter queue once retries are exhausted. None of this is ever
// surfaced to the dispatch caller: expected failures either become
// domain Actions (via the capability's onError translation) or end up
// in the queue for inspection and replay.
//
// # Feedback
//
// Every follow-up Action an effect yields is handed to a Feed callback
// supplied by the store, which broadcasts it and dispatches it again.
// Effects never touch State directly; they see only values captured at
// dispatch time plus the immutable Environment.
package effect
