package effect

import (
	"context"
	"fmt"
	"time"
)

// Effect describes deferred work as data. A reducer returns Effects
// instead of performing I/O; the Interpreter executes them later,
// outside the store's critical section.
//
// Effect is a sealed interface: only the variants constructed in this
// package exist, and the interpreter matches on them exhaustively.
type Effect interface {
	fmt.Stringer
	effect()
}

// None returns the empty effect.
func None() Effect { return none{} }

type none struct{}

func (none) effect()        {}
func (none) String() string { return "none" }

// Delayed schedules action to be fed back after d, measured on the
// Environment clock.
func Delayed(d time.Duration, action Action) Effect {
	return delayed{after: d, action: action}
}

type delayed struct {
	after  time.Duration
	action Action
}

func (delayed) effect() {}
func (e delayed) String() string {
	return fmt.Sprintf("delayed(%s, %s)", e.after, e.action.Kind())
}

// Async runs an arbitrary computation. A nil follow-up Action means
// fire-and-forget; an error is an EffectFailure and yields no
// follow-up.
func Async(fn func(ctx context.Context) (Action, error)) Effect {
	return async{fn: fn}
}

type async struct {
	fn func(ctx context.Context) (Action, error)
}

func (async) effect()        {}
func (async) String() string { return "async" }

// Parallel runs sub-effects concurrently. Branches feed their
// follow-up Actions back independently, in completion order.
func Parallel(effects ...Effect) Effect { return parallel{effects: effects} }

type parallel struct {
	effects []Effect
}

func (parallel) effect() {}
func (e parallel) String() string {
	return fmt.Sprintf("parallel(%d)", len(e.effects))
}

// Sequential runs sub-effects strictly in order: the next one starts
// only after the previous computation and its follow-up dispatch have
// completed.
func Sequential(effects ...Effect) Effect { return sequential{effects: effects} }

type sequential struct {
	effects []Effect
}

func (sequential) effect() {}
func (e sequential) String() string {
	return fmt.Sprintf("sequential(%d)", len(e.effects))
}

// CapabilityCall invokes one injected port. The interpreter is
// capability-agnostic: it only knows the call's name (for the circuit
// breaker and dead-letter queue) and the domain-supplied translation
// of its outcome into Actions.
type CapabilityCall func(ctx context.Context, env Environment) (any, error)

// Capability dispatches a named port call guarded by retry and the
// per-capability circuit breaker. onSuccess and onError translate the
// outcome into follow-up Actions; either may be nil, and onSuccess may
// return nil for fire-and-forget calls.
func Capability(
	name string,
	call CapabilityCall,
	onSuccess func(any) Action,
	onError func(error) Action,
) Effect {
	return capability{name: name, call: call, onSuccess: onSuccess, onError: onError}
}

type capability struct {
	name      string
	call      CapabilityCall
	onSuccess func(any) Action
	onError   func(error) Action
}

func (capability) effect() {}
func (e capability) String() string {
	return fmt.Sprintf("capability(%s)", e.name)
}
