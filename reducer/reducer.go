// Package reducer defines the pure-logic contract of the runtime and
// the utilities that compose reducers over larger state.
package reducer

import (
	"github.com/on-the-ground/restor_ive_go/effect"
)

// Func is a reducer: it mutates state in place in response to an
// Action and returns the effects to execute afterwards. Reducers must
// be pure apart from that mutation — all I/O is described as effects.
// The store guarantees at most one invocation runs at a time.
type Func[S any] func(state *S, a effect.Action, env effect.Environment) []effect.Effect

// Combine invokes reducers in order against the same state and
// concatenates their effect lists, first-to-last.
func Combine[S any](reducers ...Func[S]) Func[S] {
	return func(state *S, a effect.Action, env effect.Environment) []effect.Effect {
		var effects []effect.Effect
		for _, r := range reducers {
			effects = append(effects, r(state, a, env)...)
		}
		return effects
	}
}

// Scope lifts a reducer over a child state into one over a parent
// state via an accessor. Action and Environment pass through unchanged.
func Scope[P, C any](r Func[C], slice func(*P) *C) Func[P] {
	return func(state *P, a effect.Action, env effect.Environment) []effect.Effect {
		return r(slice(state), a, env)
	}
}
