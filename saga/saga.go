// Package saga models a multi-step, multi-aggregate workflow as a
// reducer whose state is an explicit step machine. Transitions are
// keyed by (current step, action kind); anything else — out-of-order,
// duplicate, or unexpected Actions — is ignored without state change
// or effects. On failure the machine walks its completed steps in
// reverse, emitting one compensating command per step.
package saga

import (
	"time"

	"github.com/on-the-ground/restor_ive_go/effect"
	"github.com/on-the-ground/restor_ive_go/reducer"
)

// Step names one stage of a workflow. StepCompleted and StepFailed are
// terminal: a state that reached them accepts no further transitions.
type Step string

const (
	StepCompleted Step = "completed"
	StepFailed    Step = "failed"
)

// StepRecord captures a completed step together with the identifier
// its compensation will need (a reservation id, an order id, ...).
type StepRecord struct {
	Step       Step
	ResourceID string
}

// State is one workflow run. Completed is append-only; compensation
// walks it in reverse.
type State struct {
	Current   Step
	Completed []StepRecord
	Reason    string
	StartedAt time.Time
}

func NewState(initial Step, startedAt time.Time) State {
	return State{Current: initial, StartedAt: startedAt}
}

func (s *State) Terminal() bool {
	return s.Current == StepCompleted || s.Current == StepFailed
}

// Advance records the step just completed (with the identifier needed
// to compensate it) and moves the machine to next.
func (s *State) Advance(completed Step, resourceID string, next Step) {
	s.Completed = append(s.Completed, StepRecord{Step: completed, ResourceID: resourceID})
	s.Current = next
}

// Transition reacts to an Action arriving at a given step. Like any
// reducer it mutates state in place and returns the effects to run.
type Transition func(s *State, a effect.Action, env effect.Environment) []effect.Effect

// Compensation builds the compensating command effect for one
// completed step.
type Compensation func(rec StepRecord, env effect.Environment) effect.Effect

type transitionKey struct {
	step Step
	kind string
}

// Machine is a transition table over (step, action kind) pairs plus
// per-step compensations. Build it once, then mount its Reducer on a
// store like any other reducer.
type Machine struct {
	transitions   map[transitionKey]Transition
	compensations map[Step]Compensation
}

func NewMachine() *Machine {
	return &Machine{
		transitions:   make(map[transitionKey]Transition),
		compensations: make(map[Step]Compensation),
	}
}

// On registers the transition taken when an Action of the given kind
// arrives while the machine is at step.
func (m *Machine) On(step Step, kind string, t Transition) *Machine {
	m.transitions[transitionKey{step: step, kind: kind}] = t
	return m
}

// OnTimeout registers the reaction to a timeout guard scoped to step.
// Guards that fire after the machine has already moved on are ignored.
func (m *Machine) OnTimeout(step Step, t Transition) *Machine {
	return m.On(step, KindTimeout, func(s *State, a effect.Action, env effect.Environment) []effect.Effect {
		guard, ok := a.(Timeout)
		if !ok || guard.Step != s.Current {
			return nil
		}
		return t(s, a, env)
	})
}

// Compensate registers the compensating command emitted for a
// completed step when the workflow fails.
func (m *Machine) Compensate(step Step, c Compensation) *Machine {
	m.compensations[step] = c
	return m
}

// Reducer adapts the machine to the ordinary reducer contract.
// Terminal states and unmatched (step, kind) pairs produce no state
// change and no effects — the ordering/duplicate-tolerance guarantee.
func (m *Machine) Reducer() reducer.Func[State] {
	return func(s *State, a effect.Action, env effect.Environment) []effect.Effect {
		if s.Terminal() {
			return nil
		}
		t, ok := m.transitions[transitionKey{step: s.Current, kind: a.Kind()}]
		if !ok {
			return nil
		}
		return t(s, a, env)
	}
}

// Fail moves the machine to StepFailed and returns the compensating
// effects for every completed step, newest first, followed by any
// terminal notification effects. Steps without a registered
// compensation are skipped; uncompleted steps are never compensated.
func (m *Machine) Fail(s *State, reason string, env effect.Environment, notify ...effect.Effect) []effect.Effect {
	s.Current = StepFailed
	s.Reason = reason
	var effects []effect.Effect
	for i := len(s.Completed) - 1; i >= 0; i-- {
		rec := s.Completed[i]
		comp, ok := m.compensations[rec.Step]
		if !ok {
			continue
		}
		effects = append(effects, comp(rec, env))
	}
	return append(effects, notify...)
}

// Complete moves the machine to its terminal success step.
func Complete(s *State) {
	s.Current = StepCompleted
}
