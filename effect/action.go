package effect

// Action is a command or event flowing through a store. Actions must be
// cheap to copy: the same value is broadcast to every subscriber and
// fed back into the dispatch loop simultaneously.
type Action interface {
	Kind() string
}

// Correlated is implemented by Actions that carry an opaque correlation
// id, matching an initiating dispatch to its eventual terminal Action.
type Correlated interface {
	Action
	CorrelationID() string
}

// Correlates returns a predicate selecting Actions correlated with id,
// for use with DispatchAndWait.
func Correlates(id string) func(Action) bool {
	return func(a Action) bool {
		c, ok := a.(Correlated)
		return ok && c.CorrelationID() == id
	}
}
