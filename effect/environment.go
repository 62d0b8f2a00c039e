package effect

import (
	"github.com/google/uuid"

	"github.com/on-the-ground/restor_ive_go/ports"
)

// Environment is the immutable bag of capability ports available to
// effect execution. It is fixed for the lifetime of a store; effects
// read it concurrently without synchronization.
//
// Journal and Bus may be left nil when the domain uses no such
// capability; Clock and NewID are always populated via Normalize.
type Environment struct {
	Clock   ports.Clock
	Journal ports.EventStore
	Bus     ports.Bus
	NewID   func() string
}

// Normalize fills the mandatory fields with defaults: the system clock
// and a uuid generator.
func (e Environment) Normalize() Environment {
	if e.Clock == nil {
		e.Clock = ports.SystemClock()
	}
	if e.NewID == nil {
		e.NewID = uuid.NewString
	}
	return e
}
