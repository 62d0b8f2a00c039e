package saga

import (
	"time"

	"github.com/on-the-ground/restor_ive_go/effect"
)

// KindTimeout is the action kind shared by all step timeout guards.
const KindTimeout = "saga.timeout"

// Timeout is the guard Action a forward transition schedules alongside
// the next collaborator command. It is scoped to the step it guards:
// a machine that has already advanced ignores it.
type Timeout struct {
	Step Step
}

func (Timeout) Kind() string { return KindTimeout }

// GuardStep returns a delayed effect feeding a Timeout for step after d.
func GuardStep(step Step, d time.Duration) effect.Effect {
	return effect.Delayed(d, Timeout{Step: step})
}
