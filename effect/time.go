package effect

import (
	"time"

	"github.com/rickb777/date/v2/timespan"
)

type TimeSpan = timespan.TimeSpan

func NewTimeSpan(from, to time.Time) TimeSpan {
	return timespan.BetweenTimes(from, to)
}

const epsilon = time.Millisecond

// Now returns a small window around the current instant, absorbing
// clock imprecision when records are compared later.
func Now() TimeSpan {
	now := time.Now()
	return timespan.BetweenTimes(now.Add(-1*epsilon), now.Add(epsilon))
}
