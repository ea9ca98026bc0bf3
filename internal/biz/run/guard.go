package run

import (
	"time"

	"github.com/samber/mo"
)

// RedundancyThreshold is how soon after a fully successful run a new
// invocation is considered redundant. The host may hand us an opportunistic
// slot right after a scheduled one; declining those saves the network and
// analysis cost without giving the slot back as a failure.
const RedundancyThreshold = 55 * time.Minute

// Guard decides whether a triggered run is worth executing.
type Guard struct {
	threshold time.Duration
}

func NewGuard() *Guard {
	return &Guard{threshold: RedundancyThreshold}
}

// ShouldRun reports whether a run starting at now should proceed given the
// time of the last fully successful run. A missing marker always runs.
func (g *Guard) ShouldRun(now time.Time, lastSuccess mo.Option[time.Time]) bool {
	last, ok := lastSuccess.Get()
	if !ok {
		return true
	}
	return now.Sub(last) >= g.threshold
}
