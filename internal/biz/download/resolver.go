package download

import (
	"fmt"

	"github.com/pulsedev/pulse/internal/biz/health"
)

// ScopeFor maps the current health status to the scope the next run must
// fetch. The mapping is total over health.Status: only a healthy subject
// widens the fetch, every monitored or sick state keeps it narrow. An
// unknown status is a programming error and panics.
func ScopeFor(status health.Status) Scope {
	switch status {
	case health.StatusHealthy:
		return ScopeWide
	case health.StatusSelfMonitoring, health.StatusProbablySick, health.StatusConfirmedSick:
		return ScopeNarrow
	default:
		panic(fmt.Sprintf("unhandled health status %q", status))
	}
}
