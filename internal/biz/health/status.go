package health

import "context"

// Status is the reported health state of the monitored subject. The set is
// closed: consumers switch over every variant and panic on anything else,
// so adding a variant forces every mapping site to be revisited.
type Status string

const (
	StatusHealthy        Status = "healthy"
	StatusSelfMonitoring Status = "self_monitoring"
	StatusProbablySick   Status = "probably_sick"
	StatusConfirmedSick  Status = "confirmed_sick"
)

// All lists every Status variant in declaration order.
func All() []Status {
	return []Status{StatusHealthy, StatusSelfMonitoring, StatusProbablySick, StatusConfirmedSick}
}

// Valid reports whether s is a known variant.
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusSelfMonitoring, StatusProbablySick, StatusConfirmedSick:
		return true
	default:
		return false
	}
}

// Provider exposes the externally owned health state. The scheduling core
// only ever reads it; implementations fall back to StatusHealthy when the
// backing store cannot be reached.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}
