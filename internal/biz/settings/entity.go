package settings

import "time"

// Setting is one named agent setting row. The store is a plain name/value
// table so externally owned state can be flipped at runtime without a
// schema change.
type Setting struct {
	ID        uint64
	Name      string
	Value     string
	UpdatedAt time.Time
}

const (
	// KeyMonitorStatus holds the persisted health.Status variant.
	KeyMonitorStatus = "monitor_status"
	// KeySyncAuthorized holds "true" or "false" for the authorization signal.
	KeySyncAuthorized = "sync_authorized"
)
