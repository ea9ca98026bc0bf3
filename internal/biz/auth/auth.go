package auth

import "context"

// Status of the user-granted synchronization authorization.
type Status string

const (
	StatusAuthorized Status = "authorized"
	StatusRestricted Status = "restricted"
)

// Signal exposes the externally owned authorization state. The scheduling
// core never writes it; while restricted, arming is skipped silently and
// resumes on the first arm attempt after authorization returns.
type Signal interface {
	CurrentStatus(ctx context.Context) Status
}
