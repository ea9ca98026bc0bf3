package download

import "context"

// Handle controls one in-flight download run. Cancel is idempotent and safe
// to call in any state, including after the result has been delivered.
type Handle interface {
	Cancel()
}

// Result carries the single terminal outcome of a pipeline run. Exactly one
// of Set and Err is meaningful.
type Result struct {
	Set BatchSet
	Err error
}

// Pipeline stages export packages for processing. Start returns immediately
// with a cancellable handle and a channel that yields exactly one Result.
// Discard releases the staged data of a delivered set; it is called whether
// or not processing succeeded.
type Pipeline interface {
	Start(ctx context.Context, scope Scope) (Handle, <-chan Result)
	Discard(set BatchSet) error
}

// Cursor remembers which packages earlier runs already applied.
type Cursor interface {
	Applied(ctx context.Context, packageIDs []string) (map[string]bool, error)
	MarkApplied(ctx context.Context, batches []Batch) error
	ListRecent(ctx context.Context, limit int) ([]AppliedPackage, error)
}
