package download

import (
	"time"

	"github.com/samber/lo"
)

// Batch is one staged export package, downloaded and checksum-verified but
// not yet applied.
type Batch struct {
	PackageID string // upstream identifier, e.g. "2025-08-24/full" or "2025-08-25/14"
	Day       string // ISO day the package belongs to
	Hour      int    // increment hour, -1 for full-day packages
	Path      string // staging path of the downloaded archive
	Size      int64
	Checksum  string // hex sha256 as published by the index
}

// BatchSet is the result of one pipeline run.
type BatchSet struct {
	Scope   Scope
	Batches []Batch
}

// Days returns the distinct days covered by the set, in first-seen order.
func (s BatchSet) Days() []string {
	return lo.Uniq(lo.Map(s.Batches, func(b Batch, _ int) string {
		return b.Day
	}))
}

// TotalSize sums the staged archive sizes in bytes.
func (s BatchSet) TotalSize() int64 {
	return lo.SumBy(s.Batches, func(b Batch) int64 {
		return b.Size
	})
}

// AppliedPackage is the durable record of a package a past run already fed
// to the analyzer. Catch-up fetches skip these.
type AppliedPackage struct {
	PackageID string
	Day       string
	Hour      int
	Size      int64
	Checksum  string
	AppliedAt time.Time
}
