package process

import (
	"context"

	"github.com/pulsedev/pulse/internal/biz/download"
)

// Stats summarizes one analysis pass over a staged batch set.
type Stats struct {
	Packages int
	Records  int
	Days     int
}

// Analyzer consumes the parsed records of one package. Implementations
// carry the actual risk computation, which lives outside this subsystem.
type Analyzer interface {
	Analyze(ctx context.Context, day string, records [][]byte) error
}

// Pipeline feeds a staged batch set through the analyzer. A partial failure
// returns the stats of what did apply together with the aggregate error.
type Pipeline interface {
	Process(ctx context.Context, set download.BatchSet) (Stats, error)
}
