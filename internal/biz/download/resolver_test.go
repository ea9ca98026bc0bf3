package download

import (
	"testing"

	"github.com/pulsedev/pulse/internal/biz/health"
	"github.com/stretchr/testify/assert"
)

func TestScopeForHealthyWidens(t *testing.T) {
	assert.Equal(t, ScopeWide, ScopeFor(health.StatusHealthy))
}

func TestScopeForEveryOtherStatusNarrows(t *testing.T) {
	for _, status := range health.All() {
		if status == health.StatusHealthy {
			continue
		}
		assert.Equal(t, ScopeNarrow, ScopeFor(status), "status %s", status)
	}
}

func TestScopeForIsTotal(t *testing.T) {
	// every declared variant must map without panicking
	for _, status := range health.All() {
		assert.NotPanics(t, func() {
			ScopeFor(status)
		}, "status %s", status)
	}
}

func TestScopeForPanicsOnUnknownStatus(t *testing.T) {
	assert.Panics(t, func() {
		ScopeFor(health.Status("quarantined"))
	})
}

func TestBatchSetDays(t *testing.T) {
	set := BatchSet{
		Scope: ScopeWide,
		Batches: []Batch{
			{PackageID: "2025-08-18/full", Day: "2025-08-18", Hour: -1, Size: 100},
			{PackageID: "2025-08-19/09", Day: "2025-08-19", Hour: 9, Size: 20},
			{PackageID: "2025-08-19/10", Day: "2025-08-19", Hour: 10, Size: 30},
		},
	}

	assert.Equal(t, []string{"2025-08-18", "2025-08-19"}, set.Days())
	assert.Equal(t, int64(150), set.TotalSize())
}
