package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/pulsedev/pulse/internal/biz/download"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAnalyzer struct {
	seen    map[string]int
	failDay string
}

func (a *recordingAnalyzer) Analyze(_ context.Context, day string, records [][]byte) error {
	if a.failDay == day {
		return errors.New("scoring rejected the day")
	}
	if a.seen == nil {
		a.seen = map[string]int{}
	}
	a.seen[day] += len(records)
	return nil
}

func stagedSet(t *testing.T, fs afero.Fs) download.BatchSet {
	t.Helper()
	files := map[string]string{
		"/staging/a.ndjson": "{\"n\":1}\n{\"n\":2}\n\n",
		"/staging/b.ndjson": "{\"n\":3}\n",
	}
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return download.BatchSet{
		Scope: download.ScopeWide,
		Batches: []download.Batch{
			{PackageID: "2025-08-18/full", Day: "2025-08-18", Hour: -1, Path: "/staging/a.ndjson"},
			{PackageID: "2025-08-19/09", Day: "2025-08-19", Hour: 9, Path: "/staging/b.ndjson"},
		},
	}
}

func TestProcessCountsRecordsAndDays(t *testing.T) {
	fs := afero.NewMemMapFs()
	an := &recordingAnalyzer{}
	svc := NewService(fs, an, zap.NewNop())

	stats, err := svc.Process(context.Background(), stagedSet(t, fs))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Packages)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 2, stats.Days)
	assert.Equal(t, 2, an.seen["2025-08-18"])
	assert.Equal(t, 1, an.seen["2025-08-19"])
}

func TestProcessContinuesPastFailingPackage(t *testing.T) {
	fs := afero.NewMemMapFs()
	an := &recordingAnalyzer{failDay: "2025-08-18"}
	svc := NewService(fs, an, zap.NewNop())

	stats, err := svc.Process(context.Background(), stagedSet(t, fs))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2025-08-18/full")

	// the healthy package still applied
	assert.Equal(t, 1, stats.Packages)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 1, an.seen["2025-08-19"])
}

func TestProcessReportsMissingArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := NewService(fs, &recordingAnalyzer{}, zap.NewNop())

	set := download.BatchSet{Batches: []download.Batch{
		{PackageID: "2025-08-19/09", Day: "2025-08-19", Path: "/staging/vanished.ndjson"},
	}}
	stats, err := svc.Process(context.Background(), set)
	require.Error(t, err)
	assert.Zero(t, stats.Packages)
}

func TestProcessStopsOnCancelledContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	an := &recordingAnalyzer{}
	svc := NewService(fs, an, zap.NewNop())
	set := stagedSet(t, fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := svc.Process(ctx, set)
	require.Error(t, err)
	assert.Zero(t, stats.Packages)
	assert.Empty(t, an.seen)
}

func TestSummaryAnalyzerRejectsMalformedRecords(t *testing.T) {
	an := NewSummaryAnalyzer(zap.NewNop())

	err := an.Analyze(context.Background(), "2025-08-19", [][]byte{
		[]byte(`{"ok":true}`),
		[]byte(`{broken`),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 records malformed")

	assert.NoError(t, an.Analyze(context.Background(), "2025-08-19", [][]byte{[]byte(`{"ok":true}`)}))
}
