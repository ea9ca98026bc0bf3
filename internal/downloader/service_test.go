package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	domain "github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/pkg/config"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCursor struct {
	applied map[string]bool
}

func (c *stubCursor) Applied(_ context.Context, ids []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range ids {
		if c.applied[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (c *stubCursor) MarkApplied(context.Context, []domain.Batch) error { return nil }

func (c *stubCursor) ListRecent(context.Context, int) ([]domain.AppliedPackage, error) {
	return nil, nil
}

type testPackage struct {
	id   string
	day  string
	hour int
	body string
}

// the fake clock pins "today" to 2025-08-19
var testNow = time.Date(2025, 8, 19, 12, 0, 0, 0, time.UTC)

func exportServer(t *testing.T, pkgs []testPackage) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	var index indexDocument
	for _, p := range pkgs {
		sum := sha256.Sum256([]byte(p.body))
		path := "packages/" + strings.ReplaceAll(p.id, "/", "_") + ".ndjson"
		index.Packages = append(index.Packages, indexPackage{
			ID:     p.id,
			Day:    p.day,
			Hour:   p.hour,
			Size:   int64(len(p.body)),
			SHA256: hex.EncodeToString(sum[:]),
			Path:   path,
		})
		body := p.body
		mux.HandleFunc("/export/"+path, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}
	mux.HandleFunc("/export/index.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(index)
	})
	return httptest.NewServer(mux)
}

func newTestService(srvURL string, cursor domain.Cursor) (*Service, afero.Fs) {
	fs := afero.NewMemMapFs()
	cfg := config.DownloaderConfig{
		BaseURL:        srvURL + "/export",
		StagingDir:     "/staging",
		WideDays:       3,
		RequestTimeout: 5 * time.Second,
	}
	svc := NewService(cfg, fs, cursor, clockwork.NewFakeClockAt(testNow), zap.NewNop())
	return svc, fs
}

func runPipeline(t *testing.T, svc *Service, scope domain.Scope) domain.Result {
	t.Helper()
	_, results := svc.Start(context.Background(), scope)
	select {
	case res := <-results:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not deliver a result")
		return domain.Result{}
	}
}

func packageIDs(set domain.BatchSet) []string {
	return lo.Map(set.Batches, func(b domain.Batch, _ int) string { return b.PackageID })
}

func catalogue() []testPackage {
	return []testPackage{
		{id: "2025-08-19/09", day: "2025-08-19", hour: 9, body: `{"n":1}` + "\n"},
		{id: "2025-08-19/10", day: "2025-08-19", hour: 10, body: `{"n":2}` + "\n" + `{"n":3}` + "\n"},
		{id: "2025-08-18/full", day: "2025-08-18", hour: -1, body: `{"n":4}` + "\n"},
		{id: "2025-08-18/07", day: "2025-08-18", hour: 7, body: `{"n":5}` + "\n"},
		{id: "2025-08-16/full", day: "2025-08-16", hour: -1, body: `{"n":6}` + "\n"},
		{id: "2025-08-10/full", day: "2025-08-10", hour: -1, body: `{"n":7}` + "\n"},
	}
}

func TestWideScopeFetchesFullDaysAndTodaysIncrements(t *testing.T) {
	srv := exportServer(t, catalogue())
	defer srv.Close()
	svc, fs := newTestService(srv.URL, &stubCursor{})

	res := runPipeline(t, svc, domain.ScopeWide)
	require.NoError(t, res.Err)

	// full days inside the window, ascending, then today's increments;
	// past-day increments and days beyond the window never appear
	assert.Equal(t, []string{
		"2025-08-16/full",
		"2025-08-18/full",
		"2025-08-19/09",
		"2025-08-19/10",
	}, packageIDs(res.Set))

	for _, b := range res.Set.Batches {
		exists, err := afero.Exists(fs, b.Path)
		require.NoError(t, err)
		assert.True(t, exists, "staged file %s", b.Path)
		assert.NotEmpty(t, b.Checksum)
	}
}

func TestNarrowScopeFetchesTodayOnly(t *testing.T) {
	srv := exportServer(t, catalogue())
	defer srv.Close()
	svc, _ := newTestService(srv.URL, &stubCursor{})

	res := runPipeline(t, svc, domain.ScopeNarrow)
	require.NoError(t, res.Err)

	assert.Equal(t, []string{"2025-08-19/09", "2025-08-19/10"}, packageIDs(res.Set))
}

func TestAppliedPackagesAreSkipped(t *testing.T) {
	srv := exportServer(t, catalogue())
	defer srv.Close()
	cursor := &stubCursor{applied: map[string]bool{"2025-08-19/09": true}}
	svc, _ := newTestService(srv.URL, cursor)

	res := runPipeline(t, svc, domain.ScopeNarrow)
	require.NoError(t, res.Err)

	assert.Equal(t, []string{"2025-08-19/10"}, packageIDs(res.Set))
}

func TestChecksumMismatchFailsRunAndCleansUp(t *testing.T) {
	mux := http.NewServeMux()
	index := indexDocument{Packages: []indexPackage{{
		ID:     "2025-08-19/09",
		Day:    "2025-08-19",
		Hour:   9,
		Size:   4,
		SHA256: strings.Repeat("0", 64),
		Path:   "packages/2025-08-19_09.ndjson",
	}}}
	mux.HandleFunc("/export/index.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(index)
	})
	mux.HandleFunc("/export/packages/2025-08-19_09.ndjson", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	svc, fs := newTestService(srv.URL, &stubCursor{})

	res := runPipeline(t, svc, domain.ScopeNarrow)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "checksum mismatch")

	entries, err := afero.ReadDir(fs, "/staging")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCancelAbortsRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/export/index.json", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	svc, _ := newTestService(srv.URL, &stubCursor{})

	h, results := svc.Start(context.Background(), domain.ScopeNarrow)
	go func() {
		time.Sleep(50 * time.Millisecond)
		h.Cancel()
	}()

	select {
	case res := <-results:
		require.Error(t, res.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled run did not abort")
	}
}

func TestDiscardRemovesStagedFiles(t *testing.T) {
	srv := exportServer(t, catalogue())
	defer srv.Close()
	svc, fs := newTestService(srv.URL, &stubCursor{})

	res := runPipeline(t, svc, domain.ScopeNarrow)
	require.NoError(t, res.Err)
	require.NotEmpty(t, res.Set.Batches)

	require.NoError(t, svc.Discard(res.Set))

	for _, b := range res.Set.Batches {
		exists, err := afero.Exists(fs, b.Path)
		require.NoError(t, err)
		assert.False(t, exists, "staged file %s should be gone", b.Path)
	}

	// discarding twice is harmless
	require.NoError(t, svc.Discard(res.Set))
}
