package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pulsedev/pulse/internal/biz/auth"
	"github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/internal/biz/health"
	"github.com/pulsedev/pulse/internal/biz/process"
	"github.com/pulsedev/pulse/internal/biz/run"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ctrlNow = time.Date(2025, 8, 19, 10, 0, 0, 0, time.UTC)

// fakeHandle mimics the latch behavior of a host scheduler task: expiry and
// completion are mutually exclusive, reports after expiry are dropped.
type fakeHandle struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	onExpire func()
	expired  bool
	reports  []bool
}

func newFakeHandle() *fakeHandle {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeHandle{ctx: ctx, cancel: cancel}
}

func (h *fakeHandle) Context() context.Context { return h.ctx }

func (h *fakeHandle) SetExpirationHandler(fn func()) {
	h.mu.Lock()
	h.onExpire = fn
	h.mu.Unlock()
}

func (h *fakeHandle) ReportCompleted(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.expired {
		return
	}
	h.reports = append(h.reports, success)
}

func (h *fakeHandle) expire() {
	h.mu.Lock()
	h.expired = true
	fn := h.onExpire
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
	h.cancel()
}

func (h *fakeHandle) completions() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bool(nil), h.reports...)
}

type memRunRepo struct {
	mu          sync.Mutex
	readErr     error
	lastSuccess mo.Option[time.Time]
	lastOutcome mo.Option[string]
}

func (r *memRunRepo) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *memRunRepo) LastSuccess(ctx context.Context, taskID string) (mo.Option[time.Time], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return mo.None[time.Time](), r.readErr
	}
	return r.lastSuccess, nil
}

func (r *memRunRepo) SetLastSuccess(ctx context.Context, taskID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSuccess = mo.Some(at)
	return nil
}

func (r *memRunRepo) LastOutcome(ctx context.Context, taskID string) (mo.Option[string], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOutcome, nil
}

func (r *memRunRepo) RecordOutcome(ctx context.Context, taskID string, display string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastOutcome = mo.Some(display)
	return nil
}

func (r *memRunRepo) outcome() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOutcome.OrElse("")
}

func (r *memRunRepo) marker() mo.Option[time.Time] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSuccess
}

type cancelHandle struct{ cancel context.CancelFunc }

func (h cancelHandle) Cancel() { h.cancel() }

// fakePipeline serves a scripted result. With block set it holds the
// result until the run context is cancelled, the way a long download
// behaves when the budget cuts it off.
type fakePipeline struct {
	mu        sync.Mutex
	block     bool
	result    download.Result
	started   int
	scope     download.Scope
	discards  []download.BatchSet
	startedCh chan struct{}
}

func newFakePipeline(result download.Result) *fakePipeline {
	return &fakePipeline{result: result, startedCh: make(chan struct{}, 1)}
}

func (p *fakePipeline) Start(ctx context.Context, scope download.Scope) (download.Handle, <-chan download.Result) {
	p.mu.Lock()
	p.started++
	p.scope = scope
	block := p.block
	res := p.result
	p.mu.Unlock()

	select {
	case p.startedCh <- struct{}{}:
	default:
	}

	runCtx, cancel := context.WithCancel(ctx)
	results := make(chan download.Result, 1)
	go func() {
		if block {
			<-runCtx.Done()
			results <- download.Result{Err: runCtx.Err()}
			return
		}
		results <- res
	}()
	return cancelHandle{cancel: cancel}, results
}

func (p *fakePipeline) Discard(set download.BatchSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discards = append(p.discards, set)
	return nil
}

func (p *fakePipeline) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *fakePipeline) discardCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.discards)
}

type fakeProcessor struct {
	mu    sync.Mutex
	stats process.Stats
	err   error
	calls int
}

func (f *fakeProcessor) Process(ctx context.Context, set download.BatchSet) (process.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.stats, f.err
}

type fakeCursor struct {
	mu     sync.Mutex
	marked [][]download.Batch
}

func (c *fakeCursor) Applied(ctx context.Context, packageIDs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (c *fakeCursor) MarkApplied(ctx context.Context, batches []download.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marked = append(c.marked, batches)
	return nil
}

func (c *fakeCursor) ListRecent(ctx context.Context, limit int) ([]download.AppliedPackage, error) {
	return nil, nil
}

func (c *fakeCursor) markedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.marked)
}

type staticHealth struct {
	status health.Status
}

func (s staticHealth) CurrentStatus(context.Context) health.Status { return s.status }

func narrowSet() download.BatchSet {
	return download.BatchSet{
		Scope: download.ScopeNarrow,
		Batches: []download.Batch{
			{PackageID: "2025-08-19/09", Day: "2025-08-19", Hour: 9, Size: 128, Path: "/staging/a.ndjson"},
		},
	}
}

type ctrlFixture struct {
	repo      *memRunRepo
	pipeline  *fakePipeline
	processor *fakeProcessor
	cursor    *fakeCursor
	submitter *recordingSubmitter
	health    health.Provider
	auth      auth.Status
	clock     clockwork.FakeClock
}

func newCtrlFixture() *ctrlFixture {
	return &ctrlFixture{
		repo:      &memRunRepo{},
		pipeline:  newFakePipeline(download.Result{Set: narrowSet()}),
		processor: &fakeProcessor{stats: process.Stats{Packages: 1, Records: 10, Days: 1}},
		cursor:    &fakeCursor{},
		submitter: &recordingSubmitter{},
		health:    staticHealth{status: health.StatusProbablySick},
		auth:      auth.StatusAuthorized,
		clock:     clockwork.NewFakeClockAt(ctrlNow),
	}
}

func (f *ctrlFixture) build(t *testing.T) *Controller {
	t.Helper()
	logger := zap.NewNop()
	emitter := NewEventBus(nil, "test", logger)
	registrar := NewRegistrar("pulse.sync", testPlan(t), staticAuth{status: f.auth}, f.submitter, emitter, f.clock, logger)
	return NewController(
		"pulse.sync",
		run.NewGuard(),
		run.NewRecorder(f.repo, logger),
		f.health,
		f.pipeline,
		f.processor,
		f.cursor,
		registrar,
		emitter,
		f.clock,
		logger,
	)
}

func TestRunSuccessAdvancesMarkerAndRearms(t *testing.T) {
	f := newCtrlFixture()
	c := f.build(t)
	h := newFakeHandle()

	c.HandleTask(h)

	assert.Equal(t, []bool{true}, h.completions())

	marker, ok := f.repo.marker().Get()
	require.True(t, ok)
	assert.True(t, marker.Equal(ctrlNow))

	assert.Equal(t, 1, f.cursor.markedCount())
	assert.Equal(t, 1, f.pipeline.discardCount())
	assert.Contains(t, f.repo.outcome(), "success")
	assert.Contains(t, f.repo.outcome(), "1 packages")

	reqs := f.submitter.all()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].EarliestBegin.Equal(time.Date(2025, 8, 19, 12, 0, 0, 0, time.UTC)))
}

func TestRunScopeFollowsMonitorStatus(t *testing.T) {
	f := newCtrlFixture()
	f.health = staticHealth{status: health.StatusHealthy}
	c := f.build(t)

	c.HandleTask(newFakeHandle())

	assert.Equal(t, download.ScopeWide, f.pipeline.scope)

	f = newCtrlFixture()
	f.health = staticHealth{status: health.StatusConfirmedSick}
	c = f.build(t)

	c.HandleTask(newFakeHandle())

	assert.Equal(t, download.ScopeNarrow, f.pipeline.scope)
}

func TestRunDeclinedAsRedundant(t *testing.T) {
	f := newCtrlFixture()
	f.repo.lastSuccess = mo.Some(ctrlNow.Add(-30 * time.Minute))
	c := f.build(t)
	h := newFakeHandle()

	c.HandleTask(h)

	// declined counts as a successful hand-back, not a failure
	assert.Equal(t, []bool{true}, h.completions())
	assert.Equal(t, 0, f.pipeline.startCount())

	outcome := f.repo.outcome()
	assert.Contains(t, outcome, string(run.ClassificationCancelledRedundant))
	assert.Contains(t, outcome, "30 minutes")

	marker, ok := f.repo.marker().Get()
	require.True(t, ok)
	assert.True(t, marker.Equal(ctrlNow.Add(-30*time.Minute)), "marker must not move on a declined run")

	assert.Len(t, f.submitter.all(), 1, "declined runs still re-arm")
}

func TestRunProceedsPastThreshold(t *testing.T) {
	f := newCtrlFixture()
	f.repo.lastSuccess = mo.Some(ctrlNow.Add(-56 * time.Minute))
	c := f.build(t)
	h := newFakeHandle()

	c.HandleTask(h)

	assert.Equal(t, 1, f.pipeline.startCount())
	assert.Equal(t, []bool{true}, h.completions())
}

func TestRunProceedsWhenMarkerUnreadable(t *testing.T) {
	f := newCtrlFixture()
	f.repo.readErr = errors.New("connection refused")
	c := f.build(t)
	h := newFakeHandle()

	c.HandleTask(h)

	assert.Equal(t, 1, f.pipeline.startCount())
	assert.Equal(t, []bool{true}, h.completions())
}

func TestRunDownloadFailureReportsFailure(t *testing.T) {
	f := newCtrlFixture()
	f.pipeline = newFakePipeline(download.Result{Err: errors.New("index fetch: status 503")})
	c := f.build(t)
	h := newFakeHandle()

	c.HandleTask(h)

	assert.Equal(t, []bool{false}, h.completions())
	assert.True(t, f.repo.marker().IsAbsent())
	assert.Equal(t, 0, f.cursor.markedCount())

	outcome := f.repo.outcome()
	assert.Contains(t, outcome, string(run.ClassificationDownloadError))
	assert.Contains(t, outcome, "503")

	assert.Len(t, f.submitter.all(), 1, "failed runs still re-arm")
}

func TestRunBudgetExpiryRecordsTimeoutWithoutReport(t *testing.T) {
	f := newCtrlFixture()
	f.pipeline = newFakePipeline(download.Result{})
	f.pipeline.block = true
	c := f.build(t)
	h := newFakeHandle()

	done := make(chan struct{})
	go func() {
		c.HandleTask(h)
		close(done)
	}()

	<-f.pipeline.startedCh
	h.expire()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after expiry")
	}

	assert.Empty(t, h.completions(), "expired runs must not report completion")
	assert.Contains(t, f.repo.outcome(), string(run.ClassificationTimeout))
	assert.True(t, f.repo.marker().IsAbsent())
	assert.Len(t, f.submitter.all(), 1, "expired runs still re-arm")
}

func TestRunAnalysisFailureHoldsMarkerBack(t *testing.T) {
	f := newCtrlFixture()
	f.processor.err = errors.New("2 of 10 records malformed on 2025-08-19")
	c := f.build(t)
	h := newFakeHandle()

	c.HandleTask(h)

	// the sync itself delivered, so the run still reports success
	assert.Equal(t, []bool{true}, h.completions())

	outcome := f.repo.outcome()
	assert.Contains(t, outcome, string(run.ClassificationSuccess))
	assert.Contains(t, outcome, "analysis failed")

	assert.True(t, f.repo.marker().IsAbsent(), "marker must not advance past unanalyzed data")
	assert.Equal(t, 0, f.cursor.markedCount())
	assert.Equal(t, 1, f.pipeline.discardCount(), "staged data is discarded either way")
	assert.Len(t, f.submitter.all(), 1)
}

func TestRunRearmSkippedWhenAuthorizationRevoked(t *testing.T) {
	f := newCtrlFixture()
	f.auth = auth.StatusRestricted
	c := f.build(t)
	h := newFakeHandle()

	c.HandleTask(h)

	assert.Equal(t, []bool{true}, h.completions())
	assert.Empty(t, f.submitter.all())
}

func TestRunOutcomeOverwritesPrevious(t *testing.T) {
	f := newCtrlFixture()
	c := f.build(t)

	c.HandleTask(newFakeHandle())
	first := f.repo.outcome()
	require.Contains(t, first, "success")

	// move past the redundancy threshold so the second run executes
	f.clock.Advance(2 * time.Hour)
	f.pipeline = newFakePipeline(download.Result{Err: errors.New("stage failed")})
	c = NewController(
		"pulse.sync",
		run.NewGuard(),
		run.NewRecorder(f.repo, zap.NewNop()),
		f.health,
		f.pipeline,
		f.processor,
		f.cursor,
		NewRegistrar("pulse.sync", testPlan(t), staticAuth{status: f.auth}, f.submitter, NewEventBus(nil, "test", zap.NewNop()), f.clock, zap.NewNop()),
		NewEventBus(nil, "test", zap.NewNop()),
		f.clock,
		zap.NewNop(),
	)
	c.HandleTask(newFakeHandle())

	second := f.repo.outcome()
	assert.NotEqual(t, first, second)
	assert.False(t, strings.Contains(second, "success"), "only the latest outcome is kept")
}
