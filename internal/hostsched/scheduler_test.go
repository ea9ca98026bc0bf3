package hostsched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTask = "pulse.sync"

type stubConn struct {
	mu     sync.Mutex
	online bool
}

func (c *stubConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *stubConn) set(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
}

func newTestScheduler(budget time.Duration) (*Scheduler, clockwork.FakeClock) {
	fc := clockwork.NewFakeClockAt(time.Date(2025, 8, 19, 7, 0, 0, 0, time.UTC))
	s := New(fc, budget, 30*time.Second, AlwaysOnline{}, zap.NewNop())
	return s, fc
}

func TestSubmitFiresAtEarliestBegin(t *testing.T) {
	s, fc := newTestScheduler(10 * time.Minute)

	invoked := make(chan string, 1)
	require.NoError(t, s.Register(testTask, func(task *Task) {
		task.ReportCompleted(true)
		invoked <- task.Identifier()
	}))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Submit(TaskRequest{Identifier: testTask, EarliestBegin: fc.Now().Add(time.Hour)}))
	fc.BlockUntil(1)
	fc.Advance(time.Hour)

	select {
	case id := <-invoked:
		assert.Equal(t, testTask, id)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not invoked")
	}
	assert.True(t, s.Pending(testTask).IsAbsent())
}

func TestSubmitReplacesPendingRequest(t *testing.T) {
	s, fc := newTestScheduler(10 * time.Minute)

	var count atomic.Int32
	invoked := make(chan struct{}, 4)
	require.NoError(t, s.Register(testTask, func(task *Task) {
		count.Add(1)
		task.ReportCompleted(true)
		invoked <- struct{}{}
	}))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Submit(TaskRequest{Identifier: testTask, EarliestBegin: fc.Now().Add(2 * time.Hour)}))
	require.NoError(t, s.Submit(TaskRequest{Identifier: testTask, EarliestBegin: fc.Now().Add(time.Hour)}))

	req, ok := s.Pending(testTask).Get()
	require.True(t, ok)
	assert.Equal(t, fc.Now().Add(time.Hour), req.EarliestBegin)

	fc.BlockUntil(1)
	fc.Advance(time.Hour)
	select {
	case <-invoked:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not invoked")
	}

	// the replaced request must not fire a second invocation
	fc.Advance(2 * time.Hour)
	select {
	case <-invoked:
		t.Fatal("replaced request fired")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, int32(1), count.Load())
}

func TestImmediateRequestRunsWithoutAdvance(t *testing.T) {
	s, fc := newTestScheduler(10 * time.Minute)

	invoked := make(chan struct{}, 1)
	require.NoError(t, s.Register(testTask, func(task *Task) {
		task.ReportCompleted(true)
		invoked <- struct{}{}
	}))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Submit(TaskRequest{Identifier: testTask, EarliestBegin: fc.Now()}))

	select {
	case <-invoked:
	case <-time.After(2 * time.Second):
		t.Fatal("due request was not dispatched")
	}
}

func TestBudgetExpiryCancelsRunAndDropsLateReport(t *testing.T) {
	s, fc := newTestScheduler(5 * time.Minute)

	expired := make(chan struct{})
	done := make(chan struct{})
	var captured *Task
	require.NoError(t, s.Register(testTask, func(task *Task) {
		captured = task
		task.SetExpirationHandler(func() { close(expired) })
		<-task.Context().Done()
		task.ReportCompleted(true) // late, must be dropped
		close(done)
	}))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Submit(TaskRequest{Identifier: testTask, EarliestBegin: fc.Now().Add(time.Minute)}))
	fc.BlockUntil(1)
	fc.Advance(time.Minute)

	// the only remaining waiter is the budget timer
	fc.BlockUntil(1)
	fc.Advance(5 * time.Minute)

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("expiration handler did not fire")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not wind down after expiry")
	}

	completed, _, wasExpired := captured.state()
	assert.False(t, completed)
	assert.True(t, wasExpired)
}

func TestOfflineRequestIsDeferredUntilConnectivityReturns(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2025, 8, 19, 7, 0, 0, 0, time.UTC))
	conn := &stubConn{online: false}
	s := New(fc, 10*time.Minute, 30*time.Second, conn, zap.NewNop())

	invoked := make(chan struct{}, 1)
	require.NoError(t, s.Register(testTask, func(task *Task) {
		task.ReportCompleted(true)
		invoked <- struct{}{}
	}))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Submit(TaskRequest{
		Identifier:      testTask,
		EarliestBegin:   fc.Now().Add(time.Minute),
		RequiresNetwork: true,
	}))
	fc.BlockUntil(1)
	fc.Advance(time.Minute)

	// deferred: the recheck timer is armed instead of the handler running
	fc.BlockUntil(1)
	select {
	case <-invoked:
		t.Fatal("task ran while offline")
	case <-time.After(100 * time.Millisecond):
	}

	conn.set(true)
	fc.Advance(30 * time.Second)

	select {
	case <-invoked:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run after connectivity returned")
	}
}

func TestSubmitWhileRunningWaitsForCompletion(t *testing.T) {
	s, fc := newTestScheduler(10 * time.Minute)

	release := make(chan struct{})
	invoked := make(chan struct{}, 2)
	require.NoError(t, s.Register(testTask, func(task *Task) {
		invoked <- struct{}{}
		<-release
		task.ReportCompleted(true)
	}))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Submit(TaskRequest{Identifier: testTask, EarliestBegin: fc.Now()}))
	select {
	case <-invoked:
	case <-time.After(2 * time.Second):
		t.Fatal("first invocation missing")
	}

	// re-arm while the first invocation is still live
	require.NoError(t, s.Submit(TaskRequest{Identifier: testTask, EarliestBegin: fc.Now()}))
	select {
	case <-invoked:
		t.Fatal("second invocation started while the first was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-invoked:
	case <-time.After(2 * time.Second):
		t.Fatal("second invocation did not start after the first completed")
	}
}

func TestRegisterAfterStartFails(t *testing.T) {
	s, _ := newTestScheduler(time.Minute)
	s.Start()
	defer s.Stop()

	assert.Error(t, s.Register("late.task", func(*Task) {}))
}

func TestSubmitUnknownIdentifierFails(t *testing.T) {
	s, fc := newTestScheduler(time.Minute)

	err := s.Submit(TaskRequest{Identifier: "nobody.home", EarliestBegin: fc.Now()})
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestSubmitAfterStopFails(t *testing.T) {
	s, fc := newTestScheduler(time.Minute)
	require.NoError(t, s.Register(testTask, func(task *Task) { task.ReportCompleted(true) }))
	s.Start()
	s.Stop()

	err := s.Submit(TaskRequest{Identifier: testTask, EarliestBegin: fc.Now()})
	assert.ErrorIs(t, err, ErrStopped)
}
