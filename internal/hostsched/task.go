package hostsched

import (
	"context"
	"sync"
)

// Task is the handle passed to a handler for one invocation. Expiry and
// completion are mutually exclusive and both latch: whichever is recorded
// first decides the invocation, anything later is dropped.
type Task struct {
	identifier string
	ctx        context.Context
	cancel     context.CancelFunc

	mu        sync.Mutex
	onExpire  func()
	expired   bool
	completed bool
	success   bool
	finished  bool
}

func newTask(identifier string, ctx context.Context, cancel context.CancelFunc) *Task {
	return &Task{identifier: identifier, ctx: ctx, cancel: cancel}
}

func (t *Task) Identifier() string { return t.identifier }

// Context is cancelled when the execution budget expires or the scheduler
// shuts down.
func (t *Task) Context() context.Context { return t.ctx }

// SetExpirationHandler registers the callback invoked when the execution
// budget lapses. Register it before starting long work; if the budget
// already expired the callback fires immediately.
func (t *Task) SetExpirationHandler(fn func()) {
	t.mu.Lock()
	alreadyExpired := t.expired
	if !alreadyExpired {
		t.onExpire = fn
	}
	t.mu.Unlock()

	if alreadyExpired && fn != nil {
		fn()
	}
}

// ReportCompleted records the invocation result. The first report wins and
// reports after expiry are dropped, the scheduler has already concluded the
// invocation by then.
func (t *Task) ReportCompleted(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expired || t.completed {
		return
	}
	t.completed = true
	t.success = success
}

// expire latches budget expiry, runs the expiration handler, then cancels
// the task context. A task that already completed or finished is left
// untouched.
func (t *Task) expire() {
	t.mu.Lock()
	if t.expired || t.completed || t.finished {
		t.mu.Unlock()
		return
	}
	t.expired = true
	fn := t.onExpire
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
	t.cancel()
}

// finish marks the handler as returned, so a budget timer firing late is
// ignored, and releases the context.
func (t *Task) finish() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
	t.cancel()
}

func (t *Task) state() (completed, success, expired bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.success, t.expired
}
