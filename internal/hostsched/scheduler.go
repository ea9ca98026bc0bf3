package hostsched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

// Scheduler is an in-process replacement for a platform background-task
// scheduler: tasks register a handler once before start, requests arm at
// most one future invocation per identifier, and every invocation runs
// under an execution budget. The clock is injected so schedule and budget
// behavior can be driven by a fake clock in tests.
type Scheduler struct {
	clock   clockwork.Clock
	budget  time.Duration
	recheck time.Duration
	conn    Connectivity
	logger  *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	pending  map[string]TaskRequest
	running  map[string]context.CancelFunc
	started  bool

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(clock clockwork.Clock, budget, networkRecheck time.Duration, conn Connectivity, logger *zap.Logger) *Scheduler {
	if conn == nil {
		conn = AlwaysOnline{}
	}
	return &Scheduler{
		clock:    clock,
		budget:   budget,
		recheck:  networkRecheck,
		conn:     conn,
		logger:   logger,
		handlers: make(map[string]Handler),
		pending:  make(map[string]TaskRequest),
		running:  make(map[string]context.CancelFunc),
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Register binds a handler to a task identifier. All registrations must
// happen before Start.
func (s *Scheduler) Register(identifier string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("cannot register %q after start", identifier)
	}
	if _, exists := s.handlers[identifier]; exists {
		return fmt.Errorf("task %q already registered", identifier)
	}
	s.handlers[identifier] = handler
	return nil
}

// Submit arms the next invocation of a registered task. A pending request
// for the same identifier is replaced, never stacked.
func (s *Scheduler) Submit(req TaskRequest) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}

	s.mu.Lock()
	if _, ok := s.handlers[req.Identifier]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, req.Identifier)
	}
	s.pending[req.Identifier] = req
	s.mu.Unlock()

	s.logger.Debug("schedule request accepted",
		zap.String("task", req.Identifier),
		zap.Time("earliest_begin", req.EarliestBegin),
		zap.Bool("requires_network", req.RequiresNetwork))
	s.wake()
	return nil
}

// Withdraw removes the pending request for the identifier, if any. A live
// invocation is not touched.
func (s *Scheduler) Withdraw(identifier string) {
	s.mu.Lock()
	_, ok := s.pending[identifier]
	delete(s.pending, identifier)
	s.mu.Unlock()

	if ok {
		s.logger.Info("schedule request withdrawn", zap.String("task", identifier))
		s.wake()
	}
}

// Pending returns the armed request for the identifier, if any.
func (s *Scheduler) Pending(identifier string) mo.Option[TaskRequest] {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[identifier]
	if !ok {
		return mo.None[TaskRequest]()
	}
	return mo.Some(req)
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()
	s.logger.Info("host scheduler started",
		zap.Duration("execution_budget", s.budget),
		zap.Duration("network_recheck", s.recheck))
}

// Stop prevents further dispatch, cancels live invocations and waits for
// their handlers to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	select {
	case <-s.stopCh:
		s.mu.Unlock()
		return
	default:
	}
	close(s.stopCh)
	for identifier, cancel := range s.running {
		s.logger.Info("cancelling running task for shutdown", zap.String("task", identifier))
		cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("host scheduler stopped")
}

// loop sleeps until the earliest pending request is due, then dispatches.
// With nothing pending the timer channel is nil and the loop blocks on
// wake and stop alone.
func (s *Scheduler) loop() {
	defer s.wg.Done()

	var timer clockwork.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		for {
			next, ok := s.nextDeadline()
			if !ok {
				return nil
			}
			d := next.Sub(s.clock.Now())
			if d <= 0 {
				s.dispatchDue()
				continue
			}
			timer = s.clock.NewTimer(d)
			return timer.Chan()
		}
	}

	timerCh := resetTimer()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.wakeCh:
			timerCh = resetTimer()
		case <-timerCh:
			s.dispatchDue()
			timerCh = resetTimer()
		}
	}
}

func (s *Scheduler) nextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next time.Time
	found := false
	for identifier, req := range s.pending {
		if _, live := s.running[identifier]; live {
			continue
		}
		if !found || req.EarliestBegin.Before(next) {
			next = req.EarliestBegin
			found = true
		}
	}
	return next, found
}

// dispatchDue launches every due request whose task is not already running.
// Requests gated on network are pushed back by the recheck interval while
// the agent is offline.
func (s *Scheduler) dispatchDue() {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for identifier, req := range s.pending {
		if _, live := s.running[identifier]; live {
			continue
		}
		if req.EarliestBegin.After(now) {
			continue
		}
		if req.RequiresNetwork && !s.conn.Online() {
			req.EarliestBegin = now.Add(s.recheck)
			s.pending[identifier] = req
			s.logger.Info("network unavailable, deferring task",
				zap.String("task", identifier),
				zap.Time("recheck_at", req.EarliestBegin))
			continue
		}
		delete(s.pending, identifier)
		s.launch(req)
	}
}

// launch starts one invocation. Caller holds s.mu.
func (s *Scheduler) launch(req TaskRequest) {
	ctx, cancel := context.WithCancel(context.Background())
	task := newTask(req.Identifier, ctx, cancel)
	handler := s.handlers[req.Identifier]
	s.running[req.Identifier] = cancel

	budget := s.clock.AfterFunc(s.budget, func() {
		s.logger.Warn("execution budget expired", zap.String("task", req.Identifier))
		task.expire()
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := s.clock.Now()
		s.logger.Info("launching task",
			zap.String("task", req.Identifier),
			zap.Time("earliest_begin", req.EarliestBegin))

		handler(task)

		budget.Stop()
		task.finish()
		completed, success, expired := task.state()

		s.mu.Lock()
		delete(s.running, req.Identifier)
		s.mu.Unlock()
		s.wake()

		elapsed := s.clock.Since(start)
		switch {
		case expired:
			s.logger.Warn("task expired", zap.String("task", req.Identifier), zap.Duration("elapsed", elapsed))
		case completed && success:
			s.logger.Info("task completed", zap.String("task", req.Identifier), zap.Duration("elapsed", elapsed))
		case completed:
			s.logger.Info("task completed with failure", zap.String("task", req.Identifier), zap.Duration("elapsed", elapsed))
		default:
			s.logger.Warn("task handler returned without reporting completion", zap.String("task", req.Identifier))
		}
	}()
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}
