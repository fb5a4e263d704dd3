// Package concurrency implements the admission pool that sits between the
// router and the executor: a bounded-concurrency, priority-ordered queue
// with queue-wait-only timeouts, deterministic worker release, and live
// statistics. One Manager exists per configured pool (one default pool
// plus zero or more path-scoped pools selected by internal/routing's
// QueueSelector).
package concurrency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/inflaborg/ccrelay-sub001/internal/pqueue"
	"github.com/inflaborg/ccrelay-sub001/internal/relay"
	"github.com/inflaborg/ccrelay-sub001/internal/semaphore"
	"github.com/inflaborg/ccrelay-sub001/internal/tracing"
)

// nopHandler is a slog.Handler that discards all log records. Enabled
// returns false so slog skips formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// defaultMaxQueueSize is the spec's 0-means-unset fallback.
const defaultMaxQueueSize = 10000

// Executor runs an admitted task to completion. Implementations must
// respect task.Cancel's context and must not retry on failure — at most
// one upstream attempt per submission.
type Executor interface {
	Execute(task *relay.Task) relay.ProxyResult
}

// StatsObserver receives a snapshot after every state transition, for
// mirroring into internal/metrics. Optional; nil disables mirroring.
type StatsObserver interface {
	Observe(Stats)
}

// Config bounds one Manager's behavior.
type Config struct {
	// Name identifies the pool in logs and metrics.
	Name string
	// MaxConcurrency is the number of tasks that may run at once. Must be >= 1.
	MaxConcurrency int
	// MaxQueueSize bounds the waiting queue length. 0 means defaultMaxQueueSize.
	MaxQueueSize int
	// DefaultTimeout is the queue-wait budget applied when a task does not
	// specify its own. Zero means no timeout (wait indefinitely for a permit).
	DefaultTimeout time.Duration
}

func (c Config) maxQueueSize() int {
	if c.MaxQueueSize <= 0 {
		return defaultMaxQueueSize
	}
	return c.MaxQueueSize
}

// Stats is the aggregate snapshot returned by GetStats.
type Stats struct {
	QueueLength    int
	ActiveWorkers  int
	MaxConcurrency int
	TotalProcessed int64
	TotalFailed    int64
	AvgWaitTime    time.Duration
	AvgProcessTime time.Duration
}

// ProcessingTask is a snapshot entry returned by GetProcessingTasks.
type ProcessingTask struct {
	ID        string
	ElapsedMS int64
}

// waiting is one task sitting in the priority queue.
type waiting struct {
	task     *relay.Task
	queuedAt time.Time
	timeout  time.Duration // 0 means no timeout
	timer    *time.Timer
	item     *pqueue.Item
	resultCh chan outcome
	settled  bool
}

// running is one task currently occupying a worker slot.
type running struct {
	task      *relay.Task
	startedAt time.Time
	lease     *semaphore.Lease
	resultCh  chan outcome
}

type outcome struct {
	result relay.ProxyResult
	err    error
}

// Future is the handle Submit hands back; Wait blocks for the task's
// terminal outcome or for ctx to be done, whichever comes first. A Future
// settling via ctx cancellation does not itself remove the task from the
// manager — callers that want that must also call CancelTask.
type Future struct {
	ch chan outcome
}

// Wait blocks until the task settles or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (relay.ProxyResult, error) {
	select {
	case o := <-f.ch:
		return o.result, o.err
	case <-ctx.Done():
		return relay.ProxyResult{}, ctx.Err()
	}
}

// Manager is the admission pool. All mutable state is guarded by mu; the
// scheduling algorithm (schedule) always runs with mu held, and the
// executor itself always runs on a dedicated goroutine per admitted task
// so a slow upstream call never blocks admission of other work.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	sem      *semaphore.Semaphore
	queue    *pqueue.Queue
	runningM map[string]*running

	totalProcessed int64
	totalFailed    int64
	totalWaitNS    int64
	totalProcNS    int64
	settledCount   int64

	shuttingDown bool

	executor Executor
	observer StatsObserver
	logger   *slog.Logger
}

// New builds a Manager. executor must not be nil.
func New(cfg Config, executor Executor, opts ...Option) (*Manager, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("concurrency: maxConcurrency must be >= 1 (pool %q)", cfg.Name)
	}
	sem, err := semaphore.New(cfg.MaxConcurrency)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		sem:      sem,
		queue:    pqueue.New(),
		runningM: make(map[string]*running),
		executor: executor,
		logger:   slog.New(nopHandler{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Option configures optional Manager dependencies.
type Option func(*Manager)

// WithLogger overrides the default no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithObserver registers a stats sink mirrored on every state transition.
func WithObserver(o StatsObserver) Option {
	return func(m *Manager) { m.observer = o }
}

// Submit admits task for execution, failing synchronously if the waiting
// queue is already at its bound. On success it returns a Future that
// resolves exactly once with the executor's result or an admission error.
func (m *Manager) Submit(task *relay.Task) (*Future, error) {
	m.mu.Lock()

	if m.shuttingDown {
		m.mu.Unlock()
		return nil, relay.ErrShuttingDown
	}

	if m.queue.Size() >= m.cfg.maxQueueSize() {
		n := m.queue.Size()
		m.mu.Unlock()
		return nil, &relay.QueueFullError{CurrentSize: n, Limit: m.cfg.maxQueueSize()}
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	w := &waiting{
		task:     task,
		queuedAt: time.Now(),
		timeout:  timeout,
		resultCh: make(chan outcome, 1),
	}
	w.item = m.queue.Enqueue(w, task.Priority)
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() { m.onQueueTimeout(w) })
	}

	m.logger.Debug("task enqueued", "task_id", task.ID, "priority", task.Priority, "queue_len", m.queue.Size())
	m.schedule()
	m.publishLocked()
	m.mu.Unlock()

	return &Future{ch: w.resultCh}, nil
}

// onQueueTimeout fires when a waiting task's queue-wait budget elapses
// before it was dequeued and dispatched. It is a no-op if the task has
// already left the queue (dispatched or removed) by the time it runs.
func (m *Manager) onQueueTimeout(w *waiting) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.settled {
		return
	}
	if m.queue.Remove(func(v any) bool { return v.(*waiting) == w }) == nil {
		return
	}
	m.rejectLocked(w, &relay.QueueTimeoutError{
		WaitedMS: time.Since(w.queuedAt).Milliseconds(),
		BudgetMS: w.timeout.Milliseconds(),
	})
	m.schedule()
	m.publishLocked()
}

// rejectLocked settles a still-queued waiter with err, exactly once. Must
// be called with mu held.
func (m *Manager) rejectLocked(w *waiting, err error) {
	if w.settled {
		return
	}
	w.settled = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.resultCh <- outcome{err: err}
}

// schedule runs the "processNext" algorithm to completion: dequeue the
// highest-priority waiter, timeout/cancel-check it, try to acquire a
// permit, and either dispatch it or stop. Must be called with mu held.
func (m *Manager) schedule() {
	for {
		item := m.queue.Dequeue()
		if item == nil {
			return
		}
		w := item.Value.(*waiting)

		if w.settled {
			continue
		}

		now := time.Now()
		if w.timeout > 0 {
			elapsed := now.Sub(w.queuedAt)
			if elapsed >= w.timeout {
				m.rejectLocked(w, &relay.QueueTimeoutError{
					WaitedMS: elapsed.Milliseconds(),
					BudgetMS: w.timeout.Milliseconds(),
				})
				continue
			}
		}

		lease, ok := m.sem.TryAcquire()
		if !ok {
			// No permit available for the highest-priority waiter means
			// none is available for anyone behind it either. Re-enqueue
			// and stop, re-arming the timer for the remaining budget.
			if w.timer != nil {
				w.timer.Stop()
			}
			w.item = m.queue.Requeue(item)
			if w.timeout > 0 {
				remaining := w.timeout - now.Sub(w.queuedAt)
				if remaining < 0 {
					remaining = 0
				}
				w.timer = time.AfterFunc(remaining, func() { m.onQueueTimeout(w) })
			}
			return
		}

		m.dispatchLocked(w, lease)
	}
}

// dispatchLocked transitions w from queued to running: it installs the
// cancellation handle, records bookkeeping, and spawns the goroutine that
// actually invokes the executor. Must be called with mu held.
func (m *Manager) dispatchLocked(w *waiting, lease *semaphore.Lease) {
	w.settled = true
	if w.timer != nil {
		w.timer.Stop()
	}

	waitDur := time.Since(w.queuedAt)

	parent := w.task.Context
	if parent == nil {
		parent = context.Background()
	}
	tracing.RecordQueueWait(trace.SpanFromContext(parent), waitDur)

	w.task.Cancel = relay.NewCancelHandle(parent)
	r := &running{task: w.task, startedAt: time.Now(), lease: lease, resultCh: w.resultCh}
	m.runningM[w.task.ID] = r

	m.logger.Debug("task dispatched", "task_id", w.task.ID, "wait_ms", waitDur.Milliseconds())
	m.publishLocked()

	go m.run(r, waitDur)
}

// run invokes the executor outside the manager lock, then re-enters the
// lock to release the permit, update statistics, and re-trigger
// scheduling, and only after leaving the lock settles the task's future.
func (m *Manager) run(r *running, waitDur time.Duration) {
	result := m.executor.Execute(r.task)

	m.mu.Lock()
	delete(m.runningM, r.task.ID)
	r.lease.Release()

	procDur := time.Since(r.startedAt)
	m.settledCount++
	m.totalWaitNS += int64(waitDur)
	m.totalProcNS += int64(procDur)
	if result.Err != nil {
		m.totalFailed++
	} else {
		m.totalProcessed++
	}

	m.logger.Debug("task settled", "task_id", r.task.ID, "proc_ms", procDur.Milliseconds(), "err", result.Err)
	m.schedule()
	m.publishLocked()
	m.mu.Unlock()

	r.resultCh <- outcome{result: result, err: result.Err}
}

// GetStats returns the current aggregate snapshot.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked()
}

func (m *Manager) statsLocked() Stats {
	s := Stats{
		QueueLength:    m.queue.Size(),
		ActiveWorkers:  len(m.runningM),
		MaxConcurrency: m.sem.Capacity(),
		TotalProcessed: m.totalProcessed,
		TotalFailed:    m.totalFailed,
	}
	if m.settledCount > 0 {
		s.AvgWaitTime = time.Duration(m.totalWaitNS / m.settledCount)
		s.AvgProcessTime = time.Duration(m.totalProcNS / m.settledCount)
	}
	return s
}

// publishLocked mirrors the current snapshot to the registered observer,
// if any. Must be called with mu held.
func (m *Manager) publishLocked() {
	if m.observer == nil {
		return
	}
	m.observer.Observe(m.statsLocked())
}

// GetProcessingTasks returns a snapshot of currently running tasks.
func (m *Manager) GetProcessingTasks() []ProcessingTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ProcessingTask, 0, len(m.runningM))
	now := time.Now()
	for id, r := range m.runningM {
		out = append(out, ProcessingTask{ID: id, ElapsedMS: now.Sub(r.startedAt).Milliseconds()})
	}
	return out
}

// UpdateMaxConcurrency resizes the worker pool. If n is larger than the
// previous value, it fires n-old scheduling attempts to pick up waiting
// work immediately; if smaller, current holders run to completion and the
// pool simply admits fewer new tasks until the overage drains.
func (m *Manager) UpdateMaxConcurrency(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.sem.Capacity()
	if err := m.sem.UpdatePermits(n); err != nil {
		return err
	}
	if n > old {
		m.schedule()
	}
	m.publishLocked()
	return nil
}

// CancelTask cancels task id. If it is still enqueued, it is removed and
// its future is rejected with reason, and CancelTask returns true. If it
// is running, its cancellation handle is triggered and CancelTask returns
// false (the task itself settles asynchronously once the executor
// observes the cancellation). Returns false for an unknown id.
func (m *Manager) CancelTask(id string, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runningM[id]; ok {
		r.task.MarkCancelled(reason)
		r.task.Cancel.Cancel(reason)
		return false
	}

	var found *waiting
	m.queue.Remove(func(v any) bool {
		w := v.(*waiting)
		if w.task.ID == id {
			found = w
			return true
		}
		return false
	})
	if found == nil {
		return false
	}
	m.rejectLocked(found, &relay.CancelledError{Reason: reason})
	m.schedule()
	m.publishLocked()
	return true
}

// ClearQueue drains the waiting queue. Unless silently is true, each
// drained task's future is rejected with relay.ErrQueueCleared. Running
// tasks are not affected. Returns the number of tasks drained.
func (m *Manager) ClearQueue(silently bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.queue.Clear()
	for _, item := range items {
		w := item.Value.(*waiting)
		if silently {
			w.settled = true
			if w.timer != nil {
				w.timer.Stop()
			}
			continue
		}
		m.rejectLocked(w, relay.ErrQueueCleared)
	}
	m.publishLocked()
	return len(items)
}

// Shutdown drains the waiting queue, rejecting each task with
// relay.ErrShuttingDown, and marks the manager closed to further
// submissions. Already-running tasks are left to finish naturally.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shuttingDown = true
	items := m.queue.Clear()
	for _, item := range items {
		w := item.Value.(*waiting)
		m.rejectLocked(w, relay.ErrShuttingDown)
	}
	m.publishLocked()
}
