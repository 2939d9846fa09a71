package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/courier/internal/event"
	"github.com/bamsammich/courier/internal/filter"
	"github.com/bamsammich/courier/internal/stats"
	"github.com/bamsammich/courier/internal/transport"
)

// Defaults for zero Config fields.
const (
	DefaultProgressInterval = 200 * time.Millisecond
	DefaultIdleTimeout      = 5 * time.Second
)

// Config controls a Manager.
type Config struct {
	Filter  *filter.Chain    // copy filter; nil copies everything
	Limiter *rate.Limiter    // bandwidth limit for streamed copies
	Stats   *stats.Collector // optional shared collector
	OnIdle  func()           // called once nothing has been queued for IdleTimeout

	DeleteDelay      time.Duration
	ProgressInterval time.Duration // minimum gap between byte-level PROGRESS events
	IdleTimeout      time.Duration
	Verify           bool // BLAKE3-verify streamed copies
}

// Manager queues transfer tasks and runs them one entry at a time on a
// single runner goroutine. Create it with New, call Start, and Close it when
// done.
//
// Event handlers registered with Subscribe run on the publishing goroutine.
// They must not call Enqueue, Paste, Archive or RequestCancel synchronously.
type Manager struct {
	fs           FileSystem
	resolver     *Resolver
	bus          *event.Bus
	canceller    *Canceller
	deletes      *DeleteScheduler
	collector    *stats.Collector
	progressTick *rate.Sometimes

	ctx    context.Context //nolint:containedctx // runner lifetime
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	cfg Config

	// emitMu serializes publication so that BEGIN precedes everything else
	// in its batch. Lock order: emitMu, then mu.
	emitMu sync.Mutex

	mu        sync.Mutex
	queue     []*Task
	finished  []*Task // completed tasks of the current batch
	idleTimer *time.Timer
	started   bool
	closed    bool

	closeOnce sync.Once
}

// New creates a Manager over fs. Tasks may be enqueued before Start; they
// run once the manager is started.
func New(fs FileSystem, cfg Config) *Manager {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		fs:           fs,
		resolver:     NewResolver(fs),
		bus:          event.NewBus(),
		canceller:    &Canceller{},
		collector:    collector,
		progressTick: &rate.Sometimes{Interval: cfg.ProgressInterval},
		ctx:          ctx,
		cancel:       cancel,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		cfg:          cfg,
	}
	m.deletes = NewDeleteScheduler(fs, cfg.DeleteDelay, m.emitDeleteEvent, m.checkIdle)
	return m
}

// Start launches the runner goroutine. Calling it again has no effect.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true
	go m.run()
	m.signal()
}

// Close cancels the running batch, stops the runner and executes every
// pending delete job.
func (m *Manager) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		if m.HasQueuedTasks() {
			cancelled := make(chan struct{})
			m.RequestCancel(func() { close(cancelled) })

			m.mu.Lock()
			started := m.started
			m.mu.Unlock()
			if !started {
				m.finishCancel()
			}

			select {
			case <-cancelled:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}

		m.mu.Lock()
		m.closed = true
		m.stopIdleTimerLocked()
		started := m.started
		m.mu.Unlock()

		m.cancel()
		if started {
			select {
			case <-m.done:
			case <-ctx.Done():
				if err == nil {
					err = ctx.Err()
				}
			}
		}

		if derr := m.deletes.Close(ctx); derr != nil && err == nil {
			err = derr
		}
	})
	return err
}

// Subscribe registers h for every event and returns a function removing it.
func (m *Manager) Subscribe(h event.Handler) (unsubscribe func()) {
	return m.bus.Subscribe(h)
}

// Stats returns the collector fed by this manager.
func (m *Manager) Stats() *stats.Collector { return m.collector }

// Enqueue appends a prepared task. The first task of a batch publishes
// BEGIN; later ones publish PROGRESS with the grown totals. Tasks built
// with NewTask must go through Paste or Archive first; an unprepared task
// is rejected with ErrNotPrepared.
func (m *Manager) Enqueue(t *Task) error {
	if t == nil || !t.prepared {
		return ErrNotPrepared
	}
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	wasEmpty := len(m.queue) == 0
	m.queue = append(m.queue, t)
	m.stopIdleTimerLocked()
	status := m.statusLocked()
	m.mu.Unlock()

	m.collector.AddBytesTotal(t.totalBytes)

	typ := event.Progress
	if wasEmpty {
		typ = event.Begin
	}
	m.emitLocked(event.Event{Type: typ, TaskID: t.ID, Status: status})
	m.signal()
	return nil
}

// HasQueuedTasks reports whether a batch is in progress.
func (m *Manager) HasQueuedTasks() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) > 0
}

// Status returns the aggregate status of the current batch.
func (m *Manager) Status() stats.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() stats.Status {
	tasks := make([]*Task, 0, len(m.finished)+len(m.queue))
	tasks = append(tasks, m.finished...)
	tasks = append(tasks, m.queue...)
	return aggregate(tasks)
}

// RequestCancel asks the running batch to stop. The in-flight filesystem
// call is aborted, observer (if non-nil) is called once cancellation
// completes, and an idle manager finishes cancelling immediately. On an
// idle manager that means a CANCELLED event carrying an empty status.
func (m *Manager) RequestCancel(observer func()) {
	m.canceller.Request(observer)
	if !m.HasQueuedTasks() {
		m.finishCancel()
	}
}

// Delete schedules a soft delete of entries and returns the job id.
func (m *Manager) Delete(entries []transport.Entry) (int64, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	m.stopIdleTimerLocked()
	m.mu.Unlock()
	return m.deletes.Schedule(entries), nil
}

// ForceDelete runs a pending delete job now.
func (m *Manager) ForceDelete(id int64) bool { return m.deletes.ForceDelete(id) }

// CancelDelete undoes a pending delete job.
func (m *Manager) CancelDelete(id int64) bool { return m.deletes.CancelDelete(id) }

// PendingDeletes returns the number of delete jobs not yet executed.
func (m *Manager) PendingDeletes() int { return m.deletes.Pending() }

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		}
		m.drain()
	}
}

// drain runs the queue until it is empty or the manager shuts down.
func (m *Manager) drain() {
	for m.ctx.Err() == nil {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			m.checkIdle()
			return
		}
		t := m.queue[0]
		m.mu.Unlock()

		if m.canceller.Requested() {
			m.finishCancel()
			continue
		}

		done, err := m.runStep(t)
		switch {
		case err != nil && m.canceller.Requested():
			m.finishCancel()
		case err != nil:
			m.fail(err)
		case done:
			m.completeTask(t)
		}
	}
}

// runStep executes one step under its own context, whose cancel is the
// abort hook while the step is outstanding.
func (m *Manager) runStep(t *Task) (bool, error) {
	ctx, cancel := context.WithCancel(m.ctx)
	clearHook := m.canceller.SetHook(cancel)
	defer func() {
		clearHook()
		cancel()
	}()
	if m.canceller.Requested() {
		cancel()
	}
	return m.step(ctx, t)
}

// completeTask pops t. A single PROGRESS separates tasks; an empty queue
// ends the batch with SUCCESS, unless cancellation arrived meanwhile.
func (m *Manager) completeTask(t *Task) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if len(m.queue) == 0 || m.queue[0] != t {
		m.mu.Unlock()
		return
	}
	m.queue = m.queue[1:]
	m.finished = append(m.finished, t)
	status := m.statusLocked()

	if len(m.queue) > 0 {
		m.mu.Unlock()
		m.emitLocked(event.Event{Type: event.Progress, Status: status})
		return
	}
	m.mu.Unlock()

	if m.canceller.Requested() {
		m.cancelLocked()
		return
	}
	m.resetQueue()
	m.emitLocked(event.Event{Type: event.Success, Status: status})
}

// fail aborts the batch with ERROR.
func (m *Manager) fail(err error) {
	if errors.Is(err, ErrProtocolViolation) {
		slog.Error("transfer engine invariant broken", "error", err)
	} else {
		slog.Debug("transfer failed", "error", err)
	}

	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	status := m.Status()
	m.resetQueue()
	m.emitLocked(event.Event{Type: event.Error, Status: status, Error: err})
}

// finishCancel ends a requested cancellation: the queue is dropped, cancel
// observers run, exactly one CANCELLED is published and the flag is reset.
func (m *Manager) finishCancel() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.cancelLocked()
}

// cancelLocked requires emitMu.
func (m *Manager) cancelLocked() {
	if !m.canceller.Requested() {
		return
	}
	status := m.Status()
	m.resetQueue()
	m.emitLocked(event.Event{Type: event.Cancelled, Status: status, Error: ErrCancelled})
	m.canceller.reset()
}

// resetQueue discards the batch and runs pending cancel observers. Requires
// emitMu.
func (m *Manager) resetQueue() {
	m.mu.Lock()
	m.queue = nil
	m.finished = nil
	m.mu.Unlock()

	for _, obs := range m.canceller.takeObservers() {
		obs()
	}
}

// emitStatus publishes a lifecycle event carrying the current status.
func (m *Manager) emitStatus(typ event.Type) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.emitLocked(event.Event{Type: typ, Status: m.Status()})
}

func (m *Manager) emit(ev event.Event) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.emitLocked(ev)
}

// emitLocked publishes ev unless cancellation is pending. Requires emitMu.
func (m *Manager) emitLocked(ev event.Event) {
	if ev.Type != event.Cancelled && m.canceller.Requested() {
		return
	}
	m.bus.Publish(ev)
}

// emitDeleteEvent publishes delete-job events. They are independent of the
// task queue and never suppressed.
func (m *Manager) emitDeleteEvent(ev event.Event) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	m.bus.Publish(ev)
}

// checkIdle arms the idle timer when neither tasks nor delete jobs remain.
func (m *Manager) checkIdle() {
	if m.cfg.OnIdle == nil {
		return
	}
	pendingDeletes := m.deletes.Pending()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || len(m.queue) > 0 || pendingDeletes > 0 || m.idleTimer != nil {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(m.cfg.IdleTimeout, func() {
		m.mu.Lock()
		fire := m.idleTimer == timer && len(m.queue) == 0 && !m.closed
		if m.idleTimer == timer {
			m.idleTimer = nil
		}
		m.mu.Unlock()
		if fire && m.deletes.Pending() == 0 {
			m.cfg.OnIdle()
		}
	})
	m.idleTimer = timer
}

func (m *Manager) stopIdleTimerLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}
