package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/bamsammich/courier/internal/event"
	"github.com/bamsammich/courier/internal/transport"
)

// DefaultDeleteDelay is how long a soft delete can be undone.
const DefaultDeleteDelay = 30 * time.Second

type deleteJob struct {
	timer   *time.Timer
	entries []transport.Entry
	id      int64
}

func (j *deleteJob) paths() []string {
	paths := make([]string, len(j.entries))
	for i, e := range j.entries {
		paths[i] = e.URL()
	}
	return paths
}

// DeleteScheduler runs soft deletes: each job waits out its delay and can be
// cancelled or forced before it fires. Jobs execute one at a time.
type DeleteScheduler struct {
	fs        Remover
	publish   func(event.Event)
	onDrained func()
	pool      pond.Pool
	jobs      map[int64]*deleteJob
	delay     time.Duration
	nextID    int64
	mu        sync.Mutex
}

// NewDeleteScheduler creates a scheduler removing entries through fs.
// publish receives every job event; onDrained (optional) is called whenever
// the last pending job leaves the table.
func NewDeleteScheduler(
	fs Remover,
	delay time.Duration,
	publish func(event.Event),
	onDrained func(),
) *DeleteScheduler {
	if delay <= 0 {
		delay = DefaultDeleteDelay
	}
	if publish == nil {
		publish = func(event.Event) {}
	}
	return &DeleteScheduler{
		fs:        fs,
		publish:   publish,
		onDrained: onDrained,
		pool:      pond.NewPool(1),
		jobs:      make(map[int64]*deleteJob),
		delay:     delay,
	}
}

// Schedule creates a job for entries and returns its id. Entries are removed
// as given, without enumerating directories.
func (s *DeleteScheduler) Schedule(entries []transport.Entry) int64 {
	s.mu.Lock()
	s.nextID++
	job := &deleteJob{id: s.nextID, entries: slices.Clone(entries)}
	s.jobs[job.id] = job
	s.mu.Unlock()

	s.publish(event.Event{Type: event.DeleteScheduled, JobID: job.id, Paths: job.paths()})

	// The timer starts after the SCHEDULED event so expiry can never be
	// reported first.
	s.mu.Lock()
	if _, ok := s.jobs[job.id]; ok {
		job.timer = time.AfterFunc(s.delay, func() { s.expire(job.id) })
	}
	s.mu.Unlock()
	return job.id
}

// ForceDelete executes job id now and waits for it. It returns false when
// the job is no longer pending.
func (s *DeleteScheduler) ForceDelete(id int64) bool {
	job := s.take(id)
	if job == nil {
		return false
	}
	if err := s.pool.Submit(func() { s.execute(job) }).Wait(); err != nil {
		slog.Warn("delete job failed", "job", id, "error", err)
	}
	return true
}

// CancelDelete drops job id without touching the filesystem. It returns
// false when the job is no longer pending.
func (s *DeleteScheduler) CancelDelete(id int64) bool {
	job := s.take(id)
	if job == nil {
		return false
	}
	s.publish(event.Event{Type: event.DeleteCancelled, JobID: id, Paths: job.paths()})
	s.notifyDrained()
	return true
}

// Pending returns the number of jobs waiting to run.
func (s *DeleteScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Close executes every pending job and stops the worker pool.
func (s *DeleteScheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.ForceDelete(id)
	}
	s.pool.StopAndWait()
	return nil
}

func (s *DeleteScheduler) expire(id int64) {
	job := s.take(id)
	if job == nil {
		return
	}
	s.pool.Submit(func() { s.execute(job) })
}

// take removes job id from the table and stops its timer.
func (s *DeleteScheduler) take(id int64) *deleteJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	delete(s.jobs, id)
	if job.timer != nil {
		job.timer.Stop()
	}
	return job
}

func (s *DeleteScheduler) execute(job *deleteJob) {
	ctx := context.Background()
	removed := 0
	for _, e := range job.entries {
		if err := s.fs.Remove(ctx, e); err != nil {
			slog.Warn("delete failed", "job", job.id, "path", e.URL(), "error", err)
			continue
		}
		removed++
		s.publish(event.Event{Type: event.Deleted, JobID: job.id, Path: e.URL()})
	}
	s.publish(event.Event{
		Type:  event.DeleteSucceeded,
		JobID: job.id,
		Paths: job.paths(),
		Count: removed,
	})
	s.notifyDrained()
}

func (s *DeleteScheduler) notifyDrained() {
	if s.onDrained != nil && s.Pending() == 0 {
		s.onDrained()
	}
}
