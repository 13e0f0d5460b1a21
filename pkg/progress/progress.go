package progress

import (
	"sync"
	"time"

	"github.com/OFFIS-RIT/evidence-graph/pkg/logger"
)

// Phase is a step of the graph build state machine.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseResearch Phase = "research"
	PhaseAnswer   Phase = "answer"
	PhaseGraph    Phase = "graph"
	PhaseComplete Phase = "complete"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInit, PhaseResearch, PhaseAnswer, PhaseGraph, PhaseComplete:
		return true
	}
	return false
}

const (
	DefaultSweepInterval = 60 * time.Second
	DefaultRetention     = 5 * DefaultSweepInterval

	statusStarting = "Starting"
	statusReady    = "Ready"
)

// State is a snapshot of a job's progress. Callers always receive copies.
type State struct {
	JobID     string    `json:"jobId"`
	Progress  int       `json:"progress"`
	Status    string    `json:"status"`
	Phase     Phase     `json:"phase"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tracker is a goroutine-safe registry of job progress with a background
// sweeper that drops jobs nobody touched within the retention window.
//
// A Tracker should be created using NewTracker and stopped with Shutdown.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]*State

	now       func() time.Time
	interval  time.Duration
	retention time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// TrackerParams configures a Tracker. Zero values select the defaults.
//
// DisableSweeper skips the background goroutine; Sweep can still be called
// manually.
type TrackerParams struct {
	SweepInterval  time.Duration
	Retention      time.Duration
	Now            func() time.Time
	DisableSweeper bool
}

// NewTracker creates a Tracker and starts its sweeper.
//
// Example:
//
//	tracker := progress.NewTracker(progress.TrackerParams{})
//	defer tracker.Shutdown()
//	tracker.CreateJob("job-1")
func NewTracker(params TrackerParams) *Tracker {
	interval := params.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	retention := params.Retention
	if retention <= 0 {
		retention = 5 * interval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	t := &Tracker{
		jobs:      make(map[string]*State),
		now:       now,
		interval:  interval,
		retention: retention,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if params.DisableSweeper {
		close(t.done)
		return t
	}

	go t.run()
	return t
}

func (t *Tracker) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if removed := t.Sweep(); removed > 0 {
				logger.Debug("[Progress] Swept expired jobs", "removed", removed)
			}
		}
	}
}

// CreateJob registers id with fresh state, replacing any previous entry.
func (t *Tracker) CreateJob(id string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.jobs[id] = &State{
		JobID:     id,
		Progress:  0,
		Status:    statusStarting,
		Phase:     PhaseInit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UpdateProgress moves a job forward. Progress never decreases: the stored
// value becomes max(current, min(100, progress)). An unknown phase keeps the
// current phase. Unknown jobs are ignored with a warning.
func (t *Tracker) UpdateProgress(id string, progress int, status string, phase Phase) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		logger.Warn("[Progress] Update for unknown job ignored", "job_id", id, "progress", progress, "phase", phase)
		return
	}

	job.Progress = max(job.Progress, min(100, progress))
	job.Status = status
	if phase.Valid() {
		job.Phase = phase
	} else {
		logger.Warn("[Progress] Unknown phase ignored", "job_id", id, "phase", phase)
	}
	job.UpdatedAt = now
}

// GetProgress returns a copy of the job state.
func (t *Tracker) GetProgress(id string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return State{}, false
	}
	return *job, true
}

// CompleteJob forces the job to 100% in the complete phase.
func (t *Tracker) CompleteJob(id string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		logger.Warn("[Progress] Completion for unknown job ignored", "job_id", id)
		return
	}

	job.Progress = 100
	job.Phase = PhaseComplete
	job.Status = statusReady
	job.UpdatedAt = now
}

// FailJob records a failure message without touching progress or phase.
// The entry is left for the sweeper so pollers can still read it.
func (t *Tracker) FailJob(id string, status string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		logger.Warn("[Progress] Failure for unknown job ignored", "job_id", id)
		return
	}

	job.Status = status
	job.UpdatedAt = now
}

// RemoveJob deletes the job immediately.
func (t *Tracker) RemoveJob(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.jobs, id)
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.jobs)
}

// Sweep removes every job whose last update is older than the retention
// window and returns how many were removed.
func (t *Tracker) Sweep() int {
	cutoff := t.now().Add(-t.retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, job := range t.jobs {
		if job.UpdatedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}

// Shutdown stops the sweeper and waits for it to exit. Safe to call more
// than once.
func (t *Tracker) Shutdown() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	<-t.done
}
