package render

import (
	"context"
	"slices"
	"sync"
	"time"

	"renderhub/internal/pkg/errors"
)

// Default and maximum page sizes for ListJobs.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListFilter narrows ListJobs. A zero Status matches every job.
type ListFilter struct {
	Status StatusName
	Limit  int
}

type record struct {
	seq uint64
	job Job
	// cancel aborts the render while the job is in progress.
	cancel          context.CancelFunc
	cancelRequested bool
}

// Store holds every job record. It is read by status queries and written
// only by the Queue.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	seq     uint64
}

func newStore() *Store {
	return &Store{records: make(map[string]*record)}
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Job{}, false
	}
	return rec.job, true
}

// List returns copies of matching jobs, newest first.
func (s *Store) List(f ListFilter) []Job {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	f.Limit = min(f.Limit, MaxListLimit)

	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		if f.Status == "" || rec.job.Status.Name() == f.Status {
			recs = append(recs, rec)
		}
	}
	slices.SortFunc(recs, func(a, b *record) int {
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})
	if len(recs) > f.Limit {
		recs = recs[:f.Limit]
	}
	jobs := make([]Job, len(recs))
	for i, rec := range recs {
		jobs[i] = rec.job
	}
	s.mu.RUnlock()
	return jobs
}

// Counts returns the number of jobs per status.
func (s *Store) Counts() map[StatusName]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[StatusName]int)
	for _, rec := range s.records {
		out[rec.job.Status.Name()]++
	}
	return out
}

func (s *Store) insert(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.records[job.ID] = &record{seq: s.seq, job: job}
}

// begin moves a queued job to in-progress. It returns false when the job
// was removed or is no longer queued.
func (s *Store) begin(id string, cancel context.CancelFunc, now time.Time) (JobData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return JobData{}, false
	}
	if _, queued := rec.job.Status.(Queued); !queued {
		return JobData{}, false
	}
	rec.job.Status = InProgress{Progress: 0}
	rec.job.StartedAt = &now
	rec.cancel = cancel
	return rec.job.Data, true
}

// setProgress records p unless the job left in-progress or a cancellation
// was requested.
func (s *Store) setProgress(id string, p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.cancelRequested {
		return false
	}
	if _, running := rec.job.Status.(InProgress); !running {
		return false
	}
	rec.job.Status = InProgress{Progress: p}
	return true
}

// finish stores the terminal status of a running job and returns the status
// actually recorded. A completion that loses the race against an accepted
// cancellation is recorded as cancelled.
func (s *Store) finish(id string, status Status, now time.Time) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return status
	}
	if rec.job.Status.Terminal() {
		return rec.job.Status
	}
	if _, completed := status.(Completed); completed && rec.cancelRequested {
		status = Failed{Error: "render cancelled"}
	}
	rec.job.Status = status
	rec.job.FinishedAt = &now
	rec.cancel = nil
	return status
}

// abandon fails a job that never left the queue.
func (s *Store) abandon(id, reason string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false
	}
	if _, queued := rec.job.Status.(Queued); !queued {
		return false
	}
	rec.job.Status = Failed{Error: reason}
	rec.job.FinishedAt = &now
	return true
}

func (s *Store) cancelRequested(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return ok && rec.cancelRequested
}

type cancelOutcome int

const (
	cancelledQueued cancelOutcome = iota
	cancelSignalled
	cancelAlreadyPending
)

// cancel applies a cancellation request. Queued jobs are removed, or marked
// cancelled when retain is set. In-progress jobs have their render context
// cancelled.
func (s *Store) cancel(id string, retain bool, now time.Time) (cancelOutcome, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return 0, errors.NotFound("job", id)
	}

	switch st := rec.job.Status.(type) {
	case Queued:
		if retain {
			rec.job.Status = Cancelled{}
			rec.job.FinishedAt = &now
		} else {
			delete(s.records, id)
		}
		s.mu.Unlock()
		return cancelledQueued, nil

	case InProgress:
		if rec.cancelRequested {
			s.mu.Unlock()
			return cancelAlreadyPending, nil
		}
		rec.cancelRequested = true
		cancel := rec.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return cancelSignalled, nil

	default:
		s.mu.Unlock()
		return 0, errors.NotCancellable(id, string(st.Name()))
	}
}
