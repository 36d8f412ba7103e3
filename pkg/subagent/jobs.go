package subagent

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// job is one scheduled unit of work.
type job struct {
	done    chan struct{}
	outcome Outcome
}

// JobStore tracks background jobs by id. Settled jobs are evicted once
// they have been reported through an await, so a long-running process does
// not accumulate finished entries forever; a job that is never awaited
// stays until it is.
type JobStore struct {
	mu     sync.Mutex
	jobs   map[string]*job
	logger zerolog.Logger
}

// NewJobStore creates an empty job store.
func NewJobStore(logger zerolog.Logger) *JobStore {
	return &JobStore{
		jobs:   make(map[string]*job),
		logger: logger.With().Str("component", "jobs").Logger(),
	}
}

// Start schedules fn immediately under the given id and returns without
// waiting for it.
func (s *JobStore) Start(id string, fn func(ctx context.Context) (string, error)) {
	j := &job{done: make(chan struct{})}

	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()

	s.logger.Debug().Str("job_id", id).Msg("Job started")

	go func() {
		result, err := fn(context.Background())
		j.outcome = Outcome{Result: result, Err: err}
		close(j.done)
	}()
}

// Len returns the number of tracked jobs, settled or not.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Await waits for the named jobs to settle and returns their outcomes.
// Unknown ids are omitted; individual job failures appear as Outcome.Err,
// never as a return error. Reported jobs are evicted from the store.
func (s *JobStore) Await(ctx context.Context, ids []string) (map[string]Outcome, error) {
	s.mu.Lock()
	pending := make(map[string]*job, len(ids))
	for _, id := range ids {
		if j, ok := s.jobs[id]; ok {
			pending[id] = j
		}
	}
	s.mu.Unlock()

	outcomes := make(map[string]Outcome, len(pending))
	for id, j := range pending {
		select {
		case <-j.done:
			outcomes[id] = j.outcome
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	for id := range outcomes {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	return outcomes, nil
}

// AwaitAll waits for every currently known job.
func (s *JobStore) AwaitAll(ctx context.Context) (map[string]Outcome, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	return s.Await(ctx, ids)
}
