// Package memory provides an in-process job store for development and tests.
// Records are lost on restart.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"agentrunner/internal/apperrors"
	"agentrunner/internal/job"
)

// Store keeps jobs in a map guarded by a mutex. Callers always receive copies.
type Store struct {
	mu     sync.RWMutex
	jobs   map[int64]job.Job
	nextID int64
	now    func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		jobs: make(map[int64]job.Job),
		now:  time.Now,
	}
}

// Save inserts a job when its ID is zero and updates it otherwise.
func (s *Store) Save(_ context.Context, j *job.Job) (*job.Job, error) {
	if !j.Status.Valid() {
		return nil, apperrors.Persistence("memory.save", errInvalidStatus(j.Status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *j
	now := s.now().UTC()
	if saved.ID == 0 {
		s.nextID++
		saved.ID = s.nextID
		saved.CreatedAt = now
	} else {
		existing, ok := s.jobs[saved.ID]
		if !ok {
			return nil, apperrors.NotFound("job", strconv.FormatInt(saved.ID, 10))
		}
		saved.CreatedAt = existing.CreatedAt
	}
	saved.UpdatedAt = now
	s.jobs[saved.ID] = saved

	out := saved
	return &out, nil
}

// FindByID returns the job with the given id.
func (s *Store) FindByID(_ context.Context, id int64) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", strconv.FormatInt(id, 10))
	}
	return &j, nil
}

// FindAll returns all jobs ordered by id.
func (s *Store) FindAll(_ context.Context) ([]job.Job, error) {
	return s.filter(func(job.Job) bool { return true }), nil
}

// FindAllByStatus returns jobs in the given status ordered by id.
func (s *Store) FindAllByStatus(_ context.Context, status job.Status) ([]job.Job, error) {
	return s.filter(func(j job.Job) bool { return j.Status == status }), nil
}

// FindByContainerID returns the most recent job linked to the container.
func (s *Store) FindByContainerID(_ context.Context, containerID string) (*job.Job, error) {
	matches := s.filter(func(j job.Job) bool { return j.ContainerID == containerID })
	if containerID == "" || len(matches) == 0 {
		return nil, apperrors.NotFound("job for container", containerID)
	}
	return &matches[len(matches)-1], nil
}

// Ready always succeeds.
func (s *Store) Ready(context.Context) error {
	return nil
}

func (s *Store) filter(keep func(job.Job) bool) []job.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

type errInvalidStatus job.Status

func (e errInvalidStatus) Error() string {
	return "invalid job status " + strconv.Quote(string(e))
}

var _ job.Store = (*Store)(nil)
