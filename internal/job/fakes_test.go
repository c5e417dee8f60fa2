package job

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"agentrunner/internal/apperrors"
	"agentrunner/pkg/cloudevent"
)

// fakeStore is an in-memory Store that counts writes.
type fakeStore struct {
	mu         sync.Mutex
	jobs       map[int64]Job
	nextID     int64
	saves      int
	saveErr    error
	findAllErr error
}

func newFakeStore(jobs ...Job) *fakeStore {
	s := &fakeStore{jobs: make(map[int64]Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
		if j.ID > s.nextID {
			s.nextID = j.ID
		}
	}
	return s
}

func (s *fakeStore) Save(ctx context.Context, j *Job) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Persistence("store.save", err)
	}
	if s.saveErr != nil {
		return nil, apperrors.Persistence("store.save", s.saveErr)
	}
	s.saves++
	now := time.Now()
	saved := *j
	if saved.ID == 0 {
		s.nextID++
		saved.ID = s.nextID
		saved.CreatedAt = now
	} else {
		saved.CreatedAt = s.jobs[saved.ID].CreatedAt
	}
	saved.UpdatedAt = now
	s.jobs[saved.ID] = saved
	out := saved
	return &out, nil
}

func (s *fakeStore) FindByID(_ context.Context, id int64) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", strconv.FormatInt(id, 10))
	}
	return &j, nil
}

func (s *fakeStore) FindAll(_ context.Context) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findAllErr != nil {
		return nil, apperrors.Persistence("store.findAll", s.findAllErr)
	}
	return s.sorted(func(Job) bool { return true }), nil
}

func (s *fakeStore) FindAllByStatus(_ context.Context, status Status) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findAllErr != nil {
		return nil, apperrors.Persistence("store.findAllByStatus", s.findAllErr)
	}
	return s.sorted(func(j Job) bool { return j.Status == status }), nil
}

func (s *fakeStore) FindByContainerID(_ context.Context, containerID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ContainerID == containerID {
			return &j, nil
		}
	}
	return nil, apperrors.NotFound("job for container", containerID)
}

func (s *fakeStore) sorted(keep func(Job) bool) []Job {
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (s *fakeStore) get(id int64) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// fakeRuntime records calls and returns configured errors.
type fakeRuntime struct {
	mu sync.Mutex

	createErr  error
	inspectErr error
	startErr   error
	stopErrs   map[string]error
	blockStop  bool // Stop waits for ctx to end

	// during runs inside CreateAndStart, Stop and Start before they succeed.
	during func()
	// stopGate holds each Stop until it is closed.
	stopGate chan struct{}
	inFlight int
	maxStops int

	published  map[string]int
	containers []Container
	images     []Image

	created []ContainerSpec
	stopped []string
	started []string
	removed []string
	calls   int
	nextID  int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		stopErrs:  make(map[string]error),
		published: make(map[string]int),
	}
}

func (r *fakeRuntime) CreateAndStart(_ context.Context, spec ContainerSpec) (string, error) {
	if r.during != nil {
		r.during()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.createErr != nil {
		return "", r.createErr
	}
	r.nextID++
	id := fmt.Sprintf("c%04d", r.nextID)
	r.created = append(r.created, spec)
	r.published[id] = spec.HostPort
	return id, nil
}

func (r *fakeRuntime) Inspect(ctx context.Context, containerID string) (*ContainerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err := ctx.Err(); err != nil {
		return nil, apperrors.RuntimeUnavailable("runtime.inspect", err)
	}
	if r.inspectErr != nil {
		return nil, r.inspectErr
	}
	return &ContainerState{Name: "/" + containerID, Status: "running"}, nil
}

func (r *fakeRuntime) ListContainers(context.Context) ([]Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return append([]Container(nil), r.containers...), nil
}

func (r *fakeRuntime) ListImages(context.Context) ([]Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return append([]Image(nil), r.images...), nil
}

func (r *fakeRuntime) Stop(ctx context.Context, containerID string) error {
	r.mu.Lock()
	r.calls++
	block := r.blockStop
	err := r.stopErrs[containerID]
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.inFlight++
	r.maxStops = max(r.maxStops, r.inFlight)
	gate := r.stopGate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if r.during != nil {
		r.during()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight--
	r.stopped = append(r.stopped, containerID)
	return nil
}

func (r *fakeRuntime) Remove(ctx context.Context, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err := ctx.Err(); err != nil {
		return apperrors.RuntimeUnavailable("runtime.remove", err)
	}
	r.removed = append(r.removed, containerID)
	delete(r.published, containerID)
	return nil
}

func (r *fakeRuntime) Start(_ context.Context, containerID string) error {
	if r.during != nil {
		r.during()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.startErr != nil {
		return r.startErr
	}
	r.started = append(r.started, containerID)
	return nil
}

func (r *fakeRuntime) ResolvePublishedPort(_ context.Context, containerID string, _ int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	port, ok := r.published[containerID]
	if !ok {
		return 0, apperrors.ContainerNotFound("runtime.resolvePublishedPort", containerID, nil)
	}
	return port, nil
}

func (r *fakeRuntime) removedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.removed)
}

func (r *fakeRuntime) stopCalls() (stopped []string, maxConcurrent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.stopped), r.maxStops
}

func (r *fakeRuntime) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fixedPorts returns ports in order and records the reserved sets it saw.
type fixedPorts struct {
	mu       sync.Mutex
	ports    []int
	reserved []map[int]bool
}

func (p *fixedPorts) Allocate(_ context.Context, reserved map[int]bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserved = append(p.reserved, reserved)
	port := p.ports[0]
	if len(p.ports) > 1 {
		p.ports = p.ports[1:]
	}
	return port
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*cloudevent.CloudEvent
}

func (n *recordingNotifier) Publish(event *cloudevent.CloudEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, fmt.Errorf("lock held")
}

func testConfig() Config {
	return Config{
		Image:          "coding-agent:latest",
		ExposedPort:    6080,
		AccessHost:     "localhost",
		AccessPath:     "/vnc_lite.html",
		NamePrefix:     "agent-",
		Env:            []string{"OLLAMA_API=http://host.docker.internal:11434", "OLLAMA_MODEL=codellama"},
		RuntimeTimeout: time.Second,
	}
}

func startedJob(id int64, containerID string, port int) Job {
	return Job{ID: id, Name: "job-" + strconv.FormatInt(id, 10), Status: StatusStarted, ContainerID: containerID, VNCPort: port}
}
