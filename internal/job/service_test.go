package job

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"agentrunner/internal/apperrors"
	"agentrunner/internal/joblock"
)

func newTestService(store *fakeStore, rt *fakeRuntime, ports ...int) (*Service, *recordingNotifier) {
	if len(ports) == 0 {
		ports = []int{34521}
	}
	n := &recordingNotifier{}
	svc := NewService(store, rt, &fixedPorts{ports: ports}, testConfig(), WithNotifier(n))
	return svc, n
}

func TestCreateJob_Started(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	rt := newFakeRuntime()
	svc, notifier := newTestService(store, rt, 34521)

	j, err := svc.CreateJob(context.Background(), "build-app")
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if j.Status != StatusStarted {
		t.Errorf("Status = %q, want STARTED", j.Status)
	}
	if j.VNCPort != 34521 {
		t.Errorf("VNCPort = %d, want 34521", j.VNCPort)
	}
	if j.ContainerID == "" {
		t.Error("expected container id to be set")
	}
	if j.ID == 0 || j.CreatedAt.IsZero() {
		t.Errorf("expected persisted job, got %+v", j)
	}
	if store.saveCount() != 1 {
		t.Errorf("saves = %d, want 1", store.saveCount())
	}

	if len(rt.created) != 1 {
		t.Fatalf("created = %d containers, want 1", len(rt.created))
	}
	spec := rt.created[0]
	if spec.Image != "coding-agent:latest" {
		t.Errorf("Image = %q", spec.Image)
	}
	if !slices.Equal(spec.Args, []string{"build-app"}) {
		t.Errorf("Args = %v, want [build-app]", spec.Args)
	}
	if spec.ExposedPort != 6080 || spec.HostPort != 34521 {
		t.Errorf("ports = %d->%d, want 34521->6080", spec.HostPort, spec.ExposedPort)
	}
	if !strings.HasPrefix(spec.Name, "agent-") {
		t.Errorf("Name = %q, want agent- prefix", spec.Name)
	}
	if !slices.Contains(spec.Env, "OLLAMA_MODEL=codellama") {
		t.Errorf("Env = %v, missing model", spec.Env)
	}
	if spec.Labels[LabelManagedBy] != ManagedByValue || spec.Labels[LabelJobName] != "build-app" {
		t.Errorf("Labels = %v", spec.Labels)
	}

	if got := notifier.types(); !slices.Equal(got, []string{EventTypeStarted}) {
		t.Errorf("events = %v, want [%s]", got, EventTypeStarted)
	}
}

func TestCreateJob_CreationRejected(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	rt := newFakeRuntime()
	rt.createErr = apperrors.CreationRejected("docker.containerCreate", errors.New("No such image: bad-image"))
	svc, notifier := newTestService(store, rt)

	j, err := svc.CreateJob(context.Background(), "bad-image")
	if err != nil {
		t.Fatalf("CreateJob() error = %v, want nil (failure is recorded)", err)
	}

	if j.Status != StatusFailed {
		t.Errorf("Status = %q, want FAILED", j.Status)
	}
	if j.ContainerID != "" || j.VNCPort != 0 {
		t.Errorf("expected no container and no port, got %q/%d", j.ContainerID, j.VNCPort)
	}
	if store.saveCount() != 1 {
		t.Errorf("saves = %d, want 1", store.saveCount())
	}
	if got := notifier.types(); !slices.Equal(got, []string{EventTypeFailed}) {
		t.Errorf("events = %v, want [%s]", got, EventTypeFailed)
	}
}

func TestCreateJob_InspectFailureDiscardsContainer(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	rt := newFakeRuntime()
	rt.inspectErr = apperrors.ContainerNotFound("docker.containerInspect", "c0001", nil)
	svc, _ := newTestService(store, rt)

	j, err := svc.CreateJob(context.Background(), "vanishing")
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if j.Status != StatusFailed || j.ContainerID != "" || j.VNCPort != 0 {
		t.Errorf("job = %+v, want FAILED without container", j)
	}
	if got := rt.removedIDs(); !slices.Equal(got, []string{"c0001"}) {
		t.Errorf("removed = %v, want [c0001]", got)
	}
	if len(rt.stopped) != 0 {
		t.Errorf("stopped = %v, want none", rt.stopped)
	}
}

func TestCreateJob_InvalidName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   \t"},
		{"too long", strings.Repeat("x", MaxNameLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newFakeStore()
			rt := newFakeRuntime()
			svc, _ := newTestService(store, rt)

			_, err := svc.CreateJob(context.Background(), tt.input)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("CreateJob() error = %v, want validation error", err)
			}
			if store.saveCount() != 0 || rt.callCount() != 0 {
				t.Errorf("expected no side effects, saves=%d runtime calls=%d", store.saveCount(), rt.callCount())
			}
		})
	}
}

func TestCreateJob_TrimsName(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc, _ := newTestService(store, newFakeRuntime())

	j, err := svc.CreateJob(context.Background(), "  spaced  ")
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if j.Name != "spaced" {
		t.Errorf("Name = %q, want %q", j.Name, "spaced")
	}
}

func TestCreateJob_PersistenceFailure(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.saveErr = errors.New("connection refused")
	rt := newFakeRuntime()
	svc, _ := newTestService(store, rt)

	_, err := svc.CreateJob(context.Background(), "unsaved")
	if !errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("CreateJob() error = %v, want persistence error", err)
	}
	if got := rt.removedIDs(); !slices.Equal(got, []string{"c0001"}) {
		t.Errorf("expected the unreferenced container to be removed, removed = %v", got)
	}
}

func TestCreateJob_CallerCancelMidCreate(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	rt := newFakeRuntime()
	svc, notifier := newTestService(store, rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.during = cancel

	j, err := svc.CreateJob(ctx, "impatient")
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if j.Status != StatusStarted || j.ContainerID != "c0001" {
		t.Errorf("job = %+v, want STARTED on c0001", j)
	}

	rows, _ := store.FindAll(context.Background())
	if len(rows) != 1 || rows[0].ContainerID != "c0001" {
		t.Fatalf("rows = %+v, want exactly one row referencing c0001", rows)
	}
	if got := rt.removedIDs(); len(got) != 0 {
		t.Errorf("removed = %v, want none", got)
	}
	if got := notifier.types(); !slices.Equal(got, []string{EventTypeStarted}) {
		t.Errorf("events = %v", got)
	}
}

func TestCreateJob_PassesReservedPorts(t *testing.T) {
	t.Parallel()
	store := newFakeStore(
		startedJob(1, "c-a", 40001),
		Job{ID: 2, Name: "stopped", Status: StatusStopped, ContainerID: "c-b", VNCPort: 40002},
		Job{ID: 3, Name: "failed", Status: StatusFailed},
	)
	ports := &fixedPorts{ports: []int{40003}}
	svc := NewService(store, newFakeRuntime(), ports, testConfig())

	if _, err := svc.CreateJob(context.Background(), "next"); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	reserved := ports.reserved[0]
	if len(reserved) != 2 || !reserved[40001] || !reserved[40002] {
		t.Errorf("reserved = %v, want {40001, 40002}", reserved)
	}
}

func TestCreateJob_ReservedPortsBestEffort(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.findAllErr = errors.New("db down")
	svc, _ := newTestService(store, newFakeRuntime())

	j, err := svc.CreateJob(context.Background(), "still-created")
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if j.Status != StatusStarted {
		t.Errorf("Status = %q, want STARTED", j.Status)
	}
}

// Every creation writes exactly one row, never with only one of container
// id and port set, whatever the runtime does.
func TestCreateJob_OneRowPerCall(t *testing.T) {
	t.Parallel()
	failures := []error{
		nil,
		apperrors.CreationRejected("op", errors.New("no image")),
		apperrors.RuntimeUnavailable("op", errors.New("dial unix")),
		nil,
		apperrors.RuntimeUnavailable("op", context.DeadlineExceeded),
	}

	store := newFakeStore()
	rt := newFakeRuntime()
	svc, _ := newTestService(store, rt, 30000, 30001, 30002, 30003, 30004)

	for i, failure := range failures {
		rt.mu.Lock()
		rt.createErr = failure
		rt.mu.Unlock()

		before := store.saveCount()
		j, err := svc.CreateJob(context.Background(), fmt.Sprintf("job-%d", i))
		if err != nil {
			t.Fatalf("CreateJob(%d) error = %v", i, err)
		}
		if store.saveCount()-before != 1 {
			t.Errorf("CreateJob(%d) wrote %d rows, want 1", i, store.saveCount()-before)
		}
		if j.Status != StatusStarted && j.Status != StatusFailed {
			t.Errorf("CreateJob(%d) status = %q", i, j.Status)
		}
		if (j.ContainerID == "") != (j.VNCPort == 0) {
			t.Errorf("CreateJob(%d) container/port mismatch: %q/%d", i, j.ContainerID, j.VNCPort)
		}
		if (failure == nil) != (j.Status == StatusStarted) {
			t.Errorf("CreateJob(%d) status = %q with runtime error %v", i, j.Status, failure)
		}
	}
}

func TestStopJob_Success(t *testing.T) {
	t.Parallel()
	store := newFakeStore(startedJob(7, "c-7", 41007))
	rt := newFakeRuntime()
	svc, notifier := newTestService(store, rt)

	if err := svc.StopJob(context.Background(), 7); err != nil {
		t.Fatalf("StopJob() error = %v", err)
	}

	j := store.get(7)
	if j.Status != StatusStopped {
		t.Errorf("Status = %q, want STOPPED", j.Status)
	}
	if j.ContainerID != "c-7" || j.VNCPort != 41007 {
		t.Errorf("linkage changed: %q/%d", j.ContainerID, j.VNCPort)
	}
	if j.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
	if !slices.Equal(rt.stopped, []string{"c-7"}) {
		t.Errorf("stopped = %v", rt.stopped)
	}
	if got := notifier.types(); !slices.Equal(got, []string{EventTypeStopped}) {
		t.Errorf("events = %v", got)
	}
}

func TestTransitions_CallerCancelMidRuntimeCall(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		op   func(*Service, context.Context, int64) error
		job  Job
		want Status
	}{
		{"stop", (*Service).StopJob, startedJob(8, "c-8", 41008), StatusStopped},
		{"start", (*Service).StartJob, Job{ID: 8, Name: "job-8", Status: StatusStopped, ContainerID: "c-8", VNCPort: 41008}, StatusStarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newFakeStore(tt.job)
			rt := newFakeRuntime()
			svc, _ := newTestService(store, rt)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			rt.during = cancel

			if err := tt.op(svc, ctx, 8); err != nil {
				t.Fatalf("error = %v", err)
			}
			if got := store.get(8).Status; got != tt.want {
				t.Errorf("persisted status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStopJob_SerializedPerJob(t *testing.T) {
	t.Parallel()
	store := newFakeStore(startedJob(6, "c-6", 41006))
	rt := newFakeRuntime()
	rt.stopGate = make(chan struct{})
	svc := NewService(store, rt, &fixedPorts{ports: []int{1}}, testConfig(),
		WithLocker(joblock.NewLocal(5*time.Second)))

	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- svc.StopJob(context.Background(), 6) }()
	}

	// Let both callers reach the lock before the first stop completes.
	time.Sleep(50 * time.Millisecond)
	close(rt.stopGate)

	for range 2 {
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("StopJob() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("StopJob did not return")
		}
	}

	stopped, maxConcurrent := rt.stopCalls()
	if maxConcurrent != 1 {
		t.Errorf("concurrent runtime stops = %d, want 1", maxConcurrent)
	}
	if len(stopped) != 2 {
		t.Errorf("stopped = %v, want two sequential stops", stopped)
	}
	if j := store.get(6); j.Status != StatusStopped || j.ContainerID != "c-6" || j.VNCPort != 41006 {
		t.Errorf("job = %+v, want STOPPED with linkage intact", j)
	}
}

func TestStopJob_UnknownID(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	rt := newFakeRuntime()
	svc, _ := newTestService(store, rt)

	err := svc.StopJob(context.Background(), 42)
	if !errors.Is(err, apperrors.ErrInvalidReference) || !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("StopJob() error = %v, want invalid reference wrapping not found", err)
	}
	if store.saveCount() != 0 {
		t.Errorf("saves = %d, want 0", store.saveCount())
	}
	if rt.callCount() != 0 {
		t.Errorf("runtime calls = %d, want 0", rt.callCount())
	}
}

func TestTransitions_NoContainer(t *testing.T) {
	t.Parallel()
	ops := map[string]func(*Service, context.Context, int64) error{
		"stop":  (*Service).StopJob,
		"start": (*Service).StartJob,
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := newFakeStore(Job{ID: 3, Name: "failed-at-create", Status: StatusFailed})
			rt := newFakeRuntime()
			svc, _ := newTestService(store, rt)

			err := op(svc, context.Background(), 3)
			if !errors.Is(err, apperrors.ErrInvalidReference) {
				t.Fatalf("error = %v, want invalid reference", err)
			}
			if errors.Is(err, apperrors.ErrNotFound) {
				t.Error("a job without a container is not a missing job")
			}
			if store.saveCount() != 0 || rt.callCount() != 0 {
				t.Errorf("expected no mutation, saves=%d runtime calls=%d", store.saveCount(), rt.callCount())
			}
			if store.get(3).Status != StatusFailed {
				t.Errorf("status changed to %q", store.get(3).Status)
			}
		})
	}
}

func TestStopJob_RuntimeFailureLeavesJob(t *testing.T) {
	t.Parallel()
	store := newFakeStore(startedJob(5, "c-5", 41005))
	rt := newFakeRuntime()
	rt.stopErrs["c-5"] = apperrors.RuntimeUnavailable("docker.containerStop", errors.New("daemon gone"))
	svc, notifier := newTestService(store, rt)

	err := svc.StopJob(context.Background(), 5)
	if !errors.Is(err, apperrors.ErrRuntimeUnavailable) {
		t.Fatalf("StopJob() error = %v, want runtime unavailable", err)
	}
	if store.get(5).Status != StatusStarted {
		t.Errorf("Status = %q, want STARTED", store.get(5).Status)
	}
	if store.saveCount() != 0 {
		t.Errorf("saves = %d, want 0", store.saveCount())
	}
	if got := notifier.types(); !slices.Equal(got, []string{EventTypeStopFailed}) {
		t.Errorf("events = %v", got)
	}
}

func TestStopJob_TimeoutIsRuntimeUnavailable(t *testing.T) {
	t.Parallel()
	store := newFakeStore(startedJob(9, "c-9", 41009))
	rt := newFakeRuntime()
	rt.blockStop = true
	cfg := testConfig()
	cfg.RuntimeTimeout = 20 * time.Millisecond
	svc := NewService(store, rt, &fixedPorts{ports: []int{1}}, cfg)

	err := svc.StopJob(context.Background(), 9)
	if !errors.Is(err, apperrors.ErrRuntimeUnavailable) {
		t.Fatalf("StopJob() error = %v, want runtime unavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline to be preserved, got %v", err)
	}
	if store.get(9).Status != StatusStarted {
		t.Errorf("Status = %q, want STARTED", store.get(9).Status)
	}
}

func TestStopJob_LockConflict(t *testing.T) {
	t.Parallel()
	store := newFakeStore(startedJob(4, "c-4", 41004))
	rt := newFakeRuntime()
	svc := NewService(store, rt, &fixedPorts{ports: []int{1}}, testConfig(), WithLocker(failingLocker{}))

	err := svc.StopJob(context.Background(), 4)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("StopJob() error = %v, want conflict", err)
	}
	if rt.callCount() != 0 {
		t.Errorf("runtime calls = %d, want 0", rt.callCount())
	}
}

func TestStartJob_Success(t *testing.T) {
	t.Parallel()
	store := newFakeStore(Job{ID: 2, Name: "resume", Status: StatusStopped, ContainerID: "c-2", VNCPort: 41002})
	rt := newFakeRuntime()
	svc, notifier := newTestService(store, rt)

	if err := svc.StartJob(context.Background(), 2); err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}
	if store.get(2).Status != StatusStarted {
		t.Errorf("Status = %q, want STARTED", store.get(2).Status)
	}
	if !slices.Equal(rt.started, []string{"c-2"}) {
		t.Errorf("started = %v", rt.started)
	}
	if got := notifier.types(); !slices.Equal(got, []string{EventTypeStarted}) {
		t.Errorf("events = %v", got)
	}
}

func TestStartJob_FailureMarksFailed(t *testing.T) {
	t.Parallel()
	store := newFakeStore(Job{ID: 2, Name: "resume", Status: StatusStopped, ContainerID: "c-2", VNCPort: 41002})
	rt := newFakeRuntime()
	rt.startErr = apperrors.ContainerNotFound("docker.containerStart", "c-2", nil)
	svc, notifier := newTestService(store, rt)

	err := svc.StartJob(context.Background(), 2)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("StartJob() error = %v, want not found", err)
	}

	j := store.get(2)
	if j.Status != StatusFailed {
		t.Errorf("Status = %q, want FAILED", j.Status)
	}
	if j.ContainerID != "c-2" || j.VNCPort != 41002 {
		t.Errorf("linkage changed: %q/%d", j.ContainerID, j.VNCPort)
	}
	if store.saveCount() != 1 {
		t.Errorf("saves = %d, want 1", store.saveCount())
	}
	if got := notifier.types(); !slices.Equal(got, []string{EventTypeFailed}) {
		t.Errorf("events = %v", got)
	}
}

func TestStopAllJobs_IsolatesFailures(t *testing.T) {
	t.Parallel()
	store := newFakeStore(
		startedJob(1, "c-1", 41001),
		startedJob(2, "c-2", 41002),
		Job{ID: 3, Name: "idle", Status: StatusStopped, ContainerID: "c-3", VNCPort: 41003},
	)
	rt := newFakeRuntime()
	rt.stopErrs["c-2"] = apperrors.RuntimeUnavailable("docker.containerStop", errors.New("timeout"))
	svc, notifier := newTestService(store, rt)

	report, err := svc.StopAllJobs(context.Background())
	if err != nil {
		t.Fatalf("StopAllJobs() error = %v", err)
	}

	if store.get(1).Status != StatusStopped {
		t.Errorf("job 1 status = %q, want STOPPED", store.get(1).Status)
	}
	if store.get(2).Status != StatusStarted {
		t.Errorf("job 2 status = %q, want STARTED", store.get(2).Status)
	}
	if slices.Contains(rt.stopped, "c-3") {
		t.Error("job 3 was not STARTED and must not be stopped")
	}
	if report.Stopped != 1 || report.Failed != 1 || len(report.Outcomes) != 2 {
		t.Errorf("report = %+v, want 1 stopped, 1 failed", report)
	}
	for _, o := range report.Outcomes {
		if o.JobID == 2 && (o.Stopped || o.Error == "") {
			t.Errorf("job 2 outcome = %+v, want failure with error", o)
		}
	}
	if !slices.Contains(notifier.types(), EventTypeStopAll) {
		t.Errorf("events = %v, missing %s", notifier.types(), EventTypeStopAll)
	}
}

func TestStopAllJobs_PartialFailureCounts(t *testing.T) {
	t.Parallel()
	const n, m = 10, 3

	var jobs []Job
	for i := int64(1); i <= n; i++ {
		jobs = append(jobs, startedJob(i, fmt.Sprintf("c-%d", i), 42000+int(i)))
	}
	store := newFakeStore(jobs...)
	rt := newFakeRuntime()
	for i := 1; i <= m; i++ {
		rt.stopErrs[fmt.Sprintf("c-%d", i)] = apperrors.ContainerNotFound("docker.containerStop", "", nil)
	}
	svc, _ := newTestService(store, rt)

	report, err := svc.StopAllJobs(context.Background())
	if err != nil {
		t.Fatalf("StopAllJobs() error = %v", err)
	}
	if report.Stopped != n-m || report.Failed != m {
		t.Errorf("report = %d stopped / %d failed, want %d / %d", report.Stopped, report.Failed, n-m, m)
	}

	stopped, started := 0, 0
	for i := int64(1); i <= n; i++ {
		switch store.get(i).Status {
		case StatusStopped:
			stopped++
		case StatusStarted:
			started++
		}
	}
	if stopped != n-m || started != m {
		t.Errorf("store has %d stopped / %d started, want %d / %d", stopped, started, n-m, m)
	}
}

func TestStopAllJobs_QueryFailure(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.findAllErr = errors.New("db down")
	svc, _ := newTestService(store, newFakeRuntime())

	if _, err := svc.StopAllJobs(context.Background()); !errors.Is(err, apperrors.ErrPersistence) {
		t.Errorf("StopAllJobs() error = %v, want persistence error", err)
	}
}

func TestListJobs_IsolatesResolutionFailures(t *testing.T) {
	t.Parallel()
	store := newFakeStore(
		startedJob(1, "c-1", 41001),
		startedJob(2, "c-gone", 41002),
		Job{ID: 3, Name: "failed", Status: StatusFailed},
	)
	rt := newFakeRuntime()
	rt.published["c-1"] = 41001
	svc, _ := newTestService(store, rt)

	listings, err := svc.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("len = %d, want 3", len(listings))
	}

	want := []string{
		"1 - job-1 [STARTED] VNC: http://localhost:41001/vnc_lite.html",
		"2 - job-2 [STARTED] VNC: N/A",
		"3 - failed [FAILED] VNC: N/A",
	}
	for i, l := range listings {
		if l.Display != want[i] {
			t.Errorf("listing[%d] = %q, want %q", i, l.Display, want[i])
		}
	}
}

func TestListings_Idempotent(t *testing.T) {
	t.Parallel()
	store := newFakeStore(startedJob(1, "c-1", 41001), startedJob(2, "c-2", 41002))
	rt := newFakeRuntime()
	rt.published["c-1"] = 41001
	rt.containers = []Container{
		{ID: "c-1", Names: []string{"/agent-1"}, Status: "Up 2 minutes", Ports: []PortMapping{{PrivatePort: 6080, PublicPort: 41001, Type: "tcp"}}},
		{ID: "c-9", Names: []string{"/other"}, Status: "Exited (0)"},
	}
	rt.images = []Image{{ID: "sha256:0123456789abcdef", RepoTags: []string{"coding-agent:latest"}, SizeBytes: 3 << 20}}
	svc, _ := newTestService(store, rt)
	ctx := context.Background()

	listers := map[string]func(context.Context) ([]string, error){
		"jobs":       svc.GetAllJobs,
		"containers": svc.GetAllContainers,
		"images":     svc.GetAllImages,
	}
	for name, list := range listers {
		first, err := list(ctx)
		if err != nil {
			t.Fatalf("%s: first listing error = %v", name, err)
		}
		second, err := list(ctx)
		if err != nil {
			t.Fatalf("%s: second listing error = %v", name, err)
		}
		if !slices.Equal(first, second) {
			t.Errorf("%s: listings differ:\n%v\n%v", name, first, second)
		}
		if len(first) == 0 {
			t.Errorf("%s: empty listing", name)
		}
	}
}

func TestJobForContainer(t *testing.T) {
	t.Parallel()
	store := newFakeStore(startedJob(1, "c-1", 41001))
	svc, _ := newTestService(store, newFakeRuntime())
	ctx := context.Background()

	j, err := svc.JobForContainer(ctx, "c-1")
	if err != nil || j.ID != 1 {
		t.Fatalf("JobForContainer() = %v, %v", j, err)
	}
	if _, err := svc.JobForContainer(ctx, "c-unknown"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown container error = %v, want not found", err)
	}
	if _, err := svc.JobForContainer(ctx, " "); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("blank container error = %v, want validation", err)
	}
}

func TestContainerName_UniqueWithinMillisecond(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(newFakeStore(), newFakeRuntime())
	fixed := time.UnixMilli(1700000000000)
	svc.now = func() time.Time { return fixed }

	first := svc.containerName()
	second := svc.containerName()
	if first != "agent-1700000000000" {
		t.Errorf("first = %q", first)
	}
	if second != "agent-1700000000001" {
		t.Errorf("second = %q, want next millisecond", second)
	}
}

func TestAccessURL(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(newFakeStore(), newFakeRuntime())
	if got := svc.AccessURL(34521); got != "http://localhost:34521/vnc_lite.html" {
		t.Errorf("AccessURL() = %q", got)
	}
}
