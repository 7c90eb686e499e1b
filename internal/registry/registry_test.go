package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchctl/benchctl/pkg/models"
)

// stopLog records the order handles were asked to stop, shared across fakes.
type stopLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *stopLog) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, name)
}

func (l *stopLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type fakeHandle struct {
	name string
	log  *stopLog

	mu         sync.Mutex
	done       chan struct{}
	exitErr    error
	terminates int
	kills      int

	// ignoreTerminate keeps the process alive through graceful stop so the
	// registry has to force-kill it.
	ignoreTerminate bool
}

func newFakeHandle(name string, log *stopLog) *fakeHandle {
	return &fakeHandle{name: name, log: log, done: make(chan struct{})}
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *fakeHandle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminates++
	if h.log != nil {
		h.log.record(h.name)
	}
	if !h.ignoreTerminate {
		h.closeLocked()
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kills++
	h.closeLocked()
	return nil
}

// exit simulates the process exiting on its own.
func (h *fakeHandle) exit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitErr = err
	h.closeLocked()
}

func (h *fakeHandle) closeLocked() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

type fakeSpawner struct {
	mu      sync.Mutex
	log     *stopLog
	handles map[string]*fakeHandle
	failFor map[string]error
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		log:     &stopLog{},
		handles: make(map[string]*fakeHandle),
		failFor: make(map[string]error),
	}
}

func (s *fakeSpawner) Spawn(_ context.Context, spec models.LaunchSpec) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[spec.Name]; ok {
		return nil, err
	}
	h := newFakeHandle(spec.Name, s.log)
	s.handles[spec.Name] = h
	return h, nil
}

func (s *fakeSpawner) handle(name string) *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[name]
}

func testProcess(mode models.Mode, index, rank int) Process {
	ep := models.Endpoint{Mode: mode, Index: index, Nodes: []string{"node0"}, GPUsPerNode: 8}
	return Process{
		Endpoint: ep,
		Rank:     rank,
		Spec: models.LaunchSpec{
			Name: ep.Name() + "_rank0",
			Node: "node0",
		},
	}
}

func namedProcess(name string) Process {
	p := testProcess(models.ModePrefill, 0, 0)
	p.Spec.Name = name
	return p
}

func TestLaunchAndMarkReady(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner)

	p := testProcess(models.ModePrefill, 0, 0)
	require.NoError(t, r.Launch(context.Background(), p))

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, StateLaunched, snap[0].State)
	assert.Equal(t, models.ModePrefill, snap[0].Mode)

	require.NoError(t, r.MarkReady(p.Spec.Name))
	assert.Equal(t, StateReady, r.Snapshot()[0].State)

	// MarkReady is a no-op once past Launched
	require.NoError(t, r.MarkReady(p.Spec.Name))
}

func TestMarkReadyUnknownProcess(t *testing.T) {
	r := New(newFakeSpawner())

	err := r.MarkReady("ghost")
	require.Error(t, err)

	var unknownErr *UnknownProcessError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestAddDuplicate(t *testing.T) {
	r := New(newFakeSpawner())
	p := testProcess(models.ModeDecode, 1, 0)

	require.NoError(t, r.Add(p))
	err := r.Add(p)
	require.Error(t, err)

	var dupErr *DuplicateProcessError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, p.Spec.Name, dupErr.Name)
}

func TestLaunchSpawnFailure(t *testing.T) {
	spawner := newFakeSpawner()
	p := testProcess(models.ModePrefill, 0, 0)
	spawner.failFor[p.Spec.Name] = errors.New("srun: node unavailable")

	r := New(spawner)
	err := r.Launch(context.Background(), p)
	require.Error(t, err)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "node0", launchErr.Node)

	assert.Equal(t, StateFailed, r.Snapshot()[0].State)
	assert.True(t, r.Tainted())
}

func TestSweepDetectsFailure(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner)
	ctx := context.Background()

	p := testProcess(models.ModeDecode, 0, 0)
	require.NoError(t, r.Launch(ctx, p))

	spawner.handle(p.Spec.Name).exit(errors.New("CUDA out of memory"))
	r.sweep(ctx)

	assert.True(t, r.Tainted())
	assert.Equal(t, StateFailed, r.Snapshot()[0].State)

	select {
	case f := <-r.Failures():
		assert.Equal(t, p.Spec.Name, f.Name)
		assert.Equal(t, models.ModeDecode, f.Mode)
		assert.Contains(t, f.Err.Error(), "CUDA out of memory")
	default:
		t.Fatal("expected a failure on the channel")
	}
}

func TestSweepUnrequestedCleanExitIsFailure(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner)
	ctx := context.Background()

	p := testProcess(models.ModePrefill, 0, 0)
	require.NoError(t, r.Launch(ctx, p))

	spawner.handle(p.Spec.Name).exit(nil)
	r.sweep(ctx)

	assert.Equal(t, StateFailed, r.Snapshot()[0].State)
	f := <-r.Failures()
	assert.Contains(t, f.Err.Error(), "exited unexpectedly")
}

func TestExitAfterStopRequestIsTerminated(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner)
	ctx := context.Background()

	p := testProcess(models.ModePrefill, 0, 0)
	require.NoError(t, r.Launch(ctx, p))
	require.NoError(t, r.Shutdown(ctx, time.Second))

	r.sweep(ctx)

	assert.Equal(t, StateTerminated, r.Snapshot()[0].State)
	assert.False(t, r.Tainted())
	select {
	case f := <-r.Failures():
		t.Fatalf("unexpected failure report: %+v", f)
	default:
	}
}

func TestShutdownReverseOrder(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner)
	ctx := context.Background()

	names := []string{"prefill_0_rank0", "decode_0_rank0", "frontend_0"}
	for _, name := range names {
		require.NoError(t, r.Launch(ctx, namedProcess(name)))
	}

	require.NoError(t, r.Shutdown(ctx, time.Second))

	assert.Equal(t, []string{"frontend_0", "decode_0_rank0", "prefill_0_rank0"},
		spawner.log.get())
	for _, s := range r.Snapshot() {
		assert.Equal(t, StateTerminated, s.State)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner)
	ctx := context.Background()

	p := testProcess(models.ModePrefill, 0, 0)
	require.NoError(t, r.Launch(ctx, p))

	require.NoError(t, r.Shutdown(ctx, time.Second))
	require.NoError(t, r.Shutdown(ctx, time.Second))

	h := spawner.handle(p.Spec.Name)
	assert.Equal(t, 1, h.terminates)
	assert.Equal(t, 0, h.kills)
}

func TestShutdownConcurrent(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Launch(ctx, testProcess(models.ModePrefill, i, 0)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Shutdown(ctx, time.Second))
		}()
	}
	wg.Wait()

	for _, h := range spawner.handles {
		assert.Equal(t, 1, h.terminates)
	}
}

func TestShutdownForceKillsAfterGrace(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner)
	ctx := context.Background()

	p := testProcess(models.ModeAggregated, 0, 0)
	require.NoError(t, r.Launch(ctx, p))

	h := spawner.handle(p.Spec.Name)
	h.mu.Lock()
	h.ignoreTerminate = true
	h.mu.Unlock()

	require.NoError(t, r.Shutdown(ctx, 20*time.Millisecond))

	assert.Equal(t, 1, h.terminates)
	assert.Equal(t, 1, h.kills)
	assert.Equal(t, StateTerminated, r.Snapshot()[0].State)
}

func TestMonitorLoopReportsFailure(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner, WithMonitorInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := testProcess(models.ModeDecode, 0, 0)
	require.NoError(t, r.Launch(ctx, p))

	go r.MonitorLoop(ctx)

	spawner.handle(p.Spec.Name).exit(errors.New("segfault"))

	select {
	case f := <-r.Failures():
		assert.Equal(t, p.Spec.Name, f.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor loop never reported the failure")
	}
}

func TestSnapshotLaunchOrder(t *testing.T) {
	spawner := newFakeSpawner()
	r := New(spawner)
	ctx := context.Background()

	names := []string{"prefill_0_rank0", "prefill_1_rank0", "decode_0_rank0"}
	for _, name := range names {
		require.NoError(t, r.Launch(ctx, namedProcess(name)))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	for i, name := range names {
		assert.Equal(t, name, snap[i].Name)
	}
}
