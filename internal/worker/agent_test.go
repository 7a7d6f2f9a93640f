package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crmforge/internal/crm"
	"crmforge/internal/notify"
	"crmforge/internal/store"

	"github.com/google/uuid"
)

type completeCall struct {
	JobID  uuid.UUID
	Result json.RawMessage
}

type failCall struct {
	JobID     uuid.UUID
	ErrMsg    string
	Retryable bool
}

// MockQueue implements store.Queue with configurable behavior and call
// recording.
type MockQueue struct {
	mu sync.Mutex

	ClaimNextFunc func(ctx context.Context) (*store.Job, error)
	CompleteFunc  func(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error
	FailFunc      func(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) error

	CompleteCalls []completeCall
	FailCalls     []failCall
	ReclaimCalls  int
}

func (m *MockQueue) Enqueue(ctx context.Context, tx store.DBTransaction, job *store.Job) error {
	return nil
}

func (m *MockQueue) ClaimNext(ctx context.Context) (*store.Job, error) {
	if m.ClaimNextFunc != nil {
		return m.ClaimNextFunc(ctx)
	}
	return nil, nil
}

func (m *MockQueue) ReportProgress(ctx context.Context, jobID uuid.UUID, percent int, message string) error {
	return nil
}

func (m *MockQueue) Complete(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, completeCall{JobID: jobID, Result: result})
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, jobID, result)
	}
	return nil
}

func (m *MockQueue) Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retryable bool) error {
	m.mu.Lock()
	m.FailCalls = append(m.FailCalls, failCall{JobID: jobID, ErrMsg: errMsg, Retryable: retryable})
	m.mu.Unlock()
	if m.FailFunc != nil {
		return m.FailFunc(ctx, jobID, errMsg, retryable)
	}
	return nil
}

func (m *MockQueue) Cancel(ctx context.Context, jobID uuid.UUID) error {
	return nil
}

func (m *MockQueue) IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return false, nil
}

func (m *MockQueue) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	m.ReclaimCalls++
	m.mu.Unlock()
	return 0, nil
}

func (m *MockQueue) GetJobByID(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return nil, store.ErrNotFound
}

func (m *MockQueue) CountPending(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *MockQueue) completeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompleteCalls)
}

func (m *MockQueue) failCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.FailCalls)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, ev notify.Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

type stubHandler struct {
	jobType store.JobType
	handle  func(ctx context.Context, job *store.Job) (json.RawMessage, error)
}

func (h *stubHandler) Type() store.JobType { return h.jobType }

func (h *stubHandler) Handle(ctx context.Context, job *store.Job) (json.RawMessage, error) {
	return h.handle(ctx, job)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJob(jobType store.JobType) *store.Job {
	return &store.Job{
		ID:          uuid.New(),
		Type:        jobType,
		Status:      store.JobStatusProcessing,
		Attempts:    1,
		MaxAttempts: 3,
	}
}

func TestNew_Defaults(t *testing.T) {
	a := New(&MockQueue{}, nil, nil, testLogger(), AgentConfig{})

	if a.config.Concurrency != 1 {
		t.Errorf("expected default concurrency 1, got %d", a.config.Concurrency)
	}
	if a.config.PollInterval != 1*time.Second {
		t.Errorf("expected default poll interval 1s, got %v", a.config.PollInterval)
	}
	if a.config.MaxBackoff != 30*time.Second {
		t.Errorf("expected default max backoff 30s, got %v", a.config.MaxBackoff)
	}
	if a.config.StaleClaimThreshold != 10*time.Minute {
		t.Errorf("expected default stale threshold 10m, got %v", a.config.StaleClaimThreshold)
	}
	if a.config.StaleSweepInterval != 1*time.Minute {
		t.Errorf("expected default sweep interval 1m, got %v", a.config.StaleSweepInterval)
	}
	if _, ok := a.notifier.(notify.Noop); !ok {
		t.Errorf("expected nil notifier to default to Noop, got %T", a.notifier)
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	queue := &MockQueue{}
	a := New(queue, nil, nil, testLogger(), AgentConfig{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop after context cancellation")
	}

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after shutdown")
	}
}

func TestRun_CompletesClaimedJob(t *testing.T) {
	job := testJob(store.JobTypeGeneration)
	var claimed atomic.Bool

	queue := &MockQueue{
		ClaimNextFunc: func(ctx context.Context) (*store.Job, error) {
			if claimed.CompareAndSwap(false, true) {
				return job, nil
			}
			return nil, nil
		},
	}

	notifier := &recordingNotifier{}
	a := New(queue, notifier, nil, testLogger(), AgentConfig{PollInterval: 10 * time.Millisecond})
	a.Register(&stubHandler{
		jobType: store.JobTypeGeneration,
		handle: func(ctx context.Context, j *store.Job) (json.RawMessage, error) {
			return json.RawMessage(`{"records":5}`), nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	deadline := time.After(2 * time.Second)
	for queue.completeCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("job was never completed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-a.Done()

	if queue.CompleteCalls[0].JobID != job.ID {
		t.Errorf("completed wrong job: %s", queue.CompleteCalls[0].JobID)
	}
	if string(queue.CompleteCalls[0].Result) != `{"records":5}` {
		t.Errorf("unexpected result: %s", queue.CompleteCalls[0].Result)
	}
	if queue.failCount() != 0 {
		t.Errorf("expected no Fail calls, got %d", queue.failCount())
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.events))
	}
	if notifier.events[0].Status != string(store.JobStatusCompleted) {
		t.Errorf("expected completed notification, got %s", notifier.events[0].Status)
	}
}

func TestProcess_UnknownJobTypeFailsPermanently(t *testing.T) {
	queue := &MockQueue{}
	a := New(queue, nil, nil, testLogger(), AgentConfig{})

	job := testJob(store.JobType("unknown"))
	a.process(context.Background(), job)

	if queue.failCount() != 1 {
		t.Fatalf("expected 1 Fail call, got %d", queue.failCount())
	}
	if queue.FailCalls[0].Retryable {
		t.Error("unknown job type must not be retried")
	}
}

func TestProcess_RetryableFailure(t *testing.T) {
	queue := &MockQueue{}
	notifier := &recordingNotifier{}
	a := New(queue, notifier, nil, testLogger(), AgentConfig{})
	a.Register(&stubHandler{
		jobType: store.JobTypeInjection,
		handle: func(ctx context.Context, j *store.Job) (json.RawMessage, error) {
			return nil, &crm.CreationError{
				ObjectType: store.ObjectAccount,
				StatusCode: 503,
				Message:    "service unavailable",
				Transient:  true,
			}
		},
	})

	job := testJob(store.JobTypeInjection)
	a.process(context.Background(), job)

	if queue.failCount() != 1 {
		t.Fatalf("expected 1 Fail call, got %d", queue.failCount())
	}
	if !queue.FailCalls[0].Retryable {
		t.Error("transient creation error should be retryable")
	}

	// Attempts below MaxAttempts, so the job goes back to pending.
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0].Status != string(store.JobStatusPending) {
		t.Errorf("expected pending notification, got %+v", notifier.events)
	}
}

func TestProcess_PermanentFailure(t *testing.T) {
	queue := &MockQueue{}
	notifier := &recordingNotifier{}
	a := New(queue, notifier, nil, testLogger(), AgentConfig{})
	a.Register(&stubHandler{
		jobType: store.JobTypeCleanup,
		handle: func(ctx context.Context, j *store.Job) (json.RawMessage, error) {
			return nil, errors.New("malformed payload")
		},
	})

	job := testJob(store.JobTypeCleanup)
	a.process(context.Background(), job)

	if queue.failCount() != 1 {
		t.Fatalf("expected 1 Fail call, got %d", queue.failCount())
	}
	if queue.FailCalls[0].Retryable {
		t.Error("unclassified errors must be treated as permanent")
	}
	if queue.FailCalls[0].ErrMsg != "malformed payload" {
		t.Errorf("unexpected error message: %s", queue.FailCalls[0].ErrMsg)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0].Status != string(store.JobStatusFailed) {
		t.Errorf("expected failed notification, got %+v", notifier.events)
	}
}

func TestProcess_CancelledJobNotSettled(t *testing.T) {
	queue := &MockQueue{}
	notifier := &recordingNotifier{}
	a := New(queue, notifier, nil, testLogger(), AgentConfig{})
	a.Register(&stubHandler{
		jobType: store.JobTypeGeneration,
		handle: func(ctx context.Context, j *store.Job) (json.RawMessage, error) {
			return nil, ErrJobCancelled
		},
	})

	job := testJob(store.JobTypeGeneration)
	a.process(context.Background(), job)

	if queue.completeCount() != 0 || queue.failCount() != 0 {
		t.Errorf("cancelled job must not be settled: %d completes, %d fails",
			queue.completeCount(), queue.failCount())
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 1 || notifier.events[0].Status != string(store.JobStatusCancelled) {
		t.Errorf("expected cancelled notification, got %+v", notifier.events)
	}
}

func TestProcess_CompleteLostRaceIgnored(t *testing.T) {
	queue := &MockQueue{
		CompleteFunc: func(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
			return store.ErrJobNotClaimable
		},
	}
	notifier := &recordingNotifier{}
	a := New(queue, notifier, nil, testLogger(), AgentConfig{})
	a.Register(&stubHandler{
		jobType: store.JobTypeGeneration,
		handle: func(ctx context.Context, j *store.Job) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	})

	a.process(context.Background(), testJob(store.JobTypeGeneration))

	if queue.failCount() != 0 {
		t.Errorf("lost completion race must not trigger Fail, got %d calls", queue.failCount())
	}

	// A concurrent cancel already notified; the worker stays quiet.
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 0 {
		t.Errorf("expected no notifications, got %+v", notifier.events)
	}
}

func TestRun_ConcurrencyLimit(t *testing.T) {
	const concurrency = 3
	const totalJobs = 10

	var produced atomic.Int32
	var running atomic.Int32
	var peak atomic.Int32
	var finished atomic.Int32

	queue := &MockQueue{
		ClaimNextFunc: func(ctx context.Context) (*store.Job, error) {
			if produced.Add(1) > totalJobs {
				return nil, nil
			}
			return testJob(store.JobTypeGeneration), nil
		},
	}

	a := New(queue, nil, nil, testLogger(), AgentConfig{
		Concurrency:  concurrency,
		PollInterval: 5 * time.Millisecond,
	})
	a.Register(&stubHandler{
		jobType: store.JobTypeGeneration,
		handle: func(ctx context.Context, j *store.Job) (json.RawMessage, error) {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			running.Add(-1)
			finished.Add(1)
			return nil, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	deadline := time.After(5 * time.Second)
	for finished.Load() < totalJobs {
		select {
		case <-deadline:
			t.Fatalf("only %d of %d jobs finished", finished.Load(), totalJobs)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-a.Done()

	if p := peak.Load(); p > concurrency {
		t.Errorf("concurrency limit violated: peak %d > %d", p, concurrency)
	}
	if queue.completeCount() != totalJobs {
		t.Errorf("expected %d completions, got %d", totalJobs, queue.completeCount())
	}
}

func TestRun_GracefulDrainInFlight(t *testing.T) {
	var claimed atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})

	var handlerCtxErr error
	var settleCtxErr error

	queue := &MockQueue{
		ClaimNextFunc: func(ctx context.Context) (*store.Job, error) {
			if claimed.CompareAndSwap(false, true) {
				return testJob(store.JobTypeInjection), nil
			}
			return nil, nil
		},
		CompleteFunc: func(ctx context.Context, jobID uuid.UUID, result json.RawMessage) error {
			settleCtxErr = ctx.Err()
			return nil
		},
	}

	a := New(queue, nil, nil, testLogger(), AgentConfig{PollInterval: 5 * time.Millisecond})
	a.Register(&stubHandler{
		jobType: store.JobTypeInjection,
		handle: func(ctx context.Context, j *store.Job) (json.RawMessage, error) {
			close(started)
			<-release
			// Shutdown must not cancel a running job's context.
			handlerCtxErr = ctx.Err()
			return json.RawMessage(`{}`), nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}

	// Cancel while the job is mid-flight, then let it finish.
	cancel()
	time.Sleep(20 * time.Millisecond)
	if queue.completeCount() != 0 {
		t.Fatal("job settled before handler returned")
	}
	close(release)

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not drain in-flight job")
	}

	if queue.completeCount() != 1 {
		t.Errorf("in-flight job must complete during drain, got %d completions", queue.completeCount())
	}
	if handlerCtxErr != nil {
		t.Errorf("handler context cancelled during drain: %v", handlerCtxErr)
	}
	if settleCtxErr != nil {
		t.Errorf("settlement context cancelled during drain: %v", settleCtxErr)
	}
}

func TestRun_SweepsStaleClaims(t *testing.T) {
	queue := &MockQueue{}
	a := New(queue, nil, nil, testLogger(), AgentConfig{
		PollInterval:       10 * time.Millisecond,
		StaleSweepInterval: 15 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		queue.mu.Lock()
		n := queue.ReclaimCalls
		queue.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("stale sweep never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-a.Done()
}
