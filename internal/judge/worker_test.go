package judge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/juezlab/grader/internal/artifact"
	"github.com/juezlab/grader/internal/events"
	"github.com/juezlab/grader/internal/models"
	"github.com/juezlab/grader/internal/protocol"
	"github.com/juezlab/grader/internal/repository"
)

type memSubmissions struct {
	mu      sync.Mutex
	items   map[string]models.Submission
	history map[string][]string
	reports []models.GradingReport
}

func newMemSubmissions(subs ...models.Submission) *memSubmissions {
	m := &memSubmissions{items: map[string]models.Submission{}, history: map[string][]string{}}
	for _, s := range subs {
		m.items[s.ID] = s
		m.history[s.ID] = []string{s.Status}
	}
	return m
}

func (m *memSubmissions) Create(ctx context.Context, s *models.Submission) error {
	return m.Save(ctx, s)
}

func (m *memSubmissions) Save(ctx context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.ID] = *s
	m.history[s.ID] = append(m.history[s.ID], s.Status)
	return nil
}

func (m *memSubmissions) GetByID(ctx context.Context, id string) (models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (m *memSubmissions) List(ctx context.Context, query repository.SubmissionQuery) ([]models.Submission, int64, error) {
	return nil, 0, nil
}

func (m *memSubmissions) SaveReport(ctx context.Context, report *models.GradingReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, *report)
	return nil
}

func (m *memSubmissions) get(t *testing.T, id string) models.Submission {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	require.True(t, ok)
	return s
}

func (m *memSubmissions) statuses(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history[id]...)
}

type memChallenges struct {
	items map[string]models.Challenge
}

func (m *memChallenges) Create(ctx context.Context, c *models.Challenge) error { return nil }
func (m *memChallenges) Update(ctx context.Context, c *models.Challenge) error { return nil }

func (m *memChallenges) GetByID(ctx context.Context, id string) (models.Challenge, error) {
	c, ok := m.items[id]
	if !ok {
		return models.Challenge{}, gorm.ErrRecordNotFound
	}
	return c, nil
}

type memTestCases struct {
	items map[string][]models.TestCase
}

func (m *memTestCases) Create(ctx context.Context, tc *models.TestCase) error { return nil }

func (m *memTestCases) ListByChallenge(ctx context.Context, challengeID string) ([]models.TestCase, error) {
	return m.items[challengeID], nil
}

type stubLauncher struct {
	mu      sync.Mutex
	lastReq LaunchRequest
	result  protocol.Result
	err     error

	// When set, Launch signals started and blocks until release is
	// closed, checking the context it was handed on the way out.
	started chan struct{}
	release chan struct{}
	lastCtx error
}

func (s *stubLauncher) Launch(ctx context.Context, req LaunchRequest) (protocol.Result, error) {
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()

	if s.started != nil {
		close(s.started)
		<-s.release
		s.mu.Lock()
		s.lastCtx = ctx.Err()
		s.mu.Unlock()
	}
	return s.result, s.err
}

type captureMetrics struct {
	mu        sync.Mutex
	total     int
	accepted  int
	rejected  int
	failed    int
	execTimes []int64
}

func (c *captureMetrics) IncTotal()    { c.mu.Lock(); c.total++; c.mu.Unlock() }
func (c *captureMetrics) IncAccepted() { c.mu.Lock(); c.accepted++; c.mu.Unlock() }
func (c *captureMetrics) IncRejected() { c.mu.Lock(); c.rejected++; c.mu.Unlock() }
func (c *captureMetrics) IncFailed()   { c.mu.Lock(); c.failed++; c.mu.Unlock() }

func (c *captureMetrics) RecordExecutionTime(ms int64) {
	c.mu.Lock()
	c.execTimes = append(c.execTimes, ms)
	c.mu.Unlock()
}

func (c *captureMetrics) ObservePipelineDuration(d time.Duration) {}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.SubmissionGraded
}

func (c *capturePublisher) SubmissionGraded(ctx context.Context, event events.SubmissionGraded) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return nil
}

type chanQueue struct {
	ch chan string
}

func (q *chanQueue) Enqueue(ctx context.Context, id string) error {
	q.ch <- id
	return nil
}

func (q *chanQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type workerFixture struct {
	worker      *Worker
	submissions *memSubmissions
	launcher    *stubLauncher
	metrics     *captureMetrics
	publisher   *capturePublisher
	artifacts   artifact.Store
	queue       *chanQueue
}

func newWorkerFixture(t *testing.T, sub models.Submission, cases []models.TestCase, result protocol.Result) *workerFixture {
	t.Helper()

	submissions := newMemSubmissions(sub)
	challenges := &memChallenges{items: map[string]models.Challenge{
		sub.ChallengeID: {ID: sub.ChallengeID, Status: models.ChallengeStatusPublished, TimeLimitMs: 1500, MemoryLimitMB: 256},
	}}
	testCases := &memTestCases{items: map[string][]models.TestCase{sub.ChallengeID: cases}}

	store, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)

	stager, err := NewStager(t.TempDir(), false, zerolog.Nop())
	require.NoError(t, err)

	launcher := &stubLauncher{result: result}
	metrics := &captureMetrics{}
	publisher := &capturePublisher{}
	q := &chanQueue{ch: make(chan string, 4)}

	worker := NewWorker(WorkerDeps{
		Queue:       q,
		Submissions: submissions,
		Challenges:  challenges,
		TestCases:   testCases,
		Artifacts:   store,
		Stager:      stager,
		Launcher:    launcher,
		Metrics:     metrics,
		Publisher:   publisher,
		Backoff:     time.Millisecond,
	}, zerolog.Nop())

	return &workerFixture{
		worker:      worker,
		submissions: submissions,
		launcher:    launcher,
		metrics:     metrics,
		publisher:   publisher,
		artifacts:   store,
		queue:       q,
	}
}

func queuedSubmission(id, language string) models.Submission {
	return models.Submission{
		ID:          id,
		ChallengeID: "chal-1",
		UserID:      "user-1",
		Code:        "print(sum(map(int, input().split())))",
		Language:    language,
		Status:      models.SubmissionStatusQueued,
	}
}

func sumTestCases(points ...int) []models.TestCase {
	cases := make([]models.TestCase, len(points))
	for i, p := range points {
		cases[i] = models.TestCase{ChallengeID: "chal-1", Input: "3 4", ExpectedOutput: "7", Points: p}
	}
	return cases
}

func putArtifact(t *testing.T, fx *workerFixture, sub models.Submission, fileName string) {
	t.Helper()
	_, err := fx.artifacts.Put(context.Background(), sub.ID, fileName, []byte(sub.Code))
	require.NoError(t, err)
}

func TestWorkerGradesAcceptedSubmission(t *testing.T) {
	sub := queuedSubmission("sub-1", "python")
	result := protocol.Result{
		Status:      protocol.StatusAccepted,
		TimeMsTotal: 842,
		Cases: []protocol.CaseResult{
			{CaseID: 1, Status: protocol.CaseOK, TimeMs: 400},
			{CaseID: 2, Status: protocol.CaseOK, TimeMs: 442},
		},
	}
	fx := newWorkerFixture(t, sub, sumTestCases(25, 75), result)
	putArtifact(t, fx, sub, "main.py")

	fx.worker.process(context.Background(), sub.ID)

	got := fx.submissions.get(t, sub.ID)
	require.Equal(t, models.SubmissionStatusAccepted, got.Status)
	require.Equal(t, 100, got.Score)
	require.Equal(t, int64(842), got.TimeMsTotal)

	// Every observed status is a strict prefix of the full machine.
	require.Equal(t, []string{
		models.SubmissionStatusQueued,
		models.SubmissionStatusRunning,
		models.SubmissionStatusAccepted,
	}, fx.submissions.statuses(sub.ID))

	require.Equal(t, 1, fx.metrics.total)
	require.Equal(t, 1, fx.metrics.accepted)
	require.Equal(t, []int64{842}, fx.metrics.execTimes)

	require.Len(t, fx.publisher.events, 1)
	require.Equal(t, models.SubmissionStatusAccepted, fx.publisher.events[0].Status)
	require.Equal(t, 100, fx.publisher.events[0].Score)

	require.Len(t, fx.submissions.reports, 1)
	require.Equal(t, protocol.StatusAccepted, fx.submissions.reports[0].Status)

	// The launcher saw the challenge's limits and the fixture count.
	require.Equal(t, int64(1500), fx.launcher.lastReq.TimeLimitMs)
	require.Equal(t, int64(256), fx.launcher.lastReq.MemoryLimitMB)
	require.Equal(t, 2, fx.launcher.lastReq.NumCases)
}

func TestWorkerRuntimeErrorKeepsEarnedPoints(t *testing.T) {
	sub := queuedSubmission("sub-2", "python")
	result := protocol.Result{
		Status:      protocol.StatusRuntimeError,
		TimeMsTotal: 100,
		Cases: []protocol.CaseResult{
			{CaseID: 1, Status: protocol.CaseOK, TimeMs: 50},
			{CaseID: 2, Status: protocol.CaseRuntimeError, TimeMs: 50, Stderr: "Traceback"},
		},
	}
	fx := newWorkerFixture(t, sub, sumTestCases(50, 50), result)
	putArtifact(t, fx, sub, "main.py")

	fx.worker.process(context.Background(), sub.ID)

	got := fx.submissions.get(t, sub.ID)
	require.Equal(t, models.SubmissionStatusError, got.Status)
	require.Equal(t, 50, got.Score)
	require.Equal(t, 1, fx.metrics.failed)
}

func TestWorkerWrongAnswerVerdict(t *testing.T) {
	sub := queuedSubmission("sub-3", "python")
	result := protocol.Result{
		Status:      protocol.StatusWrongAnswer,
		TimeMsTotal: 20,
		Cases: []protocol.CaseResult{
			{CaseID: 1, Status: protocol.CaseOK, TimeMs: 10},
			{CaseID: 2, Status: protocol.CaseWrongAnswer, TimeMs: 10},
		},
	}
	fx := newWorkerFixture(t, sub, sumTestCases(25, 25), result)
	putArtifact(t, fx, sub, "main.py")

	fx.worker.process(context.Background(), sub.ID)

	got := fx.submissions.get(t, sub.ID)
	require.Equal(t, models.SubmissionStatusWrongAnswer, got.Status)
	require.Equal(t, 50, got.Score)
	require.Equal(t, 1, fx.metrics.rejected)
}

func TestWorkerDropsMissingSubmission(t *testing.T) {
	sub := queuedSubmission("sub-4", "python")
	fx := newWorkerFixture(t, sub, sumTestCases(100), protocol.Result{Status: protocol.StatusAccepted})

	fx.worker.process(context.Background(), "no-such-id")

	require.Equal(t, 1, fx.metrics.total)
	require.Equal(t, 0, fx.metrics.accepted+fx.metrics.rejected+fx.metrics.failed)
	require.Empty(t, fx.publisher.events)
}

func TestWorkerUnsupportedLanguageBecomesError(t *testing.T) {
	sub := queuedSubmission("sub-5", "ruby")
	fx := newWorkerFixture(t, sub, sumTestCases(100), protocol.Result{Status: protocol.StatusAccepted})

	fx.worker.process(context.Background(), sub.ID)

	got := fx.submissions.get(t, sub.ID)
	require.Equal(t, models.SubmissionStatusError, got.Status)
	require.Equal(t, 0, got.Score)
	require.Equal(t, 1, fx.metrics.failed)
}

func TestWorkerZeroTestCasesBecomesError(t *testing.T) {
	sub := queuedSubmission("sub-6", "python")
	fx := newWorkerFixture(t, sub, nil, protocol.Result{Status: protocol.StatusAccepted})
	putArtifact(t, fx, sub, "main.py")

	fx.worker.process(context.Background(), sub.ID)

	got := fx.submissions.get(t, sub.ID)
	require.Equal(t, models.SubmissionStatusError, got.Status)

	require.Len(t, fx.submissions.reports, 1)
	require.Contains(t, fx.submissions.reports[0].Stderr, "no test cases")
}

func TestWorkerMissingCodeArtifactBecomesError(t *testing.T) {
	sub := queuedSubmission("sub-7", "python")
	fx := newWorkerFixture(t, sub, sumTestCases(100), protocol.Result{Status: protocol.StatusAccepted})
	// No artifact put: the code assets never landed on disk.

	fx.worker.process(context.Background(), sub.ID)

	got := fx.submissions.get(t, sub.ID)
	require.Equal(t, models.SubmissionStatusError, got.Status)
	require.Equal(t, 1, fx.metrics.failed)
}

func TestWorkerShutdownDrainsInFlightSubmission(t *testing.T) {
	sub := queuedSubmission("sub-9", "python")
	result := protocol.Result{
		Status:      protocol.StatusAccepted,
		TimeMsTotal: 7,
		Cases:       []protocol.CaseResult{{CaseID: 1, Status: protocol.CaseOK, TimeMs: 7}},
	}
	fx := newWorkerFixture(t, sub, sumTestCases(100), result)
	putArtifact(t, fx, sub, "main.py")

	fx.launcher.started = make(chan struct{})
	fx.launcher.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.worker.Run(ctx) }()

	require.NoError(t, fx.queue.Enqueue(ctx, sub.ID))

	select {
	case <-fx.launcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("launcher never started")
	}

	// Shut down while the sandbox run is in flight, then let it finish.
	cancel()
	close(fx.launcher.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker loop did not stop after cancellation")
	}

	// The grading context must have survived the shutdown signal; the
	// in-flight submission gets its real verdict, not an error.
	fx.launcher.mu.Lock()
	launchCtxErr := fx.launcher.lastCtx
	fx.launcher.mu.Unlock()
	require.NoError(t, launchCtxErr)

	got := fx.submissions.get(t, sub.ID)
	require.Equal(t, models.SubmissionStatusAccepted, got.Status)
	require.Equal(t, 100, got.Score)
	require.Len(t, fx.publisher.events, 1)
}

func TestWorkerRunLoopStopsOnCancel(t *testing.T) {
	sub := queuedSubmission("sub-8", "python")
	result := protocol.Result{
		Status:      protocol.StatusAccepted,
		TimeMsTotal: 5,
		Cases:       []protocol.CaseResult{{CaseID: 1, Status: protocol.CaseOK, TimeMs: 5}},
	}
	fx := newWorkerFixture(t, sub, sumTestCases(100), result)
	putArtifact(t, fx, sub, "main.py")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.worker.Run(ctx) }()

	require.NoError(t, fx.queue.Enqueue(ctx, sub.ID))

	require.Eventually(t, func() bool {
		got, err := fx.submissions.GetByID(context.Background(), sub.ID)
		return err == nil && got.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker loop did not stop after cancellation")
	}
}
