package judge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/juezlab/grader/internal/artifact"
	"github.com/juezlab/grader/internal/events"
	"github.com/juezlab/grader/internal/models"
	"github.com/juezlab/grader/internal/protocol"
	"github.com/juezlab/grader/internal/queue"
	"github.com/juezlab/grader/internal/repository"
)

// Worker is the grading control loop: it blocks on the submission queue,
// drives staging, sandbox launch and verdict interpretation for one
// submission at a time, and persists the outcome. Failures are contained
// per iteration; the loop only stops when its context is cancelled.
type Worker struct {
	queue       queue.SubmissionQueue
	submissions repository.SubmissionRepository
	challenges  repository.ChallengeRepository
	testCases   repository.TestCaseRepository
	artifacts   artifact.Store
	stager      *Stager
	launcher    Launcher
	metrics     Metrics
	publisher   events.Publisher
	logger      zerolog.Logger
	backoff     time.Duration
}

// WorkerDeps groups the worker's collaborators.
type WorkerDeps struct {
	Queue       queue.SubmissionQueue
	Submissions repository.SubmissionRepository
	Challenges  repository.ChallengeRepository
	TestCases   repository.TestCaseRepository
	Artifacts   artifact.Store
	Stager      *Stager
	Launcher    Launcher
	Metrics     Metrics
	Publisher   events.Publisher
	Backoff     time.Duration
}

// NewWorker constructs a grading worker.
func NewWorker(deps WorkerDeps, logger zerolog.Logger) *Worker {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	backoff := deps.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Worker{
		queue:       deps.Queue,
		submissions: deps.Submissions,
		challenges:  deps.Challenges,
		testCases:   deps.TestCases,
		artifacts:   deps.Artifacts,
		stager:      deps.Stager,
		launcher:    deps.Launcher,
		metrics:     metrics,
		publisher:   publisher,
		logger:      logger.With().Str("component", "grading_worker").Logger(),
		backoff:     backoff,
	}
}

// Run consumes jobs until ctx is cancelled. It never returns on a
// grading or transient queue failure. Cancellation only interrupts the
// queue wait: once a job has been popped it is gone from Redis, so the
// grading pipeline runs on a detached context and the in-flight
// submission always drains to a real verdict before the loop exits.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker started, waiting for jobs")

	for {
		submissionID, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info().Msg("worker shutting down")
				return nil
			}
			w.logger.Error().Err(err).Msg("queue dequeue failed")
			w.sleep(ctx)
			continue
		}

		w.process(context.WithoutCancel(ctx), submissionID)

		if ctx.Err() != nil {
			w.logger.Info().Msg("worker shutting down")
			return nil
		}
	}
}

func (w *Worker) process(ctx context.Context, submissionID string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Str("submission_id", submissionID).Msg("grading panicked")
			w.metrics.IncFailed()
			w.sleep(ctx)
		}
	}()

	logger := w.logger.With().Str("submission_id", submissionID).Logger()
	logger.Info().Msg("picked submission job")
	w.metrics.IncTotal()

	submission, err := w.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn().Msg("submission not found, dropping job")
			return
		}
		logger.Error().Err(err).Msg("failed to load submission")
		w.sleep(ctx)
		return
	}

	if err := submission.Start(); err != nil {
		logger.Warn().Err(err).Str("status", submission.Status).Msg("submission not in a gradable state")
		return
	}
	// Persist running before grading so the transition is observable.
	if err := w.submissions.Save(ctx, &submission); err != nil {
		logger.Error().Err(err).Msg("failed to persist running status")
		w.sleep(ctx)
		return
	}

	start := time.Now()
	result, testCases, gradeErr := w.grade(ctx, submission)
	pipelineTime := time.Since(start)
	w.metrics.ObservePipelineDuration(pipelineTime)

	if gradeErr != nil {
		logger.Error().Err(gradeErr).Dur("pipeline_time", pipelineTime).Msg("grading pipeline failed")
		result = protocol.Result{Status: protocol.StatusError, Stderr: gradeErr.Error()}
	}

	score := Score(result.Cases, testCases)
	status := VerdictStatus(result.Status)

	var transitionErr error
	switch status {
	case models.SubmissionStatusAccepted:
		transitionErr = submission.Accept()
		w.metrics.IncAccepted()
	case models.SubmissionStatusWrongAnswer:
		transitionErr = submission.Reject()
		w.metrics.IncRejected()
	default:
		transitionErr = submission.Fail()
		w.metrics.IncFailed()
	}
	if transitionErr != nil {
		logger.Error().Err(transitionErr).Msg("verdict transition rejected")
		return
	}

	submission.RecordResult(score, result.TimeMsTotal)
	w.metrics.RecordExecutionTime(result.TimeMsTotal)

	if err := w.submissions.Save(ctx, &submission); err != nil {
		logger.Error().Err(err).Msg("failed to persist verdict")
		w.sleep(ctx)
		return
	}

	w.saveReport(ctx, submission, result, logger)

	if err := w.publisher.SubmissionGraded(ctx, events.SubmissionGraded{
		SubmissionID: submission.ID,
		ChallengeID:  submission.ChallengeID,
		UserID:       submission.UserID,
		Status:       submission.Status,
		Score:        submission.Score,
		TimeMsTotal:  submission.TimeMsTotal,
	}); err != nil {
		logger.Error().Err(err).Msg("failed to publish graded event")
	}

	logger.Info().
		Str("challenge_id", submission.ChallengeID).
		Str("user_id", submission.UserID).
		Str("status", submission.Status).
		Int("score", submission.Score).
		Int64("time_ms_total", submission.TimeMsTotal).
		Dur("pipeline_time", pipelineTime).
		Msg("submission processed")
}

// grade runs the fixture staging, sandbox launch and verdict parsing for
// one submission. The returned test cases are in fixture order so the
// caller can score the result even when the aggregate is a failure.
func (w *Worker) grade(ctx context.Context, submission models.Submission) (protocol.Result, []models.TestCase, error) {
	lang, err := ParseLanguage(submission.Language)
	if err != nil {
		return protocol.Result{}, nil, err
	}

	testCases, err := w.testCases.ListByChallenge(ctx, submission.ChallengeID)
	if err != nil {
		return protocol.Result{}, nil, err
	}
	if len(testCases) == 0 {
		return protocol.Result{}, nil, ErrNoTestCases
	}

	challenge, err := w.challenges.GetByID(ctx, submission.ChallengeID)
	if err != nil {
		return protocol.Result{}, testCases, err
	}

	handle := artifact.Handle{SubmissionID: submission.ID, SourceFile: lang.SourceFileName()}
	codeDir, err := w.artifacts.Resolve(ctx, handle)
	if err != nil {
		return protocol.Result{}, testCases, err
	}

	fixtureDir, cleanup, err := w.stager.Stage(submission.ID, testCases)
	if err != nil {
		return protocol.Result{}, testCases, err
	}
	defer cleanup()

	result, err := w.launcher.Launch(ctx, LaunchRequest{
		Language:      lang,
		CodeDir:       codeDir,
		SourceFile:    handle.SourceFile,
		FixtureDir:    fixtureDir,
		TimeLimitMs:   challenge.EffectiveTimeLimitMs(),
		MemoryLimitMB: challenge.EffectiveMemoryLimitMB(),
		NumCases:      len(testCases),
	})
	return result, testCases, err
}

func (w *Worker) saveReport(ctx context.Context, submission models.Submission, result protocol.Result, logger zerolog.Logger) {
	cases, err := json.Marshal(result.Cases)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode case results")
		cases = []byte("[]")
	}

	report := models.GradingReport{
		SubmissionID: submission.ID,
		Status:       result.Status,
		Score:        submission.Score,
		TimeMsTotal:  result.TimeMsTotal,
		Cases:        datatypes.JSON(cases),
		Stderr:       result.Stderr,
	}
	if err := w.submissions.SaveReport(ctx, &report); err != nil {
		logger.Error().Err(err).Msg("failed to persist grading report")
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-time.After(w.backoff):
	case <-ctx.Done():
	}
}
