package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/juezlab/grader/internal/artifact"
	"github.com/juezlab/grader/internal/judge"
	"github.com/juezlab/grader/internal/models"
	"github.com/juezlab/grader/internal/queue"
	"github.com/juezlab/grader/internal/repository"
)

// ErrChallengeNotFound indicates the referenced challenge does not exist.
var ErrChallengeNotFound = errors.New("challenge not found")

// ErrChallengeNotPublished indicates the challenge is not accepting
// submissions.
var ErrChallengeNotPublished = errors.New("challenge not published")

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// CreateSubmissionInput carries a student's graded attempt.
type CreateSubmissionInput struct {
	ChallengeID string  `validate:"required"`
	UserID      string  `validate:"required"`
	Code        string  `validate:"required"`
	Language    string  `validate:"required"`
	ExamID      *string `validate:"omitempty"`
}

// SubmissionService is the ingestion side of the grading pipeline: it
// records the submission, hands its code to the artifact store and
// pushes the id onto the shared queue for a worker to claim.
type SubmissionService interface {
	Create(ctx context.Context, input CreateSubmissionInput) (models.Submission, error)
	Get(ctx context.Context, id string) (models.Submission, error)
	List(ctx context.Context, query repository.SubmissionQuery) ([]models.Submission, int64, error)
}

// NewSubmissionService constructs a submission service.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	challenges repository.ChallengeRepository,
	artifacts artifact.Store,
	q queue.SubmissionQueue,
	validate *validator.Validate,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		submissions: submissions,
		challenges:  challenges,
		artifacts:   artifacts,
		queue:       q,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

type submissionService struct {
	submissions repository.SubmissionRepository
	challenges  repository.ChallengeRepository
	artifacts   artifact.Store
	queue       queue.SubmissionQueue
	validator   *validator.Validate
	logger      zerolog.Logger
}

func (s *submissionService) Create(ctx context.Context, input CreateSubmissionInput) (models.Submission, error) {
	if err := s.validator.Struct(input); err != nil {
		return models.Submission{}, err
	}

	// Resolve the language up front so an unsupported tag is rejected at
	// creation time, never discovered mid-grading.
	lang, err := judge.ParseLanguage(input.Language)
	if err != nil {
		return models.Submission{}, err
	}

	challenge, err := s.challenges.GetByID(ctx, input.ChallengeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrChallengeNotFound
		}
		return models.Submission{}, err
	}
	if challenge.Status != models.ChallengeStatusPublished {
		return models.Submission{}, ErrChallengeNotPublished
	}

	submission := models.Submission{
		ID:          uuid.NewString(),
		ChallengeID: input.ChallengeID,
		UserID:      input.UserID,
		ExamID:      input.ExamID,
		Code:        input.Code,
		Language:    lang.String(),
		Status:      models.SubmissionStatusQueued,
	}

	if _, err := s.artifacts.Put(ctx, submission.ID, lang.SourceFileName(), []byte(input.Code)); err != nil {
		return models.Submission{}, fmt.Errorf("store code artifact: %w", err)
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, err
	}

	if err := s.queue.Enqueue(ctx, submission.ID); err != nil {
		// The record exists but no worker will ever pick it up; surface
		// the failure instead of leaving a stuck queued submission.
		s.logger.Error().Err(err).Str("submission_id", submission.ID).Msg("failed to enqueue submission")
		return models.Submission{}, fmt.Errorf("enqueue submission: %w", err)
	}

	s.logger.Info().
		Str("submission_id", submission.ID).
		Str("challenge_id", submission.ChallengeID).
		Str("language", submission.Language).
		Msg("submission queued")

	return submission, nil
}

func (s *submissionService) Get(ctx context.Context, id string) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *submissionService) List(ctx context.Context, query repository.SubmissionQuery) ([]models.Submission, int64, error) {
	return s.submissions.List(ctx, query)
}
