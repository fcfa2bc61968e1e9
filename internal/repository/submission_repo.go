package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/juezlab/grader/internal/models"
)

// SubmissionQuery narrows submission listings.
type SubmissionQuery struct {
	ChallengeID string
	UserID      string
	Status      string
	Limit       int
	Offset      int
}

// SubmissionRepository exposes persistence helpers for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	Save(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (models.Submission, error)
	List(ctx context.Context, query SubmissionQuery) ([]models.Submission, int64, error)
	SaveReport(ctx context.Context, report *models.GradingReport) error
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Save(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).First(&submission, "id = ?", id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) List(ctx context.Context, query SubmissionQuery) ([]models.Submission, int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Submission{})
	if query.ChallengeID != "" {
		tx = tx.Where("challenge_id = ?", query.ChallengeID)
	}
	if query.UserID != "" {
		tx = tx.Where("user_id = ?", query.UserID)
	}
	if query.Status != "" {
		tx = tx.Where("status = ?", query.Status)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}

	var items []models.Submission
	err := tx.Order("created_at DESC").Limit(limit).Offset(query.Offset).Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *submissionRepository) SaveReport(ctx context.Context, report *models.GradingReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}
