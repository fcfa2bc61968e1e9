package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/juezlab/grader/internal/models"
)

// TestCaseRepository exposes persistence helpers for challenge fixtures.
// ListByChallenge returns cases in a stable order; fixture staging and
// scoring both depend on that order being identical between calls.
type TestCaseRepository interface {
	Create(ctx context.Context, testCase *models.TestCase) error
	ListByChallenge(ctx context.Context, challengeID string) ([]models.TestCase, error)
}

// NewTestCaseRepository constructs a test case repository.
func NewTestCaseRepository(db *gorm.DB) TestCaseRepository {
	return &testCaseRepository{db: db}
}

type testCaseRepository struct {
	db *gorm.DB
}

func (r *testCaseRepository) Create(ctx context.Context, testCase *models.TestCase) error {
	return r.db.WithContext(ctx).Create(testCase).Error
}

func (r *testCaseRepository) ListByChallenge(ctx context.Context, challengeID string) ([]models.TestCase, error) {
	var cases []models.TestCase
	err := r.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("created_at ASC, id ASC").
		Find(&cases).Error
	if err != nil {
		return nil, err
	}
	return cases, nil
}
