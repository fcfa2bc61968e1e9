package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/juezlab/grader/internal/models"
)

// ChallengeRepository exposes the read path the grading pipeline needs.
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *models.Challenge) error
	Update(ctx context.Context, challenge *models.Challenge) error
	GetByID(ctx context.Context, id string) (models.Challenge, error)
}

// NewChallengeRepository constructs a challenge repository.
func NewChallengeRepository(db *gorm.DB) ChallengeRepository {
	return &challengeRepository{db: db}
}

type challengeRepository struct {
	db *gorm.DB
}

func (r *challengeRepository) Create(ctx context.Context, challenge *models.Challenge) error {
	return r.db.WithContext(ctx).Create(challenge).Error
}

func (r *challengeRepository) Update(ctx context.Context, challenge *models.Challenge) error {
	return r.db.WithContext(ctx).Save(challenge).Error
}

func (r *challengeRepository) GetByID(ctx context.Context, id string) (models.Challenge, error) {
	var challenge models.Challenge
	err := r.db.WithContext(ctx).First(&challenge, "id = ?", id).Error
	if err != nil {
		return models.Challenge{}, err
	}
	return challenge, nil
}
