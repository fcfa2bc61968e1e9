package models

import (
	"time"

	"gorm.io/datatypes"
)

// GradingReport preserves the raw runner verdict for a submission so
// operators can distinguish compile, runtime and infrastructure failures
// after the external status has been collapsed to error/wrong_answer/
// accepted.
type GradingReport struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SubmissionID string         `gorm:"size:36;not null;index" json:"submission_id"`
	Status       string         `gorm:"size:32;not null" json:"status"`
	Score        int            `gorm:"default:0" json:"score"`
	TimeMsTotal  int64          `gorm:"default:0" json:"time_ms_total"`
	Cases        datatypes.JSON `json:"cases"`
	Stderr       string         `gorm:"type:text" json:"stderr"`
	CreatedAt    time.Time      `json:"created_at"`
}
