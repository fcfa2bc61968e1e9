package models

import (
	"fmt"
	"time"
)

// SubmissionStatus values follow the verdict state machine: a submission
// starts queued, moves to running exactly once, and ends in a single
// terminal state. No transition ever leaves a terminal state.
const (
	SubmissionStatusQueued      = "queued"
	SubmissionStatusRunning     = "running"
	SubmissionStatusAccepted    = "accepted"
	SubmissionStatusWrongAnswer = "wrong_answer"
	SubmissionStatusError       = "error"
)

var submissionTransitions = map[string][]string{
	SubmissionStatusQueued:  {SubmissionStatusRunning},
	SubmissionStatusRunning: {SubmissionStatusAccepted, SubmissionStatusWrongAnswer, SubmissionStatusError},
}

// Submission represents one graded attempt by a user at a challenge.
type Submission struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	ChallengeID string    `gorm:"size:36;not null;index" json:"challenge_id"`
	UserID      string    `gorm:"size:36;not null;index" json:"user_id"`
	ExamID      *string   `gorm:"size:36" json:"exam_id,omitempty"`
	Code        string    `gorm:"type:text" json:"code"`
	Language    string    `gorm:"size:32;not null" json:"language"`
	Status      string    `gorm:"size:32;not null" json:"status"`
	Score       int       `gorm:"default:0" json:"score"`
	TimeMsTotal int64     `gorm:"default:0" json:"time_ms_total"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Submission) transition(to string) error {
	for _, allowed := range submissionTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			return nil
		}
	}
	return fmt.Errorf("illegal submission transition %s -> %s", s.Status, to)
}

// Start marks the submission as picked up by a worker.
func (s *Submission) Start() error {
	return s.transition(SubmissionStatusRunning)
}

// Accept records an accepted verdict.
func (s *Submission) Accept() error {
	return s.transition(SubmissionStatusAccepted)
}

// Reject records a wrong-answer verdict.
func (s *Submission) Reject() error {
	return s.transition(SubmissionStatusWrongAnswer)
}

// Fail records an error verdict.
func (s *Submission) Fail() error {
	return s.transition(SubmissionStatusError)
}

// RecordResult stores the final score and cumulative execution time.
// Only meaningful once a terminal verdict has been reached.
func (s *Submission) RecordResult(score int, timeMs int64) {
	s.Score = score
	s.TimeMsTotal = timeMs
}

// IsTerminal reports whether the submission has reached a final verdict.
func (s Submission) IsTerminal() bool {
	switch s.Status {
	case SubmissionStatusAccepted, SubmissionStatusWrongAnswer, SubmissionStatusError:
		return true
	}
	return false
}
