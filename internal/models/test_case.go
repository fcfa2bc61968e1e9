package models

import "time"

// TestCase is one (input, expected output, points) fixture belonging to
// a challenge. Fixtures are immutable while grading is in flight; the
// worker only ever reads them.
type TestCase struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ChallengeID    string    `gorm:"size:36;not null;index" json:"challenge_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Input          string    `gorm:"type:text" json:"input"`
	ExpectedOutput string    `gorm:"type:text" json:"expected_output"`
	IsSample       bool      `gorm:"default:false" json:"is_sample"`
	Points         int       `gorm:"default:10" json:"points"`
	CreatedAt      time.Time `json:"created_at"`
}

// TotalPoints sums the point weights of the given cases.
func TotalPoints(cases []TestCase) int {
	total := 0
	for _, tc := range cases {
		total += tc.Points
	}
	return total
}
