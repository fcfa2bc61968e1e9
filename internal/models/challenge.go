package models

import (
	"errors"
	"time"
)

// Challenge lifecycle states.
const (
	ChallengeStatusDraft     = "draft"
	ChallengeStatusPublished = "published"
	ChallengeStatusArchived  = "archived"
)

// Default execution limits applied when a challenge does not override them.
const (
	DefaultTimeLimitMs   = 1500
	DefaultMemoryLimitMB = 256
)

// ErrChallengeArchived indicates a lifecycle operation is not allowed on
// an archived challenge.
var ErrChallengeArchived = errors.New("challenge is archived")

// Challenge represents a programming problem students submit against.
// The grading pipeline only consumes its execution limits; the rest is
// authoring metadata.
type Challenge struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	Description   string    `gorm:"type:text" json:"description"`
	Status        string    `gorm:"size:32;not null" json:"status"`
	TimeLimitMs   int64     `gorm:"default:1500" json:"time_limit_ms"`
	MemoryLimitMB int64     `gorm:"default:256" json:"memory_limit_mb"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Publish makes the challenge visible for submissions.
func (c *Challenge) Publish() error {
	if c.Status == ChallengeStatusArchived {
		return ErrChallengeArchived
	}
	c.Status = ChallengeStatusPublished
	return nil
}

// Archive retires the challenge.
func (c *Challenge) Archive() {
	c.Status = ChallengeStatusArchived
}

// EffectiveTimeLimitMs returns the configured time limit or the default.
func (c Challenge) EffectiveTimeLimitMs() int64 {
	if c.TimeLimitMs <= 0 {
		return DefaultTimeLimitMs
	}
	return c.TimeLimitMs
}

// EffectiveMemoryLimitMB returns the configured memory limit or the default.
func (c Challenge) EffectiveMemoryLimitMB() int64 {
	if c.MemoryLimitMB <= 0 {
		return DefaultMemoryLimitMB
	}
	return c.MemoryLimitMB
}
