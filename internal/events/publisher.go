package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubjectSubmissionGraded is the subject terminal verdicts are announced
// on.
const SubjectSubmissionGraded = "submission.graded"

// SubmissionGraded is published after a terminal verdict has been
// persisted.
type SubmissionGraded struct {
	SubmissionID string `json:"submission_id"`
	ChallengeID  string `json:"challenge_id"`
	UserID       string `json:"user_id"`
	Status       string `json:"status"`
	Score        int    `json:"score"`
	TimeMsTotal  int64  `json:"time_ms_total"`
}

// Publisher announces grading outcomes to interested consumers
// (leaderboards, notifications). Publishing failures never affect the
// verdict already persisted.
type Publisher interface {
	SubmissionGraded(ctx context.Context, event SubmissionGraded) error
}

// NopPublisher discards every event; used when no broker is configured.
type NopPublisher struct{}

// SubmissionGraded drops the event.
func (NopPublisher) SubmissionGraded(ctx context.Context, event SubmissionGraded) error {
	return nil
}

// NewNATSPublisher constructs a publisher over an established NATS
// connection.
func NewNATSPublisher(conn *nats.Conn, logger zerolog.Logger) Publisher {
	return &natsPublisher{
		conn:   conn,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

type natsPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

func (p *natsPublisher) SubmissionGraded(ctx context.Context, event SubmissionGraded) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal graded event: %w", err)
	}

	if err := p.conn.Publish(SubjectSubmissionGraded, payload); err != nil {
		return fmt.Errorf("publish graded event: %w", err)
	}

	p.logger.Debug().Str("submission_id", event.SubmissionID).Str("status", event.Status).Msg("published graded event")
	return nil
}
