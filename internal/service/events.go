package service

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event subjects published by the grading pipeline.
const (
	SubjectSubmissionGraded  = "submission.graded"
	SubjectScoreOverridden   = "submission.score_overridden"
	SubjectGradingRecomputed = "grading.recomputed"
)

// EventDispatcher publishes domain events for interested consumers. Delivery
// is best effort; persistence never depends on a publish succeeding.
type EventDispatcher interface {
	Dispatch(subject string, payload interface{})
}

type natsDispatcher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSDispatcher wraps a NATS connection as an event dispatcher. Subjects
// are published under the given prefix. A nil connection yields a no-op
// dispatcher so callers never have to branch.
func NewNATSDispatcher(conn *nats.Conn, prefix string, logger zerolog.Logger) EventDispatcher {
	if prefix == "" {
		prefix = "edugraph"
	}
	return &natsDispatcher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "event_dispatcher").Logger(),
	}
}

func (d *natsDispatcher) Dispatch(subject string, payload interface{}) {
	if d.conn == nil {
		return
	}

	full := d.prefix + "." + subject
	body, err := json.Marshal(envelope{
		Subject:   full,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		d.logger.Error().Err(err).Str("subject", full).Msg("failed to encode event payload")
		return
	}

	if err := d.conn.Publish(full, body); err != nil {
		d.logger.Warn().Err(err).Str("subject", full).Msg("failed to publish event")
	}
}

type envelope struct {
	Subject   string      `json:"subject"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// SubmissionGradedEvent is published after block feedback and the recomputed
// submission aggregate are persisted.
type SubmissionGradedEvent struct {
	SubmissionID uint     `json:"submission_id"`
	BlockID      uint     `json:"block_id"`
	Code         int      `json:"code"`
	Score        *float64 `json:"score"`
	Grade        *string  `json:"grade"`
}

// GradingRecomputedEvent is published after a recompute batch finishes.
type GradingRecomputedEvent struct {
	AssignmentID uint `json:"assignment_id"`
	Total        int  `json:"total"`
	Failed       int  `json:"failed"`
}
