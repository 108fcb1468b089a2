// Package events publishes intake progress events to NATS. The publisher
// is optional: a nil *Publisher is a safe no-op, and publish failures are
// logged without affecting the request that triggered them.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects for intake progress events.
const (
	SubjectContributorCreated = "intake.contributor.created"
	SubjectStepCompleted      = "intake.step.completed"
	SubjectInterviewCompleted = "intake.interview.completed"
)

// StepCompleted is the payload for SubjectStepCompleted.
type StepCompleted struct {
	ContributorID string `json:"contributor_id"`
	SessionID     string `json:"session_id,omitempty"`
	Step          string `json:"step"`
	CompletedAt   string `json:"completed_at"`
}

type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, logger: logger}, nil
}

// Publish emits an event, logging and swallowing failures. Events are
// advisory; the flow never blocks on them.
func (p *Publisher) Publish(subject string, data any) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Error("marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("publish event failed", "subject", subject, "error", err)
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Close()
}
