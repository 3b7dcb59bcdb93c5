// Package notify publishes run lifecycle notifications over NATS. The
// event set carries the scheduler's mail policy (begin, end, fail) onto
// message subjects; a JetStream KV bucket mirrors each run's latest status
// so consumers can look runs up without replaying the stream. Delivery is
// best-effort: a run never fails because a notification did.
package notify

import (
	"context"
	"time"

	"git.home.luguber.info/inful/poolpilot/internal/config"
)

// Message is the JSON payload published for a lifecycle event.
type Message struct {
	RunID     string    `json:"run_id"`
	JobID     string    `json:"job_id,omitempty"`
	JobName   string    `json:"job_name,omitempty"`
	Event     string    `json:"event"`             // begin|end|fail
	Outcome   string    `json:"outcome,omitempty"` // terminal events only
	RunDir    string    `json:"run_dir,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers lifecycle notifications. Implementations must tolerate
// canceled contexts and must never block a run on delivery.
type Notifier interface {
	Publish(ctx context.Context, msg Message) error
	Close()
}

// Noop is the Notifier used when no NATS URL is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Message) error { return nil }
func (Noop) Close()                                 {}

// EventForOutcome maps a terminal run outcome onto the notification event.
// Success and warning runs end normally; failed and canceled runs fail.
func EventForOutcome(outcome string) config.NotifyEvent {
	switch outcome {
	case "success", "warning":
		return config.NotifyOnEnd
	default:
		return config.NotifyOnFail
	}
}
