package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/poolpilot/internal/config"
	perrors "git.home.luguber.info/inful/poolpilot/internal/errors"
	"git.home.luguber.info/inful/poolpilot/internal/logfields"
)

const publishTimeout = 5 * time.Second

// NATSNotifier publishes lifecycle events to JetStream subjects
// <prefix>.<event> and mirrors the latest message per run into a KV bucket
// keyed by run ID.
type NATSNotifier struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	prefix string
	policy config.NotifyConfig
}

// New builds a Notifier from configuration. An empty NATS URL yields the
// Noop notifier; a configured URL that cannot be reached is an error the
// caller downgrades to a warning.
func New(cfg config.NotifyConfig) (Notifier, error) {
	if cfg.NATSURL == "" {
		return Noop{}, nil
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("poolpilot"))
	if err != nil {
		return nil, perrors.NotifyError(cfg.SubjectPrefix, err).WithContext("url", cfg.NATSURL)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, perrors.NotifyError(cfg.SubjectPrefix, fmt.Errorf("create JetStream context: %w", err))
	}

	n := &NATSNotifier{
		conn:   conn,
		js:     js,
		prefix: cfg.SubjectPrefix,
		policy: cfg,
	}

	if cfg.KVBucket != "" {
		if err := n.initKVBucket(cfg.KVBucket); err != nil {
			conn.Close()
			return nil, err
		}
	}

	slog.Info("Lifecycle notifier connected",
		logfields.URL(cfg.NATSURL),
		logfields.Subject(cfg.SubjectPrefix),
		logfields.Name(cfg.KVBucket))
	return n, nil
}

// initKVBucket binds to the status bucket, creating it on first use.
func (n *NATSNotifier) initKVBucket(bucket string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := n.js.KeyValue(ctx, bucket)
	if err == nil {
		n.kv = kv
		return nil
	}

	kv, err = n.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Latest run status per run ID",
		History:     1,
	})
	if err != nil {
		return perrors.NotifyError(bucket, fmt.Errorf("create KV bucket: %w", err))
	}

	n.kv = kv
	slog.Info("Created run status KV bucket", logfields.Name(bucket))
	return nil
}

// Publish sends the message if the configured policy includes its event.
// Events outside the policy are silently dropped.
func (n *NATSNotifier) Publish(ctx context.Context, msg Message) error {
	event := config.NormalizeNotifyEvent(msg.Event)
	if event == "" || !n.policy.NotifiesOn(event) {
		return nil
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return perrors.NotifyError(msg.Event, err)
	}

	subject := n.prefix + "." + string(event)
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if _, err := n.js.Publish(pubCtx, subject, data); err != nil {
		return perrors.NotifyError(subject, err).WithContext("run_id", msg.RunID)
	}

	if n.kv != nil && msg.RunID != "" {
		if _, err := n.kv.Put(pubCtx, msg.RunID, data); err != nil {
			return perrors.NotifyError(subject, fmt.Errorf("mirror to KV: %w", err)).WithContext("run_id", msg.RunID)
		}
	}

	slog.Debug("Published lifecycle event",
		logfields.Subject(subject),
		logfields.RunID(msg.RunID),
		logfields.Outcome(msg.Outcome))
	return nil
}

// Close drains the connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
