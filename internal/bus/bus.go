// Package bus publishes sync lifecycle events (deploy sent, artifact
// applied, rollback performed) to NATS JetStream so other systems can react
// without polling the job table. The bus is optional: a nil *Bus is safe to
// publish to and does nothing.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Event subjects published by the sync pipeline.
const (
	SubjectDeploySent      = "syncpress.deploy.sent"
	SubjectArtifactApplied = "syncpress.artifact.applied"
	SubjectApplyFailed     = "syncpress.artifact.failed"
	SubjectRolledBack      = "syncpress.artifact.rolledback"
)

// Bus wraps a NATS JetStream connection for publishing sync events.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a Bus connected to the provided NATS endpoint.
func New(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

// Close shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish encodes v as JSON and publishes it to the given subject.
// Best-effort: failures are logged, never propagated — eventing must not
// affect the sync pipeline's outcome.
func (b *Bus) Publish(ctx context.Context, subject string, v any) {
	if b == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("bus marshal failed", "subject", subject, "error", err)
		return
	}
	if _, err := b.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		slog.Warn("bus publish failed", "subject", subject, "error", err)
	}
}
