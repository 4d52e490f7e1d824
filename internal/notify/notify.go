// Package notify fans committed audit events out to NATS. Publishing is
// best effort: the store has already committed by the time a batch gets
// here, and a failure is reported back only so it can be logged.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/HendryAvila/lifecycle/internal/store"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "lifecycle"

// Publisher is the subset of *nats.Conn the notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier implements store.EventSink on a NATS connection.
type Notifier struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	conn   *nats.Conn
}

// New wraps an existing publisher.
func New(pub Publisher, prefix string, logger *slog.Logger) *Notifier {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pub: pub, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Connect dials url and returns a notifier that owns the connection.
func Connect(url, prefix string, logger *slog.Logger) (*Notifier, error) {
	conn, err := nats.Connect(url, nats.Name("lifecycle"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	n := New(conn, prefix, logger)
	n.conn = conn
	return n, nil
}

// Subject returns "<prefix>.<entity_type>.<event_kind>".
func (n *Notifier) Subject(ev store.Event) string {
	return fmt.Sprintf("%s.%s.%s", n.prefix, ev.EntityType, ev.Kind)
}

// Publish sends each event as JSON on its own subject. All events are
// attempted; the joined errors are returned.
func (n *Notifier) Publish(ctx context.Context, events []store.Event) error {
	if n == nil || n.pub == nil {
		return nil
	}
	var errs []error
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		data, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode event %d: %w", ev.ID, err))
			continue
		}
		subject := n.Subject(ev)
		if err := n.pub.Publish(subject, data); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", subject, err))
			continue
		}
		n.logger.Debug("event published", "subject", subject, "entity_id", ev.EntityID, "request_id", ev.RequestID)
	}
	return errors.Join(errs...)
}

// Close drains the owned connection, if any.
func (n *Notifier) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
