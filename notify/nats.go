package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/rbaliyan/kewtag/payload"
)

// DefaultSubjectPrefix is prepended to the event type to form the subject,
// e.g. "kewtag.tag.scanned".
const DefaultSubjectPrefix = "kewtag."

// ErrConnRequired is returned when a nil NATS connection is given.
var ErrConnRequired = errors.New("notify: nats connection is required")

// NATSPublisher publishes events over NATS Core.
//
// Delivery is at-most-once: events published while no subscriber is
// connected are dropped. The connection is owned by the caller and is not
// closed by Close; Close only flushes pending messages.
type NATSPublisher struct {
	conn   *nats.Conn
	codec  payload.Codec
	prefix string
	logger *slog.Logger
	closed atomic.Bool
}

// NewNATSPublisher creates a NATS publisher.
func NewNATSPublisher(conn *nats.Conn, opts ...Option) (*NATSPublisher, error) {
	if conn == nil {
		return nil, ErrConnRequired
	}
	o := newOptions(opts)
	return &NATSPublisher{
		conn:   conn,
		codec:  o.codec,
		prefix: o.subjectPrefix,
		logger: o.logger.With("component", "notify>nats"),
	}, nil
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(typ EventType) string {
	return p.prefix + string(typ)
}

// Publish encodes e and publishes it on the subject for its type.
func (p *NATSPublisher) Publish(ctx context.Context, e *Event) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := p.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(e.Type))
	msg.Header.Set("Content-Type", p.codec.ContentType())
	msg.Header.Set(nats.MsgIdHdr, e.ID)
	msg.Data = data

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	p.logger.Debug("event published", "subject", msg.Subject, "id", e.ID)
	return nil
}

// Close flushes buffered messages. Safe to call multiple times.
func (p *NATSPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if p.conn.IsClosed() {
		return nil
	}
	return p.conn.Flush()
}

// Compile-time check
var _ Publisher = (*NATSPublisher)(nil)
