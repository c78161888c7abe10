// Package notify publishes tag lifecycle events for downstream consumers
// such as movement registers and audit trails.
//
// Events are small, self-describing records: one per generated tag, one per
// successful scan and one per rejected scan. Publishers encode them with a
// payload.Codec (JSON by default) and ship them over a broker.
//
// Usage:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	pub := notify.NewNATSPublisher(nc)
//	defer pub.Close()
//
//	err := pub.Publish(ctx, notify.NewEvent(notify.EventGenerated, kewtag.KindAsset, "1001", "AST-2025-001"))
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/payload"
	"go.uber.org/multierr"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("notify: publisher closed")

// EventType names a tag lifecycle event.
type EventType string

// Event types.
const (
	EventGenerated EventType = "tag.generated"
	EventScanned   EventType = "tag.scanned"
	EventRejected  EventType = "tag.rejected"
)

// Event describes one tag lifecycle occurrence.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	Kind       kewtag.Kind `json:"kind,omitempty"`
	EntityID   string      `json:"entity_id,omitempty"`
	Code       string      `json:"code,omitempty"`
	Failure    string      `json:"failure,omitempty"` // set on EventRejected
	OccurredAt time.Time   `json:"occurred_at"`
}

// NewEvent creates an event with a fresh id, stamped now in UTC.
func NewEvent(typ EventType, kind kewtag.Kind, entityID, code string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Kind:       kind,
		EntityID:   entityID,
		Code:       code,
		OccurredAt: time.Now().UTC(),
	}
}

// Rejected creates a tag.rejected event for a failed scan.
func Rejected(failure kewtag.Failure) *Event {
	e := NewEvent(EventRejected, "", "", "")
	e.Failure = failure.String()
	return e
}

// Publisher ships events to a broker.
// Implementations must be safe for concurrent use.
type Publisher interface {
	// Publish sends one event. It blocks until the broker accepts the event
	// or ctx is done.
	Publish(ctx context.Context, e *Event) error

	// Close releases the publisher's resources.
	Close() error
}

// Option configures a publisher.
type Option func(*options)

type options struct {
	codec         payload.Codec
	logger        *slog.Logger
	subjectPrefix string
	topic         string
}

func newOptions(opts []Option) *options {
	o := &options{
		codec:         payload.Default(),
		logger:        slog.Default(),
		subjectPrefix: DefaultSubjectPrefix,
		topic:         DefaultTopic,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCodec sets the event encoding. Defaults to JSON.
func WithCodec(c payload.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSubjectPrefix sets the NATS subject prefix. Defaults to "kewtag.".
func WithSubjectPrefix(prefix string) Option {
	return func(o *options) {
		o.subjectPrefix = prefix
	}
}

// WithTopic sets the Kafka topic. Defaults to "kewtag-events".
func WithTopic(topic string) Option {
	return func(o *options) {
		if topic != "" {
			o.topic = topic
		}
	}
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, *Event) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }

// Fanout publishes each event to every publisher in order.
// All publishers are attempted; their errors are combined.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, e *Event) error {
	var err error
	for _, p := range f {
		err = multierr.Append(err, p.Publish(ctx, e))
	}
	return err
}

// Close implements Publisher.
func (f Fanout) Close() error {
	var err error
	for _, p := range f {
		err = multierr.Append(err, p.Close())
	}
	return err
}

// Compile-time checks
var (
	_ Publisher = Noop{}
	_ Publisher = Fanout(nil)
)
