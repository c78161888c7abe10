package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/IBM/sarama"
	"github.com/rbaliyan/kewtag/payload"
)

// DefaultTopic is the Kafka topic events are produced to.
const DefaultTopic = "kewtag-events"

// Errors
var (
	ErrProducerRequired = errors.New("notify: kafka producer is required")
	ErrProducerFailed   = errors.New("notify: failed to create kafka producer")
)

// KafkaPublisher produces events to a single Kafka topic.
//
// Each message is keyed by the tag code so every event for one tag lands
// on the same partition, in order. The event type and content type travel
// as record headers.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	codec    payload.Codec
	topic    string
	logger   *slog.Logger
	closed   atomic.Bool
}

// NewKafkaPublisher wraps a sync producer. Close closes the producer.
func NewKafkaPublisher(producer sarama.SyncProducer, opts ...Option) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, ErrProducerRequired
	}
	o := newOptions(opts)
	return &KafkaPublisher{
		producer: producer,
		codec:    o.codec,
		topic:    o.topic,
		logger:   o.logger.With("component", "notify>kafka"),
	}, nil
}

// NewKafkaPublisherFromClient creates a sync producer on client.
//
// The client config must set Producer.Return.Successes = true, as sarama
// requires for sync producers:
//
//	config := sarama.NewConfig()
//	config.Producer.Return.Successes = true
//	config.Producer.RequiredAcks = sarama.WaitForAll
//	client, err := sarama.NewClient(brokers, config)
func NewKafkaPublisherFromClient(client sarama.Client, opts ...Option) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		return nil, errors.Join(ErrProducerFailed, err)
	}
	return NewKafkaPublisher(producer, opts...)
}

// Topic returns the destination topic.
func (p *KafkaPublisher) Topic() string {
	return p.topic
}

// Publish encodes e and produces it synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, e *Event) error {
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

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte(p.codec.ContentType())},
			{Key: []byte("event-type"), Value: []byte(e.Type)},
			{Key: []byte("event-id"), Value: []byte(e.ID)},
		},
	}
	if e.Code != "" {
		msg.Key = sarama.StringEncoder(e.Code)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka send: %w", err)
	}
	p.logger.Debug("event produced",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"id", e.ID)
	return nil
}

// Close closes the producer. Safe to call multiple times.
func (p *KafkaPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.producer.Close()
}

// Compile-time check
var _ Publisher = (*KafkaPublisher)(nil)
