package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/nats-io/nats.go"
	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/payload"
	"go.uber.org/multierr"
)

func TestNewEvent(t *testing.T) {
	before := time.Now().UTC()
	e := NewEvent(EventGenerated, kewtag.KindAsset, "1001", "AST-2025-001")

	if e.ID == "" {
		t.Error("expected an event id")
	}
	if e.Type != EventGenerated || e.Kind != kewtag.KindAsset || e.EntityID != "1001" || e.Code != "AST-2025-001" {
		t.Errorf("unexpected event %+v", e)
	}
	if e.OccurredAt.Before(before) || e.OccurredAt.Location() != time.UTC {
		t.Errorf("unexpected timestamp %v", e.OccurredAt)
	}
	if other := NewEvent(EventGenerated, kewtag.KindAsset, "1001", "AST-2025-001"); other.ID == e.ID {
		t.Error("expected distinct event ids")
	}

	r := Rejected(kewtag.FailureIncomplete)
	if r.Type != EventRejected || r.Failure != "incomplete" {
		t.Errorf("unexpected rejected event %+v", r)
	}
}

func TestMemoryPublisher(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPublisher()

	e := NewEvent(EventScanned, kewtag.KindInventory, "7", "INV-7")
	if err := p.Publish(ctx, e); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	e.Code = "mutated"

	events := p.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Code != "INV-7" {
		t.Errorf("expected stored copy to be unaffected, got %q", events[0].Code)
	}

	p.Reset()
	if len(p.Events()) != 0 {
		t.Error("expected no events after Reset")
	}

	p.Close()
	if err := p.Publish(ctx, e); !errors.Is(err, ErrPublisherClosed) {
		t.Errorf("expected ErrPublisherClosed, got %v", err)
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, *Event) error { return f.err }
func (f failingPublisher) Close() error                          { return f.err }

func TestFanout(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryPublisher()
	errA := errors.New("broker a down")
	errB := errors.New("broker b down")

	f := Fanout{failingPublisher{errA}, mem, failingPublisher{errB}}
	err := f.Publish(ctx, NewEvent(EventGenerated, kewtag.KindUnit, "3", "UNT-3"))

	if len(mem.Events()) != 1 {
		t.Error("expected healthy publisher to receive the event")
	}
	if got := multierr.Errors(err); len(got) != 2 {
		t.Fatalf("expected 2 combined errors, got %v", got)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors, got %v", err)
	}

	if err := (Fanout{Noop{}, mem}).Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestKafkaPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("messages are keyed by code with headers", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != DefaultTopic {
				return errors.New("unexpected topic " + msg.Topic)
			}
			key, _ := msg.Key.Encode()
			if string(key) != "AST-2025-001" {
				return errors.New("unexpected key " + string(key))
			}
			headers := map[string]string{}
			for _, h := range msg.Headers {
				headers[string(h.Key)] = string(h.Value)
			}
			if headers["event-type"] != string(EventGenerated) || headers["content-type"] != payload.ContentTypeJSON {
				return errors.New("unexpected headers")
			}
			value, _ := msg.Value.Encode()
			var e Event
			if err := json.Unmarshal(value, &e); err != nil {
				return err
			}
			if e.Code != "AST-2025-001" || e.Kind != kewtag.KindAsset {
				return errors.New("unexpected body " + string(value))
			}
			return nil
		})

		p, err := NewKafkaPublisher(producer)
		if err != nil {
			t.Fatalf("NewKafkaPublisher failed: %v", err)
		}
		if err := p.Publish(ctx, NewEvent(EventGenerated, kewtag.KindAsset, "1001", "AST-2025-001")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if err := p.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if err := p.Publish(ctx, NewEvent(EventGenerated, kewtag.KindAsset, "1", "x")); !errors.Is(err, ErrPublisherClosed) {
			t.Errorf("expected ErrPublisherClosed, got %v", err)
		}
	})

	t.Run("custom topic and codec", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != "audit" {
				return errors.New("unexpected topic " + msg.Topic)
			}
			if msg.Key != nil {
				return errors.New("expected no key for codeless events")
			}
			return nil
		})
		p, _ := NewKafkaPublisher(producer, WithTopic("audit"), WithCodec(payload.MsgPack{}))
		defer p.Close()

		if err := p.Publish(ctx, Rejected(kewtag.FailureUnreadable)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	})

	t.Run("producer errors are wrapped", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		p, _ := NewKafkaPublisher(producer)
		defer p.Close()

		err := p.Publish(ctx, NewEvent(EventScanned, kewtag.KindAsset, "1", "AST-1"))
		if !errors.Is(err, sarama.ErrOutOfBrokers) {
			t.Errorf("expected ErrOutOfBrokers, got %v", err)
		}
	})

	t.Run("nil producer is rejected", func(t *testing.T) {
		if _, err := NewKafkaPublisher(nil); !errors.Is(err, ErrProducerRequired) {
			t.Errorf("expected ErrProducerRequired, got %v", err)
		}
	})
}

func TestNATSPublisherSubject(t *testing.T) {
	if _, err := NewNATSPublisher(nil); !errors.Is(err, ErrConnRequired) {
		t.Errorf("expected ErrConnRequired, got %v", err)
	}

	p := &NATSPublisher{prefix: DefaultSubjectPrefix}
	if got := p.Subject(EventScanned); got != "kewtag.tag.scanned" {
		t.Errorf("unexpected subject %q", got)
	}
}

// TestNATSPublisherLive runs against a server named by KEWTAG_NATS_URL.
func TestNATSPublisherLive(t *testing.T) {
	url := os.Getenv("KEWTAG_NATS_URL")
	if url == "" {
		t.Skip("KEWTAG_NATS_URL not set")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("kewtag.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p, err := NewNATSPublisher(nc)
	if err != nil {
		t.Fatalf("NewNATSPublisher failed: %v", err)
	}
	defer p.Close()

	e := NewEvent(EventScanned, kewtag.KindAsset, "1001", "AST-2025-001")
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	if msg.Subject != "kewtag.tag.scanned" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if msg.Header.Get(nats.MsgIdHdr) != e.ID {
		t.Errorf("expected message id header %q", e.ID)
	}
}
