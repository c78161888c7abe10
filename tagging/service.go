// Package tagging ties the kewtag codec to an entity store.
//
// The Service covers the two halves of a label's life:
//
//   - Tag looks an entity up, builds and serializes its identity payload and
//     renders the printable image.
//   - Scan decodes scanned text, classifies any failure and resolves the
//     entity the label points at.
//
// Logging, OpenTelemetry metrics and spans, code reservation and lifecycle
// notifications all live here so the codec itself stays pure.
//
// Example:
//
//	svc, err := tagging.New(st,
//	    tagging.WithRenderer(qr.New()),
//	    tagging.WithRegistry(reservation.NewMemoryRegistry(0)),
//	    tagging.WithMetrics(true),
//	)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	res, err := svc.Tag(ctx, kewtag.KindAsset, 1001, render.FidelityPrint)
package tagging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/notify"
	"github.com/rbaliyan/kewtag/render"
	"github.com/rbaliyan/kewtag/reservation"
	"github.com/rbaliyan/kewtag/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

// DefaultName is the default instrumentation scope name.
const DefaultName = "kewtag"

// Scan outcomes recorded on the kewtag.tags.scanned counter, in addition to
// the kewtag.Failure names.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
)

// ErrStoreRequired is returned by New when no store is given.
var ErrStoreRequired = errors.New("tagging: store is required")

// TagResult is the outcome of Tag and Payload.
type TagResult struct {
	Record  *store.Record
	Payload *kewtag.Payload
	Text    string        // serialized payload, as encoded in the image
	Image   *render.Image // nil for Payload
}

// ScanResult is the outcome of a successful Scan.
type ScanResult struct {
	Payload *kewtag.Payload
	Record  *store.Record

	// CodeMatches is false when the entity's current code differs from the
	// code printed on the label, e.g. after the code was reassigned.
	CodeMatches bool
}

// Service generates and resolves identity tags for stored entities.
// It is safe for concurrent use.
type Service struct {
	store     store.Store
	codec     *kewtag.Codec
	generator *kewtag.Generator
	registry  reservation.Registry
	notifier  notify.Publisher
	logger    *slog.Logger
	attempts  int

	tracer trace.Tracer // nil when tracing is disabled

	// nil when metrics are disabled
	tagsGenerated  metric.Int64Counter
	tagsScanned    metric.Int64Counter
	codesGenerated metric.Int64Counter
}

// New creates a tag service over st.
func New(st store.Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, ErrStoreRequired
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	s := &Service{
		store:     st,
		codec:     o.codec,
		generator: o.generator,
		registry:  o.registry,
		notifier:  o.notifier,
		logger:    o.logger.With("component", "tagging"),
		attempts:  o.reserveAttempts,
	}
	if s.codec == nil {
		s.codec = kewtag.NewCodec(kewtag.WithRenderer(o.renderer), kewtag.WithLogger(o.logger))
	}
	if s.generator == nil {
		s.generator = kewtag.NewGenerator()
	}

	if o.tracingEnabled {
		s.tracer = otel.Tracer(o.name)
	}
	if o.metricsEnabled {
		if err := s.initMetrics(otel.Meter(o.name)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) initMetrics(meter metric.Meter) error {
	var err, mErr error
	s.tagsGenerated, err = meter.Int64Counter("kewtag.tags.generated",
		metric.WithDescription("Total number of identity tags generated"))
	mErr = multierr.Append(mErr, err)
	s.tagsScanned, err = meter.Int64Counter("kewtag.tags.scanned",
		metric.WithDescription("Total number of scanned tags by outcome"))
	mErr = multierr.Append(mErr, err)
	s.codesGenerated, err = meter.Int64Counter("kewtag.codes.generated",
		metric.WithDescription("Total number of unique codes generated"))
	mErr = multierr.Append(mErr, err)
	if mErr != nil {
		return fmt.Errorf("create metrics: %w", mErr)
	}
	return nil
}

// Store returns the underlying entity store.
func (s *Service) Store() store.Store {
	return s.store
}

// Codec returns the payload codec.
func (s *Service) Codec() *kewtag.Codec {
	return s.codec
}

// Payload looks up an entity and returns its serialized identity payload
// without rendering an image. The payload metadata carries the entity's
// name, category and location when set.
func (s *Service) Payload(ctx context.Context, kind kewtag.Kind, id int64) (*TagResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", kewtag.ErrInvalidKind, kind)
	}
	rec, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	extra := kewtag.Metadata{"name": rec.Name}
	if rec.Category != "" {
		extra["category"] = rec.Category
	}
	if rec.Location != "" {
		extra["location"] = rec.Location
	}

	p, err := s.codec.BuildPayload(kind, rec.TagID(), rec.Code, extra)
	if err != nil {
		return nil, err
	}
	text, err := s.codec.Serialize(p)
	if err != nil {
		return nil, err
	}
	return &TagResult{Record: rec, Payload: p, Text: text}, nil
}

// Tag looks up an entity, builds its identity payload and renders it at the
// requested fidelity. A tag.generated event is published on success.
//
// Returns store.ErrNotFound for unknown entities and kewtag.ErrNoRenderer
// when the service has no renderer.
func (s *Service) Tag(ctx context.Context, kind kewtag.Kind, id int64, fidelity render.Fidelity) (res *TagResult, err error) {
	ctx, end := s.startSpan(ctx, "kewtag.tag",
		attribute.String("kewtag.kind", string(kind)),
		attribute.Int64("kewtag.id", id),
		attribute.String("kewtag.fidelity", string(fidelity)))
	defer func() { end(err) }()

	res, err = s.Payload(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	res.Image, err = s.codec.RenderForDisplay(ctx, res.Payload, fidelity)
	if err != nil {
		return nil, err
	}

	if s.tagsGenerated != nil {
		s.tagsGenerated.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.String("fidelity", string(fidelity))))
	}
	s.logger.Info("tag generated", "kind", kind, "id", id, "code", res.Record.Code, "fidelity", fidelity)
	s.publish(ctx, notify.NewEvent(notify.EventGenerated, kind, strconv.FormatInt(id, 10), res.Record.Code))
	return res, nil
}

// Scan decodes scanned text and resolves the entity it identifies.
//
// Decode failures are returned unchanged; classify them with
// kewtag.ClassifyError. A payload whose id is not an integer cannot name a
// stored entity and yields store.ErrNotFound. Every scan publishes either a
// tag.scanned or a tag.rejected event.
func (s *Service) Scan(ctx context.Context, text string) (res *ScanResult, err error) {
	ctx, end := s.startSpan(ctx, "kewtag.scan", attribute.Int("kewtag.bytes", len(text)))
	defer func() { end(err) }()

	p, err := s.codec.Deserialize(text)
	if err != nil {
		failure := kewtag.ClassifyError(err)
		s.recordScan(ctx, failure.String())
		s.logger.Info("scan rejected", "failure", failure, "error", err)
		s.publish(ctx, notify.Rejected(failure))
		return nil, err
	}

	id, ok := p.ID.Int64()
	if !ok {
		s.recordScan(ctx, OutcomeNotFound)
		return nil, fmt.Errorf("%w: id %q is not a record id", store.ErrNotFound, p.ID)
	}
	rec, err := s.store.Get(ctx, p.Kind, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordScan(ctx, OutcomeNotFound)
		}
		return nil, err
	}

	s.recordScan(ctx, OutcomeOK)
	s.logger.Debug("scan resolved", "kind", p.Kind, "id", id, "code", p.Code)
	s.publish(ctx, notify.NewEvent(notify.EventScanned, p.Kind, p.ID.String(), p.Code))
	return &ScanResult{
		Payload:     p,
		Record:      rec,
		CodeMatches: rec.Code == p.Code,
	}, nil
}

// NewCode returns a fresh unique code. prefix may be a kind name, which
// selects that kind's prefix (asset becomes AST), or a literal prefix.
// With a registry configured the code is reserved before it is returned.
func (s *Service) NewCode(ctx context.Context, prefix string) (string, error) {
	if k := kewtag.Kind(prefix); k.Valid() {
		prefix = k.CodePrefix()
	}

	var code string
	if s.registry == nil {
		code = s.generator.Generate(prefix)
	} else {
		var err error
		code, err = reservation.GenerateReserved(ctx, s.generator, s.registry, prefix, s.attempts)
		if err != nil {
			return "", err
		}
	}

	if s.codesGenerated != nil {
		s.codesGenerated.Add(ctx, 1)
	}
	return code, nil
}

// Create stores a new entity. A record without a code gets one from
// NewCode, so it is reserved when a registry is configured; the
// reservation is released again if the store rejects the record.
func (s *Service) Create(ctx context.Context, r *store.Record) (*store.Record, error) {
	if r == nil {
		return nil, store.ErrInvalidRecord
	}
	rec := r.Clone()
	generated := false
	if rec.Code == "" {
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		code, err := s.NewCode(ctx, rec.Kind.CodePrefix())
		if err != nil {
			return nil, err
		}
		rec.Code = code
		generated = true
	}

	created, err := s.store.Create(ctx, rec)
	if err != nil {
		if generated && s.registry != nil {
			if rerr := s.registry.Release(ctx, rec.Code); rerr != nil {
				s.logger.Warn("release code failed", "code", rec.Code, "error", rerr)
			}
		}
		return nil, err
	}
	s.logger.Info("record created", "kind", created.Kind, "id", created.ID, "code", created.Code)
	return created, nil
}

// Delete removes an entity and, when a registry is configured, releases its
// code so it can be minted again. A failed release is logged, not returned:
// the record is already gone.
func (s *Service) Delete(ctx context.Context, kind kewtag.Kind, id int64) error {
	rec, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, kind, id); err != nil {
		return err
	}
	if s.registry != nil {
		if rerr := s.registry.Release(ctx, rec.Code); rerr != nil {
			s.logger.Warn("release code failed", "code", rec.Code, "error", rerr)
		}
	}
	s.logger.Info("record deleted", "kind", kind, "id", id, "code", rec.Code)
	return nil
}

// Close closes the notifier, the store and, when it is an io.Closer, the
// registry. All are closed even if one fails; the errors are combined.
func (s *Service) Close() error {
	var err error
	err = multierr.Append(err, s.notifier.Close())
	err = multierr.Append(err, s.store.Close())
	if c, ok := s.registry.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (s *Service) publish(ctx context.Context, e *notify.Event) {
	if err := s.notifier.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event failed", "type", e.Type, "id", e.ID, "error", err)
	}
}

func (s *Service) recordScan(ctx context.Context, outcome string) {
	if s.tagsScanned == nil {
		return
	}
	s.tagsScanned.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// startSpan starts a span when tracing is enabled. The returned function
// ends it, recording err when non-nil.
func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if s.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
