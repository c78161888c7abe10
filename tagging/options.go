package tagging

import (
	"log/slog"

	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/notify"
	"github.com/rbaliyan/kewtag/render"
	"github.com/rbaliyan/kewtag/reservation"
)

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger          *slog.Logger
	renderer        render.Renderer
	codec           *kewtag.Codec
	generator       *kewtag.Generator
	registry        reservation.Registry
	notifier        notify.Publisher
	reserveAttempts int
	metricsEnabled  bool
	tracingEnabled  bool
	name            string
}

func defaultOptions() *serviceOptions {
	return &serviceOptions{
		logger:   slog.Default(),
		notifier: notify.Noop{},
		name:     DefaultName,
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRenderer sets the renderer used by Tag. Ignored when WithCodec is
// also given; configure the renderer on that codec instead.
func WithRenderer(r render.Renderer) Option {
	return func(o *serviceOptions) {
		o.renderer = r
	}
}

// WithCodec sets the payload codec.
func WithCodec(c *kewtag.Codec) Option {
	return func(o *serviceOptions) {
		o.codec = c
	}
}

// WithGenerator sets the code generator. Defaults to kewtag.NewGenerator().
func WithGenerator(g *kewtag.Generator) Option {
	return func(o *serviceOptions) {
		o.generator = g
	}
}

// WithRegistry enables collision detection for generated codes.
// Without a registry, NewCode trusts the generator's randomness.
func WithRegistry(r reservation.Registry) Option {
	return func(o *serviceOptions) {
		o.registry = r
	}
}

// WithReserveAttempts sets how many codes NewCode tries before giving up
// when a registry is configured. Defaults to reservation.DefaultAttempts.
func WithReserveAttempts(n int) Option {
	return func(o *serviceOptions) {
		o.reserveAttempts = n
	}
}

// WithNotifier sets the lifecycle event publisher. Defaults to notify.Noop.
func WithNotifier(p notify.Publisher) Option {
	return func(o *serviceOptions) {
		if p != nil {
			o.notifier = p
		}
	}
}

// WithMetrics enables OpenTelemetry counters on the global meter provider.
func WithMetrics(enabled bool) Option {
	return func(o *serviceOptions) {
		o.metricsEnabled = enabled
	}
}

// WithTracing enables OpenTelemetry spans on the global tracer provider.
func WithTracing(enabled bool) Option {
	return func(o *serviceOptions) {
		o.tracingEnabled = enabled
	}
}

// WithName sets the instrumentation scope name. Defaults to "kewtag".
func WithName(name string) Option {
	return func(o *serviceOptions) {
		if name != "" {
			o.name = name
		}
	}
}
