package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/multierr"

	"github.com/rbaliyan/kewtag/notify"
	"github.com/rbaliyan/kewtag/ratelimit"
	"github.com/rbaliyan/kewtag/render/qr"
	"github.com/rbaliyan/kewtag/reservation"
	"github.com/rbaliyan/kewtag/store"
	"github.com/rbaliyan/kewtag/tagging"
)

const connectTimeout = 10 * time.Second

// components is everything serve builds from a Config.
type components struct {
	service *tagging.Service
	limiter ratelimit.Limiter

	// closed after the service, in reverse order of opening
	closers []io.Closer
}

// Close shuts down the service, then every connection it was built on.
func (c *components) Close() error {
	var err error
	if c.service != nil {
		err = multierr.Append(err, c.service.Close())
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.closers[i].Close())
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// lazyConns opens each shared connection at most once.
type lazyConns struct {
	cfg   Config
	comp  *components
	redis *redis.Client
	pg    *sql.DB
}

func (l *lazyConns) redisClient() *redis.Client {
	if l.redis == nil {
		l.redis = redis.NewClient(&redis.Options{
			Addr:     l.cfg.Redis.Addr,
			Password: l.cfg.Redis.Password,
			DB:       l.cfg.Redis.DB,
		})
		l.comp.closers = append(l.comp.closers, l.redis)
	}
	return l.redis
}

func (l *lazyConns) postgres(ctx context.Context) (*sql.DB, error) {
	if l.pg != nil {
		return l.pg, nil
	}
	db, err := sql.Open("postgres", l.cfg.Store.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	l.comp.closers = append(l.comp.closers, db)
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	l.pg = db
	return db, nil
}

// buildComponents wires the store, registry, notifier, renderer and scan
// limiter named by cfg into a tagging service. On error everything opened
// so far is closed.
func buildComponents(ctx context.Context, cfg Config, logger *slog.Logger) (_ *components, err error) {
	comp := &components{}
	// owned by the service once it exists
	var pending []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(pending) - 1; i >= 0; i-- {
			err = multierr.Append(err, pending[i].Close())
		}
		err = multierr.Append(err, comp.Close())
	}()
	conns := &lazyConns{cfg: cfg, comp: comp}

	st, err := buildStore(ctx, cfg, conns)
	if err != nil {
		return nil, err
	}
	pending = append(pending, st)

	opts := []tagging.Option{
		tagging.WithLogger(logger),
		tagging.WithRenderer(qr.New(
			qr.WithStandardSize(cfg.Render.StandardSize),
			qr.WithPrintSize(cfg.Render.PrintSize),
			qr.WithBorder(cfg.Render.Border),
		)),
		tagging.WithMetrics(true),
		tagging.WithTracing(true),
	}

	reg, err := buildRegistry(ctx, cfg, conns)
	if err != nil {
		return nil, err
	}
	if reg != nil {
		if c, ok := reg.(io.Closer); ok {
			pending = append(pending, c)
		}
		opts = append(opts, tagging.WithRegistry(reg))
		if cfg.Registry.Attempts > 0 {
			opts = append(opts, tagging.WithReserveAttempts(cfg.Registry.Attempts))
		}
	}

	pub, err := buildNotifier(cfg, comp, logger)
	if err != nil {
		return nil, err
	}
	pending = append(pending, pub)
	opts = append(opts, tagging.WithNotifier(pub))

	svc, err := tagging.New(st, opts...)
	if err != nil {
		return nil, err
	}
	comp.service = svc
	pending = nil

	comp.limiter = buildLimiter(cfg, comp, conns, logger)
	return comp, nil
}

func buildStore(ctx context.Context, cfg Config, conns *lazyConns) (store.Store, error) {
	codec, err := codecByName(cfg.Store.Codec)
	if err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "badger":
		return store.OpenBadgerStore(cfg.Store.BadgerPath, store.WithCodec(codec))
	case "redis":
		return store.NewRedisStore(conns.redisClient(), store.WithCodec(codec)), nil
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Store.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		conns.comp.closers = append(conns.comp.closers, closerFunc(func() error {
			dctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			return client.Disconnect(dctx)
		}))
		ms := store.NewMongoStore(client.Database(cfg.Store.MongoDatabase))
		if err := ms.EnsureIndexes(connectCtx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return ms, nil
	case "postgres":
		db, err := conns.postgres(ctx)
		if err != nil {
			return nil, err
		}
		ps := store.NewPostgresStore(db)
		if err := ps.CreateTable(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildRegistry returns nil for the "none" driver.
func buildRegistry(ctx context.Context, cfg Config, conns *lazyConns) (reservation.Registry, error) {
	switch cfg.Registry.Driver {
	case "none", "":
		return nil, nil
	case "memory":
		return reservation.NewMemoryRegistry(cfg.Registry.TTL), nil
	case "redis":
		return reservation.NewRedisRegistry(conns.redisClient(), cfg.Registry.TTL), nil
	case "postgres":
		db, err := conns.postgres(ctx)
		if err != nil {
			return nil, err
		}
		reg := reservation.NewPostgresRegistry(db)
		if err := reg.CreateTable(ctx); err != nil {
			return nil, fmt.Errorf("postgres registry schema: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unknown registry driver %q", cfg.Registry.Driver)
	}
}

// buildNotifier builds one publisher per comma-separated driver name; more
// than one is combined with notify.Fanout.
func buildNotifier(cfg Config, comp *components, logger *slog.Logger) (notify.Publisher, error) {
	codec, err := codecByName(cfg.Notify.Codec)
	if err != nil {
		return nil, err
	}
	opts := []notify.Option{notify.WithCodec(codec), notify.WithLogger(logger)}

	var pubs notify.Fanout
	for _, driver := range notifyDrivers(cfg.Notify.Driver) {
		pub, err := buildPublisher(driver, cfg, comp, opts)
		if err != nil {
			_ = pubs.Close()
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	switch len(pubs) {
	case 0:
		return notify.Noop{}, nil
	case 1:
		return pubs[0], nil
	default:
		return pubs, nil
	}
}

func buildPublisher(driver string, cfg Config, comp *components, opts []notify.Option) (notify.Publisher, error) {
	switch driver {
	case "nats":
		nc, err := nats.Connect(cfg.Notify.URL,
			nats.Name("kewtag"),
			nats.Timeout(connectTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		comp.closers = append(comp.closers, closerFunc(func() error {
			nc.Close()
			return nil
		}))
		if cfg.Notify.Subject != "" {
			opts = append(opts, notify.WithSubjectPrefix(cfg.Notify.Subject))
		}
		return notify.NewNATSPublisher(nc, opts...)
	case "kafka":
		sc := sarama.NewConfig()
		sc.ClientID = "kewtag"
		sc.Producer.Return.Successes = true
		sc.Producer.RequiredAcks = sarama.WaitForAll
		client, err := sarama.NewClient(cfg.Notify.Brokers, sc)
		if err != nil {
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		comp.closers = append(comp.closers, client)
		if cfg.Notify.Topic != "" {
			opts = append(opts, notify.WithTopic(cfg.Notify.Topic))
		}
		return notify.NewKafkaPublisherFromClient(client, opts...)
	default:
		return nil, fmt.Errorf("unknown notify driver %q", driver)
	}
}

// notifyDrivers splits a comma-separated driver list, dropping "none".
func notifyDrivers(list string) []string {
	var drivers []string
	for _, d := range strings.Split(list, ",") {
		d = strings.TrimSpace(d)
		if d != "" && d != "none" {
			drivers = append(drivers, d)
		}
	}
	return drivers
}

// buildLimiter maps scan_rate/scan_burst onto the configured limiter. The
// Redis limiter allows scan_burst scans per burst/rate window, shared by
// every serve process on the same Redis.
func buildLimiter(cfg Config, comp *components, conns *lazyConns, logger *slog.Logger) ratelimit.Limiter {
	rate, burst := cfg.Server.ScanRate, cfg.Server.ScanBurst
	if rate <= 0 {
		return ratelimit.Unlimited{}
	}
	if cfg.Server.ScanLimiter == "redis" {
		window := time.Duration(float64(burst) / rate * float64(time.Second))
		return ratelimit.NewRedisLimiter(conns.redisClient(), burst, window).WithLogger(logger)
	}
	tb := ratelimit.NewTokenBucket(rate, burst)
	comp.closers = append(comp.closers, tb)
	return tb
}
