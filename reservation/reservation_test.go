package reservation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbaliyan/kewtag"
	"github.com/redis/go-redis/v9"
)

// constReader yields the same byte forever, so every generated suffix is equal.
type constReader byte

func (c constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(c)
	}
	return len(p), nil
}

func collidingGenerator() *kewtag.Generator {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return kewtag.NewGenerator(
		kewtag.WithGeneratorClock(func() time.Time { return at }),
		kewtag.WithGeneratorRandom(constReader(0x5a)),
	)
}

func testRegistry(t *testing.T, reg Registry) {
	t.Helper()
	ctx := context.Background()

	t.Run("Reserve returns true for a new code", func(t *testing.T) {
		ok, err := reg.Reserve(ctx, "AST-1")
		if err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}
		if !ok {
			t.Error("expected true for new code")
		}
	})

	t.Run("Reserve returns false for a reserved code", func(t *testing.T) {
		ok, err := reg.Reserve(ctx, "AST-1")
		if err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}
		if ok {
			t.Error("expected false for reserved code")
		}
	})

	t.Run("Exists reflects reservations", func(t *testing.T) {
		exists, err := reg.Exists(ctx, "AST-1")
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if !exists {
			t.Error("expected AST-1 to exist")
		}
		exists, err = reg.Exists(ctx, "AST-2")
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if exists {
			t.Error("expected AST-2 not to exist")
		}
	})

	t.Run("Release frees the code", func(t *testing.T) {
		if err := reg.Release(ctx, "AST-1"); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		ok, err := reg.Reserve(ctx, "AST-1")
		if err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}
		if !ok {
			t.Error("expected released code to be reservable")
		}
	})

	t.Run("Release of an unknown code is not an error", func(t *testing.T) {
		if err := reg.Release(ctx, "NOPE"); err != nil {
			t.Errorf("Release failed: %v", err)
		}
	})
}

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry(0)
	defer reg.Close()
	testRegistry(t, reg)

	t.Run("expired reservations can be reissued", func(t *testing.T) {
		ctx := context.Background()
		now := time.Now()
		reg := NewMemoryRegistry(time.Minute)
		defer reg.Close()
		reg.now = func() time.Time { return now }

		if ok, _ := reg.Reserve(ctx, "INV-1"); !ok {
			t.Fatal("expected first reservation to succeed")
		}
		now = now.Add(2 * time.Minute)
		if exists, _ := reg.Exists(ctx, "INV-1"); exists {
			t.Error("expected reservation to have expired")
		}
		if ok, _ := reg.Reserve(ctx, "INV-1"); !ok {
			t.Error("expected expired code to be reservable")
		}
	})

	t.Run("concurrent reservations of one code admit a single winner", func(t *testing.T) {
		ctx := context.Background()
		reg := NewMemoryRegistry(0)
		defer reg.Close()

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := reg.Reserve(ctx, "LOC-1"); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Errorf("expected 1 winner, got %d", wins.Load())
		}
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		reg := NewMemoryRegistry(time.Hour)
		reg.Close()
		reg.Close()
	})
}

func TestRedisRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	reg := NewRedisRegistry(rdb, 0)
	testRegistry(t, reg)

	t.Run("keys use the configured prefix", func(t *testing.T) {
		ctx := context.Background()
		reg := NewRedisRegistry(rdb, time.Hour).WithPrefix("plant-a:")
		if _, err := reg.Reserve(ctx, "UNT-1"); err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}
		if !mr.Exists("plant-a:UNT-1") {
			t.Error("expected key plant-a:UNT-1")
		}
		if ttl := mr.TTL("plant-a:UNT-1"); ttl != time.Hour {
			t.Errorf("expected 1h TTL, got %v", ttl)
		}
	})

	t.Run("server errors are reported", func(t *testing.T) {
		mr.SetError("boom")
		defer mr.SetError("")
		if _, err := reg.Reserve(context.Background(), "AST-9"); err == nil {
			t.Error("expected error")
		}
	})
}

type failingRegistry struct{ err error }

func (f failingRegistry) Reserve(context.Context, string) (bool, error) { return false, f.err }
func (f failingRegistry) Release(context.Context, string) error         { return f.err }
func (f failingRegistry) Exists(context.Context, string) (bool, error)  { return false, f.err }

func TestGenerateReserved(t *testing.T) {
	ctx := context.Background()

	t.Run("returns a reserved code", func(t *testing.T) {
		reg := NewMemoryRegistry(0)
		defer reg.Close()

		code, err := GenerateReserved(ctx, nil, reg, "AST", 0)
		if err != nil {
			t.Fatalf("GenerateReserved failed: %v", err)
		}
		if exists, _ := reg.Exists(ctx, code); !exists {
			t.Errorf("expected %s to be reserved", code)
		}
	})

	t.Run("collisions exhaust the attempts", func(t *testing.T) {
		reg := NewMemoryRegistry(0)
		defer reg.Close()
		gen := collidingGenerator()

		if _, err := GenerateReserved(ctx, gen, reg, "AST", 0); err != nil {
			t.Fatalf("first GenerateReserved failed: %v", err)
		}
		_, err := GenerateReserved(ctx, gen, reg, "AST", 0)
		if !errors.Is(err, ErrCodeCollision) {
			t.Fatalf("expected ErrCodeCollision, got %v", err)
		}
		if !IsExhausted(err) {
			t.Error("expected IsExhausted to be true")
		}
		var ex *ExhaustedError
		if errors.As(err, &ex) && ex.Attempts != DefaultAttempts {
			t.Errorf("expected %d attempts, got %d", DefaultAttempts, ex.Attempts)
		}
	})

	t.Run("registry errors are returned immediately", func(t *testing.T) {
		boom := errors.New("registry down")
		_, err := GenerateReserved(ctx, nil, failingRegistry{err: boom}, "", 5)
		if !errors.Is(err, boom) {
			t.Errorf("expected registry error, got %v", err)
		}
		if IsExhausted(err) {
			t.Error("registry failure must not look like exhaustion")
		}
	})

	t.Run("cancelled context stops generation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		reg := NewMemoryRegistry(0)
		defer reg.Close()
		if _, err := GenerateReserved(cctx, nil, reg, "AST", 0); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
