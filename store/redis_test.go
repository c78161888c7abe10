package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/payload"
	"github.com/redis/go-redis/v9"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, opts ...Option) Store {
		_, client := newMiniredisClient(t)
		return NewRedisStore(client, opts...)
	})
}

func TestRedisStoreMsgPack(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, opts ...Option) Store {
		_, client := newMiniredisClient(t)
		return NewRedisStore(client, append(opts, WithCodec(payload.MsgPack{}))...)
	})
}

func TestRedisStoreKeys(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredisClient(t)
	st := NewRedisStore(client).WithPrefix("test:")

	rec, err := st.Create(ctx, &Record{Kind: kewtag.KindAsset, Code: "AST-1", Name: "Laptop"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if got := mr.HGet("test:code:asset", "AST-1"); got != "1" {
		t.Errorf("expected code index to hold id 1, got %q", got)
	}
	if !mr.Exists("test:rec:asset") {
		t.Error("expected record hash to exist")
	}
	if got, _ := mr.Get("test:seq:asset"); got != "1" {
		t.Errorf("expected sequence 1, got %q", got)
	}

	if err := st.Delete(ctx, kewtag.KindAsset, rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := mr.HGet("test:code:asset", "AST-1"); got != "" {
		t.Errorf("expected code index entry removed, got %q", got)
	}
}

func TestRedisStoreBackendError(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniredisClient(t)
	st := NewRedisStore(client)

	mr.SetError("READONLY replica")
	_, err := st.Create(ctx, &Record{Kind: kewtag.KindAsset, Name: "Laptop"})
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		t.Errorf("backend failure should not map to a store sentinel, got %v", err)
	}
}
