package store

import (
	"time"

	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/payload"
)

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	now     func() time.Time
	newCode func(kewtag.Kind) string
	codec   payload.Codec
}

func defaultStoreOptions() *storeOptions {
	return &storeOptions{
		now: func() time.Time { return time.Now().UTC() },
		newCode: func(k kewtag.Kind) string {
			return kewtag.GenerateUniqueCode(k.CodePrefix())
		},
	}
}

func applyOptions(opts []Option) *storeOptions {
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithClock sets the time source for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCodeFunc sets the function that mints a code for records created
// without one. Defaults to kewtag.GenerateUniqueCode with the kind's prefix.
//
// Example:
//
//	gen := kewtag.NewGenerator()
//	st := store.NewMemoryStore(store.WithCodeFunc(func(k kewtag.Kind) string {
//	    code, _ := reservation.GenerateReserved(ctx, gen, reg, k.CodePrefix(), 0)
//	    return code
//	}))
func WithCodeFunc(fn func(kewtag.Kind) string) Option {
	return func(o *storeOptions) {
		if fn != nil {
			o.newCode = fn
		}
	}
}

// WithCodec sets the value codec for backends that store encoded records
// (Badger, Redis). Badger defaults to payload.MsgPack, Redis to payload.JSON.
func WithCodec(c payload.Codec) Option {
	return func(o *storeOptions) {
		o.codec = c
	}
}

// prepareCreate validates r and returns a copy ready for insertion,
// still missing its id.
func (o *storeOptions) prepareCreate(r *Record) (*Record, error) {
	if r == nil {
		return nil, ErrInvalidRecord
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	rec := r.Clone()
	if rec.Code == "" {
		rec.Code = o.newCode(rec.Kind)
	}
	now := o.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec, nil
}
