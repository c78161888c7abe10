// Package store holds the entity records that identity tags point at.
//
// Every record is keyed by (kind, id): the id is an integer assigned by the
// store, unique within a kind, and is the id embedded in the tag payload.
// Codes are unique within a kind as well, so a record can also be found by
// the code printed under the barcode.
//
// Backends:
//   - MemoryStore: maps guarded by a mutex, for tests and single instances
//   - BadgerStore: embedded key-value store (github.com/dgraph-io/badger/v4)
//   - RedisStore: shared deployments (github.com/redis/go-redis/v9)
//   - MongoStore: document store (go.mongodb.org/mongo-driver)
//   - PostgresStore: relational store on database/sql
//
// Example:
//
//	st := store.NewMemoryStore()
//	defer st.Close()
//
//	rec, err := st.Create(ctx, &store.Record{
//	    Kind: kewtag.KindAsset,
//	    Name: "Dell Latitude 7440",
//	})
//	// rec.ID == 1, rec.Code == "AST-M5X2K9QZ-3F9A1C0B"
package store

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"time"

	"github.com/rbaliyan/kewtag"
)

// Store defines the interface for entity storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new record and returns the stored copy.
	// The id is assigned by the store; a code is generated when empty.
	// Returns ErrConflict when the code is already used within the kind.
	Create(ctx context.Context, r *Record) (*Record, error)

	// Get retrieves a record by kind and id.
	// Returns ErrNotFound when it does not exist.
	Get(ctx context.Context, kind kewtag.Kind, id int64) (*Record, error)

	// GetByCode retrieves a record by kind and code.
	// Returns ErrNotFound when it does not exist.
	GetByCode(ctx context.Context, kind kewtag.Kind, code string) (*Record, error)

	// Update applies a patch to an existing record and returns the result.
	// Only the non-nil fields of the patch change.
	Update(ctx context.Context, kind kewtag.Kind, id int64, p Patch) (*Record, error)

	// Delete removes a record. Returns ErrNotFound when it does not exist.
	Delete(ctx context.Context, kind kewtag.Kind, id int64) error

	// List returns a page of records matching the filter.
	List(ctx context.Context, f Filter) (*Page, error)

	// Close releases the resources held by the store.
	Close() error
}

// Asset and inventory status values used by the KEW.PA and KEW.PS registers.
// The store does not restrict Status to these.
const (
	StatusActive    = "active"
	StatusInRepair  = "in_repair"
	StatusDisposed  = "disposed"
	StatusLost      = "lost"
	StatusAvailable = "available"
	StatusIssued    = "issued"
)

// Record is an asset, inventory item, location or organizational unit.
type Record struct {
	Kind       kewtag.Kind       `json:"kind"`
	ID         int64             `json:"id"`
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Category   string            `json:"category,omitempty"`
	Status     string            `json:"status,omitempty"`
	Condition  string            `json:"condition,omitempty"`
	Location   string            `json:"location,omitempty"`
	Unit       string            `json:"unit,omitempty"`
	Quantity   int64             `json:"quantity,omitempty"`
	UnitPrice  string            `json:"unit_price,omitempty"` // decimal, e.g. "1250.00"
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

var pricePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)

// Key returns the storage key "kind/id".
func (r *Record) Key() string {
	return recordKey(r.Kind, r.ID)
}

func recordKey(kind kewtag.Kind, id int64) string {
	return string(kind) + "/" + strconv.FormatInt(id, 10)
}

// TagID returns the id as it is embedded in a tag payload.
func (r *Record) TagID() kewtag.ID {
	return kewtag.IntID(r.ID)
}

// Validate checks the fields a caller controls.
func (r *Record) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRecord)
	}
	if r.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidRecord)
	}
	if r.UnitPrice != "" && !pricePattern.MatchString(r.UnitPrice) {
		return fmt.Errorf("%w: unit price %q is not a decimal amount", ErrInvalidRecord, r.UnitPrice)
	}
	return nil
}

// Clone creates a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Attributes = maps.Clone(r.Attributes)
	return &c
}

// Patch describes a partial update. Nil fields are left unchanged.
type Patch struct {
	Code       *string           `json:"code,omitempty"`
	Name       *string           `json:"name,omitempty"`
	Category   *string           `json:"category,omitempty"`
	Status     *string           `json:"status,omitempty"`
	Condition  *string           `json:"condition,omitempty"`
	Location   *string           `json:"location,omitempty"`
	Unit       *string           `json:"unit,omitempty"`
	Quantity   *int64            `json:"quantity,omitempty"`
	UnitPrice  *string           `json:"unit_price,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Apply returns a copy of r with the patch applied and UpdatedAt set to now.
// The result is validated; an empty code is rejected.
func (p Patch) Apply(r *Record, now time.Time) (*Record, error) {
	out := r.Clone()
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&out.Code, p.Code)
	set(&out.Name, p.Name)
	set(&out.Category, p.Category)
	set(&out.Status, p.Status)
	set(&out.Condition, p.Condition)
	set(&out.Location, p.Location)
	set(&out.Unit, p.Unit)
	set(&out.UnitPrice, p.UnitPrice)
	if p.Quantity != nil {
		out.Quantity = *p.Quantity
	}
	if p.Attributes != nil {
		out.Attributes = maps.Clone(p.Attributes)
	}
	if out.Code == "" {
		return nil, fmt.Errorf("%w: code must not be empty", ErrInvalidRecord)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.UpdatedAt = now
	return out, nil
}

// StringPtr returns a pointer to s, for building patches.
func StringPtr(s string) *string {
	return &s
}

// Int64Ptr returns a pointer to n, for building patches.
func Int64Ptr(n int64) *int64 {
	return &n
}

// Page represents a page of records.
type Page struct {
	// Records contains the records for this page.
	Records []*Record `json:"records"`

	// Total is the number of records matching the filter across all pages.
	Total int64 `json:"total"`

	// HasMore indicates whether records exist past this page.
	HasMore bool `json:"has_more"`
}
