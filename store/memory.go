package store

import (
	"context"
	"sync"

	"github.com/rbaliyan/kewtag"
)

// MemoryStore implements Store using in-memory storage.
//
// MemoryStore is primarily intended for testing and development.
// Data is lost on restart.
//
// Example:
//
//	st := store.NewMemoryStore()
//	defer st.Close()
type MemoryStore struct {
	mu      sync.RWMutex
	opts    *storeOptions
	records map[string]*Record // key: kind/id
	codes   map[string]int64   // key: kind/code
	seq     map[kewtag.Kind]int64
	closed  bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:    applyOptions(opts),
		records: make(map[string]*Record),
		codes:   make(map[string]int64),
		seq:     make(map[kewtag.Kind]int64),
	}
}

func codeKey(kind kewtag.Kind, code string) string {
	return string(kind) + "/" + code
}

// Create inserts a new record.
func (s *MemoryStore) Create(ctx context.Context, r *Record) (*Record, error) {
	rec, err := s.opts.prepareCreate(r)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if _, taken := s.codes[codeKey(rec.Kind, rec.Code)]; taken {
		return nil, ErrConflict
	}

	s.seq[rec.Kind]++
	rec.ID = s.seq[rec.Kind]
	s.records[rec.Key()] = rec
	s.codes[codeKey(rec.Kind, rec.Code)] = rec.ID
	return rec.Clone(), nil
}

// Get retrieves a record by kind and id.
func (s *MemoryStore) Get(ctx context.Context, kind kewtag.Kind, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := s.records[recordKey(kind, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// GetByCode retrieves a record by kind and code.
func (s *MemoryStore) GetByCode(ctx context.Context, kind kewtag.Kind, code string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	id, ok := s.codes[codeKey(kind, code)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.records[recordKey(kind, id)].Clone(), nil
}

// Update applies a patch to an existing record.
func (s *MemoryStore) Update(ctx context.Context, kind kewtag.Kind, id int64, p Patch) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	cur, ok := s.records[recordKey(kind, id)]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := p.Apply(cur, s.opts.now())
	if err != nil {
		return nil, err
	}
	if next.Code != cur.Code {
		if _, taken := s.codes[codeKey(kind, next.Code)]; taken {
			return nil, ErrConflict
		}
		delete(s.codes, codeKey(kind, cur.Code))
		s.codes[codeKey(kind, next.Code)] = id
	}
	s.records[next.Key()] = next
	return next.Clone(), nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(ctx context.Context, kind kewtag.Kind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	rec, ok := s.records[recordKey(kind, id)]
	if !ok {
		return ErrNotFound
	}
	delete(s.records, rec.Key())
	delete(s.codes, codeKey(kind, rec.Code))
	return nil
}

// List returns a page of records matching the filter.
func (s *MemoryStore) List(ctx context.Context, f Filter) (*Page, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	all := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec.Clone())
	}
	return paginate(all, f), nil
}

// Close marks the store closed. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Compile-time check
var _ Store = (*MemoryStore)(nil)
