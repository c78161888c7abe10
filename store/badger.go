package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/payload"
)

/*
Badger key layout:

	rec/{kind}/{id, 20-digit zero padded}  -> encoded Record
	code/{kind}/{code}                     -> id (decimal)
	seq/{kind}                             -> badger.Sequence state

Zero padding keeps a prefix scan in id order.
*/

// sequenceBandwidth is the number of ids leased from a badger.Sequence at once.
const sequenceBandwidth = 100

// BadgerStore implements Store on an embedded BadgerDB.
//
// Records are encoded with a payload.Codec (MessagePack by default). Ids are
// drawn from one badger.Sequence per kind; ids leased but unused when the
// store closes are skipped, so ids are increasing but may have gaps.
//
// Example:
//
//	st, err := store.OpenBadgerStore("/var/lib/kewtag")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
	opts   *storeOptions
	codec  payload.Codec

	mu     sync.Mutex
	seqs   map[kewtag.Kind]*badger.Sequence
	closed bool
}

// OpenBadgerStore opens a Badger database at path and wraps it in a store.
// An empty path opens an in-memory database. Close closes the database.
func OpenBadgerStore(path string, opts ...Option) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	s := NewBadgerStore(db, opts...)
	s.ownsDB = true
	return s, nil
}

// NewBadgerStore wraps an open Badger database. The caller keeps ownership
// of db; Close only releases the id sequences.
func NewBadgerStore(db *badger.DB, opts ...Option) *BadgerStore {
	o := applyOptions(opts)
	codec := o.codec
	if codec == nil {
		codec = payload.MsgPack{}
	}
	return &BadgerStore{
		db:    db,
		opts:  o,
		codec: codec,
		seqs:  make(map[kewtag.Kind]*badger.Sequence),
	}
}

func badgerRecordKey(kind kewtag.Kind, id int64) []byte {
	return fmt.Appendf(nil, "rec/%s/%020d", kind, id)
}

func badgerRecordPrefix(kind kewtag.Kind) []byte {
	if kind == "" {
		return []byte("rec/")
	}
	return []byte("rec/" + string(kind) + "/")
}

func badgerCodeKey(kind kewtag.Kind, code string) []byte {
	return []byte("code/" + string(kind) + "/" + code)
}

func (s *BadgerStore) nextID(kind kewtag.Kind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	seq, ok := s.seqs[kind]
	if !ok {
		var err error
		seq, err = s.db.GetSequence([]byte("seq/"+string(kind)), sequenceBandwidth)
		if err != nil {
			return 0, fmt.Errorf("get sequence: %w", err)
		}
		s.seqs[kind] = seq
	}
	n, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	// Sequences start at zero; record ids start at one.
	return int64(n) + 1, nil
}

func (s *BadgerStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Create inserts a new record.
func (s *BadgerStore) Create(ctx context.Context, r *Record) (*Record, error) {
	rec, err := s.opts.prepareCreate(r)
	if err != nil {
		return nil, err
	}
	if rec.ID, err = s.nextID(rec.Kind); err != nil {
		return nil, err
	}
	data, err := s.codec.Encode(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		ck := badgerCodeKey(rec.Kind, rec.Code)
		if _, err := txn.Get(ck); err == nil {
			return ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(badgerRecordKey(rec.Kind, rec.ID), data); err != nil {
			return err
		}
		return txn.Set(ck, []byte(strconv.FormatInt(rec.ID, 10)))
	})
	if err != nil {
		return nil, s.mapErr("create record", err)
	}
	return rec, nil
}

// Get retrieves a record by kind and id.
func (s *BadgerStore) Get(ctx context.Context, kind kewtag.Kind, id int64) (*Record, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	var rec *Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = s.getTxn(txn, kind, id)
		return err
	})
	if err != nil {
		return nil, s.mapErr("get record", err)
	}
	return rec, nil
}

// GetByCode retrieves a record by kind and code.
func (s *BadgerStore) GetByCode(ctx context.Context, kind kewtag.Kind, code string) (*Record, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	var rec *Record
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := s.codeIDTxn(txn, kind, code)
		if err != nil {
			return err
		}
		rec, err = s.getTxn(txn, kind, id)
		return err
	})
	if err != nil {
		return nil, s.mapErr("get record by code", err)
	}
	return rec, nil
}

// Update applies a patch to an existing record.
func (s *BadgerStore) Update(ctx context.Context, kind kewtag.Kind, id int64, p Patch) (*Record, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	var next *Record
	err := s.db.Update(func(txn *badger.Txn) error {
		cur, err := s.getTxn(txn, kind, id)
		if err != nil {
			return err
		}
		next, err = p.Apply(cur, s.opts.now())
		if err != nil {
			return err
		}
		if next.Code != cur.Code {
			if _, err := txn.Get(badgerCodeKey(kind, next.Code)); err == nil {
				return ErrConflict
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Delete(badgerCodeKey(kind, cur.Code)); err != nil {
				return err
			}
			if err := txn.Set(badgerCodeKey(kind, next.Code), []byte(strconv.FormatInt(id, 10))); err != nil {
				return err
			}
		}
		data, err := s.codec.Encode(next)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return txn.Set(badgerRecordKey(kind, id), data)
	})
	if err != nil {
		return nil, s.mapErr("update record", err)
	}
	return next, nil
}

// Delete removes a record.
func (s *BadgerStore) Delete(ctx context.Context, kind kewtag.Kind, id int64) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		cur, err := s.getTxn(txn, kind, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(badgerRecordKey(kind, id)); err != nil {
			return err
		}
		return txn.Delete(badgerCodeKey(kind, cur.Code))
	})
	return s.mapErr("delete record", err)
}

// List returns a page of records matching the filter.
// Filtering and sorting happen in process over a prefix scan.
func (s *BadgerStore) List(ctx context.Context, f Filter) (*Page, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrStoreClosed
	}
	var all []*Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := badgerRecordPrefix(f.Kind)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return s.codec.Decode(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			all = append(all, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, s.mapErr("list records", err)
	}
	return paginate(all, f), nil
}

// Close releases the id sequences and, when the store opened the database
// itself, closes it. Safe to call multiple times.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, seq := range s.seqs {
		if err := seq.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.ownsDB {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *BadgerStore) getTxn(txn *badger.Txn, kind kewtag.Kind, id int64) (*Record, error) {
	item, err := txn.Get(badgerRecordKey(kind, id))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := item.Value(func(val []byte) error {
		return s.codec.Decode(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func (s *BadgerStore) codeIDTxn(txn *badger.Txn, kind kewtag.Kind, code string) (int64, error) {
	item, err := txn.Get(badgerCodeKey(kind, code))
	if err != nil {
		return 0, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(val), 10, 64)
}

// mapErr translates badger errors into store errors.
func (s *BadgerStore) mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, badger.ErrConflict):
		return ErrConflict
	case errors.Is(err, badger.ErrDBClosed):
		return ErrStoreClosed
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidRecord):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Compile-time check
var _ Store = (*BadgerStore)(nil)
