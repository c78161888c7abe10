package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rbaliyan/kewtag"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

/*
MongoDB Schema:

Collection: kewtag_records

Document structure:
{
    "_id": "asset/1001",
    "kind": string,
    "record_id": int64,
    "code": string,
    "name": string,
    "category": string,
    "status": string,
    "condition": string,
    "location": string,
    "unit": string,
    "quantity": int64,
    "unit_price": string,
    "attributes": object,
    "created_at": ISODate,
    "updated_at": ISODate
}

Collection: kewtag_counters

{ "_id": "asset", "seq": int64 }

Indexes:
db.kewtag_records.createIndex({"kind": 1, "record_id": 1}, {unique: true})
db.kewtag_records.createIndex({"kind": 1, "code": 1}, {unique: true})
db.kewtag_records.createIndex({"category": 1})
db.kewtag_records.createIndex({"status": 1})
db.kewtag_records.createIndex({"location": 1})
*/

// MongoRecord represents a record document in MongoDB.
type MongoRecord struct {
	Key        string            `bson:"_id"`
	Kind       string            `bson:"kind"`
	RecordID   int64             `bson:"record_id"`
	Code       string            `bson:"code"`
	Name       string            `bson:"name"`
	Category   string            `bson:"category,omitempty"`
	Status     string            `bson:"status,omitempty"`
	Condition  string            `bson:"condition,omitempty"`
	Location   string            `bson:"location,omitempty"`
	Unit       string            `bson:"unit,omitempty"`
	Quantity   int64             `bson:"quantity"`
	UnitPrice  string            `bson:"unit_price,omitempty"`
	Attributes map[string]string `bson:"attributes,omitempty"`
	CreatedAt  time.Time         `bson:"created_at"`
	UpdatedAt  time.Time         `bson:"updated_at"`
}

// ToRecord converts MongoRecord to Record.
func (m *MongoRecord) ToRecord() *Record {
	return &Record{
		Kind:       kewtag.Kind(m.Kind),
		ID:         m.RecordID,
		Code:       m.Code,
		Name:       m.Name,
		Category:   m.Category,
		Status:     m.Status,
		Condition:  m.Condition,
		Location:   m.Location,
		Unit:       m.Unit,
		Quantity:   m.Quantity,
		UnitPrice:  m.UnitPrice,
		Attributes: m.Attributes,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// FromRecord creates a MongoRecord from Record.
func FromRecord(r *Record) *MongoRecord {
	return &MongoRecord{
		Key:        r.Key(),
		Kind:       string(r.Kind),
		RecordID:   r.ID,
		Code:       r.Code,
		Name:       r.Name,
		Category:   r.Category,
		Status:     r.Status,
		Condition:  r.Condition,
		Location:   r.Location,
		Unit:       r.Unit,
		Quantity:   r.Quantity,
		UnitPrice:  r.UnitPrice,
		Attributes: r.Attributes,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// MongoStore is a MongoDB-based store.
type MongoStore struct {
	collection *mongo.Collection
	counters   *mongo.Collection
	opts       *storeOptions
}

// NewMongoStore creates a new MongoDB store.
// The client is owned by the caller; Close does not disconnect it.
//
// Example:
//
//	client, _ := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
//	st := store.NewMongoStore(client.Database("kewtag"))
//	if err := st.EnsureIndexes(ctx); err != nil {
//	    return err
//	}
func NewMongoStore(db *mongo.Database, opts ...Option) *MongoStore {
	return &MongoStore{
		collection: db.Collection("kewtag_records"),
		counters:   db.Collection("kewtag_counters"),
		opts:       applyOptions(opts),
	}
}

// WithCollection sets a custom collection name for records.
func (s *MongoStore) WithCollection(name string) *MongoStore {
	s.collection = s.collection.Database().Collection(name)
	return s
}

// Collection returns the underlying MongoDB collection.
func (s *MongoStore) Collection() *mongo.Collection {
	return s.collection
}

// Indexes returns the required indexes for the records collection.
func (s *MongoStore) Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "record_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "location", Value: 1}}},
	}
}

// EnsureIndexes creates the required indexes. Code uniqueness depends on them.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, s.Indexes())
	return err
}

func (s *MongoStore) nextID(ctx context.Context, kind kewtag.Kind) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": string(kind)},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return doc.Seq, nil
}

// Create inserts a new record.
func (s *MongoStore) Create(ctx context.Context, r *Record) (*Record, error) {
	rec, err := s.opts.prepareCreate(r)
	if err != nil {
		return nil, err
	}
	if rec.ID, err = s.nextID(ctx, rec.Kind); err != nil {
		return nil, err
	}
	if _, err := s.collection.InsertOne(ctx, FromRecord(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return rec, nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*Record, error) {
	var doc MongoRecord
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return doc.ToRecord(), nil
}

// Get retrieves a record by kind and id.
func (s *MongoStore) Get(ctx context.Context, kind kewtag.Kind, id int64) (*Record, error) {
	return s.findOne(ctx, bson.M{"_id": recordKey(kind, id)})
}

// GetByCode retrieves a record by kind and code.
func (s *MongoStore) GetByCode(ctx context.Context, kind kewtag.Kind, code string) (*Record, error) {
	return s.findOne(ctx, bson.M{"kind": string(kind), "code": code})
}

// Update applies a patch to an existing record.
func (s *MongoStore) Update(ctx context.Context, kind kewtag.Kind, id int64, p Patch) (*Record, error) {
	cur, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	next, err := p.Apply(cur, s.opts.now())
	if err != nil {
		return nil, err
	}
	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": cur.Key()}, FromRecord(next))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("replace record: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return next, nil
}

// Delete removes a record.
func (s *MongoStore) Delete(ctx context.Context, kind kewtag.Kind, id int64) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": recordKey(kind, id)})
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page of records matching the filter.
func (s *MongoStore) List(ctx context.Context, f Filter) (*Page, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	query := buildMongoFilter(f)

	total, err := s.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	limit := f.EffectiveLimit()
	opts := options.Find().
		SetSort(mongoSort(f)).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(limit))

	cur, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer cur.Close(ctx)

	records := make([]*Record, 0, limit)
	for cur.Next(ctx) {
		var doc MongoRecord
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, doc.ToRecord())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return &Page{
		Records: records,
		Total:   total,
		HasMore: int64(f.Offset+len(records)) < total,
	}, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *MongoStore) Close() error {
	return nil
}

func buildMongoFilter(f Filter) bson.M {
	query := bson.M{}
	if f.Kind != "" {
		query["kind"] = string(f.Kind)
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.Status != "" {
		query["status"] = f.Status
	}
	if f.Condition != "" {
		query["condition"] = f.Condition
	}
	if f.Location != "" {
		query["location"] = f.Location
	}
	if f.Query != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Query), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"code": re},
			bson.M{"name": re},
		}
	}
	return query
}

func mongoSort(f Filter) bson.D {
	dir := 1
	if f.OrderDesc {
		dir = -1
	}
	var field string
	switch f.SortBy {
	case SortByCode:
		field = "code"
	case SortByName:
		field = "name"
	case SortByCreatedAt:
		field = "created_at"
	}
	sort := bson.D{}
	if field != "" {
		sort = append(sort, bson.E{Key: field, Value: dir})
	}
	return append(sort, bson.E{Key: "kind", Value: dir}, bson.E{Key: "record_id", Value: dir})
}

// Compile-time check
var _ Store = (*MongoStore)(nil)
