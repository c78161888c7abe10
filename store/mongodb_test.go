package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rbaliyan/kewtag"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMongoRecordConversion(t *testing.T) {
	rec := &Record{
		Kind:       kewtag.KindAsset,
		ID:         1001,
		Code:       "AST-2025-001",
		Name:       "Dell Latitude 7440",
		Category:   "ICT",
		Status:     StatusActive,
		Quantity:   1,
		UnitPrice:  "1250.00",
		Attributes: map[string]string{"serial": "5CG1234XYZ"},
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	}

	doc := FromRecord(rec)
	if doc.Key != "asset/1001" {
		t.Errorf("expected _id asset/1001, got %q", doc.Key)
	}
	if doc.RecordID != 1001 {
		t.Errorf("expected record_id 1001, got %d", doc.RecordID)
	}
	if diff := cmp.Diff(rec, doc.ToRecord()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("bson.Marshal failed: %v", err)
	}
	var decoded MongoRecord
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("bson.Unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(rec, decoded.ToRecord()); diff != "" {
		t.Errorf("bson round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildMongoFilter(t *testing.T) {
	t.Run("empty filter matches everything", func(t *testing.T) {
		if got := buildMongoFilter(Filter{}); len(got) != 0 {
			t.Errorf("expected empty filter, got %v", got)
		}
	})

	t.Run("exact fields", func(t *testing.T) {
		got := buildMongoFilter(Filter{Kind: kewtag.KindInventory, Category: "Stationery", Location: "Store"})
		want := bson.M{"kind": "inventory", "category": "Stationery", "location": "Store"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("filter mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("query is escaped and case-insensitive", func(t *testing.T) {
		got := buildMongoFilter(Filter{Query: "a.b"})
		or, ok := got["$or"].(bson.A)
		if !ok || len(or) != 2 {
			t.Fatalf("expected two-way $or, got %v", got["$or"])
		}
		re := or[0].(bson.M)["code"].(primitive.Regex)
		if re.Pattern != `a\.b` || re.Options != "i" {
			t.Errorf("unexpected regex %+v", re)
		}
	})
}

func TestMongoSort(t *testing.T) {
	got := mongoSort(Filter{SortBy: SortByName, OrderDesc: true})
	want := bson.D{{Key: "name", Value: -1}, {Key: "kind", Value: -1}, {Key: "record_id", Value: -1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sort mismatch (-want +got):\n%s", diff)
	}

	got = mongoSort(Filter{})
	want = bson.D{{Key: "kind", Value: 1}, {Key: "record_id", Value: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("default sort mismatch (-want +got):\n%s", diff)
	}
}
