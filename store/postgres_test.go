package store

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rbaliyan/kewtag"
)

func TestBuildPgListQuery(t *testing.T) {
	t.Run("no criteria", func(t *testing.T) {
		query, count, args := buildPgListQuery("kewtag_records", Filter{})
		if strings.Contains(query, "WHERE") || strings.Contains(count, "WHERE") {
			t.Errorf("expected no WHERE clause:\n%s\n%s", query, count)
		}
		if !strings.Contains(query, "ORDER BY kind ASC, id ASC LIMIT 100 OFFSET 0") {
			t.Errorf("unexpected ordering: %s", query)
		}
		if len(args) != 0 {
			t.Errorf("expected no args, got %v", args)
		}
	})

	t.Run("criteria are numbered in order", func(t *testing.T) {
		f := Filter{
			Kind:      kewtag.KindAsset,
			Status:    StatusActive,
			Query:     "50%_off",
			SortBy:    SortByCreatedAt,
			OrderDesc: true,
			Offset:    20,
			Limit:     10,
		}
		query, count, args := buildPgListQuery("kewtag_records", f)

		wantWhere := "WHERE kind = $1 AND status = $2 AND (code ILIKE $3 OR name ILIKE $3)"
		if !strings.Contains(query, wantWhere) || !strings.Contains(count, wantWhere) {
			t.Errorf("expected %q in\n%s\n%s", wantWhere, query, count)
		}
		if !strings.Contains(query, "ORDER BY created_at DESC, kind DESC, id DESC LIMIT 10 OFFSET 20") {
			t.Errorf("unexpected ordering: %s", query)
		}
		want := []any{"asset", "active", `%50\%\_off%`}
		if diff := cmp.Diff(want, args); diff != "" {
			t.Errorf("args mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestMarshalAttributes(t *testing.T) {
	got, err := marshalAttributes(nil)
	if err != nil || got != nil {
		t.Errorf("expected nil for empty attributes, got %v, %v", got, err)
	}

	got, err = marshalAttributes(map[string]string{"serial": "X1"})
	if err != nil {
		t.Fatalf("marshalAttributes failed: %v", err)
	}
	if got == nil || *got != `{"serial":"X1"}` {
		t.Errorf("unexpected attributes JSON %v", got)
	}
}
