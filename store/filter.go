package store

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/rbaliyan/kewtag"
)

// SortField names the column a listing is ordered by.
type SortField string

// Sort fields.
const (
	SortByID        SortField = "id"
	SortByCode      SortField = "code"
	SortByName      SortField = "name"
	SortByCreatedAt SortField = "created_at"
)

// ParseSort parses a sort field name. An empty string selects SortByID.
func ParseSort(s string) (SortField, error) {
	switch f := SortField(s); f {
	case "":
		return SortByID, nil
	case SortByID, SortByCode, SortByName, SortByCreatedAt:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown sort field %q", ErrInvalidFilter, s)
	}
}

// Filter specifies criteria for listing records.
// All fields are optional. Empty filter returns all records.
type Filter struct {
	Kind      kewtag.Kind // Exact match; empty = all kinds
	Category  string      // Exact match
	Status    string      // Exact match
	Condition string      // Exact match
	Location  string      // Exact match
	Query     string      // Case-insensitive substring of code or name

	SortBy    SortField // Default SortByID
	OrderDesc bool      // Descending order (default: ascending)

	Offset int // Records to skip
	Limit  int // Max results per page (0 = default limit)
}

// DefaultLimit is the default page size when Limit is 0.
const DefaultLimit = 100

// MaxLimit is the maximum allowed page size.
const MaxLimit = 1000

// EffectiveLimit returns the effective limit, applying defaults and bounds.
func (f *Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	if f.Limit > MaxLimit {
		return MaxLimit
	}
	return f.Limit
}

// Validate checks the filter fields.
func (f *Filter) Validate() error {
	if f.Kind != "" && !f.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFilter, f.Kind)
	}
	if _, err := ParseSort(string(f.SortBy)); err != nil {
		return err
	}
	if f.Offset < 0 {
		return fmt.Errorf("%w: negative offset", ErrInvalidFilter)
	}
	return nil
}

// Matches reports whether r satisfies every set criterion.
func (f *Filter) Matches(r *Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Condition != "" && r.Condition != f.Condition {
		return false
	}
	if f.Location != "" && r.Location != f.Location {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(r.Code), q) && !strings.Contains(strings.ToLower(r.Name), q) {
			return false
		}
	}
	return true
}

// compareRecords orders records by the sort field, breaking ties by kind and id.
func compareRecords(a, b *Record, by SortField) int {
	var c int
	switch by {
	case SortByCode:
		c = cmp.Compare(a.Code, b.Code)
	case SortByName:
		c = cmp.Compare(a.Name, b.Name)
	case SortByCreatedAt:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c != 0 {
		return c
	}
	if c = cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// paginate filters, sorts and slices records in process.
// Backends without server-side querying share it.
func paginate(records []*Record, f Filter) *Page {
	matched := make([]*Record, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			matched = append(matched, r)
		}
	}

	by, _ := ParseSort(string(f.SortBy))
	slices.SortFunc(matched, func(a, b *Record) int {
		c := compareRecords(a, b, by)
		if f.OrderDesc {
			return -c
		}
		return c
	})

	total := len(matched)
	start := min(f.Offset, total)
	end := min(start+f.EffectiveLimit(), total)

	return &Page{
		Records: matched[start:end],
		Total:   int64(total),
		HasMore: end < total,
	}
}
