package kewtag

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// ID is the entity's primary identifier in the entity store.
// It is opaque to the codec but remembers whether it was an integer or a
// string so that it encodes back exactly as it was decoded.
//
// The zero value is the absent id.
type ID struct {
	text  string
	isInt bool
}

// IntID returns an integer id.
func IntID(n int64) ID {
	return ID{text: strconv.FormatInt(n, 10), isInt: true}
}

// StringID returns a string id. An empty string yields the absent id.
func StringID(s string) ID {
	return ID{text: s}
}

// IsZero reports whether the id is absent.
func (id ID) IsZero() bool {
	return id.text == ""
}

// IsInt reports whether the id is an integer.
func (id ID) IsInt() bool {
	return id.isInt
}

// Int64 returns the integer value of the id.
// The boolean is false for string ids, even numeric-looking ones.
func (id ID) Int64() (int64, bool) {
	if !id.isInt {
		return 0, false
	}
	n, err := strconv.ParseInt(id.text, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String returns the textual form of the id.
func (id ID) String() string {
	return id.text
}

// Equal reports whether two ids have the same type and value.
func (id ID) Equal(other ID) bool {
	return id == other
}

// MarshalJSON encodes integer ids as JSON numbers and string ids as JSON strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if id.isInt {
		return []byte(id.text), nil
	}
	return json.Marshal(id.text)
}

var errBadID = errors.New("id must be an integer or a non-empty string")

// UnmarshalJSON accepts a JSON integer or a non-empty JSON string.
// null leaves the id absent.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return errBadID
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errBadID
	}
	*id = IntID(n)
	return nil
}
