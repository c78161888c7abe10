package kewtag

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"
)

// Reserved metadata keys. They are always overwritten with encode-time
// values by BuildPayload.
const (
	MetaGeneratedAt = "generatedAt"
	MetaSystem      = "system"
)

// Metadata holds free-form tag annotations.
// After a build or a decode, numbers are json.Number, nested objects are
// map[string]any and arrays are []any.
type Metadata map[string]any

// Payload is the canonical unit of data embedded in a tag.
type Payload struct {
	Kind     Kind     `json:"kind"`
	ID       ID       `json:"id"`
	Code     string   `json:"code"`
	Metadata Metadata `json:"metadata"`
}

// Validate checks the payload invariants: kind must be enumerated,
// id and code must be present, non-empty and valid UTF-8.
func (p *Payload) Validate() error {
	return p.validate("validate")
}

func (p *Payload) validate(op string) error {
	if p == nil {
		return payloadErr(op, "", ErrIncompletePayload, nil)
	}
	if p.Kind == "" {
		return payloadErr(op, "kind", ErrIncompletePayload, nil)
	}
	if p.ID.IsZero() {
		return payloadErr(op, "id", ErrIncompletePayload, nil)
	}
	if p.Code == "" {
		return payloadErr(op, "code", ErrIncompletePayload, nil)
	}
	if !p.Kind.Valid() {
		return payloadErr(op, "kind", ErrInvalidKind, nil)
	}
	return checkText(op, p.ID, p.Code)
}

var errInvalidUTF8 = errors.New("not valid UTF-8")

// checkText rejects ids and codes the JSON text form cannot carry intact.
func checkText(op string, id ID, code string) error {
	if !utf8.ValidString(id.String()) {
		return payloadErr(op, "id", ErrMalformedPayload, errInvalidUTF8)
	}
	if !utf8.ValidString(code) {
		return payloadErr(op, "code", ErrMalformedPayload, errInvalidUTF8)
	}
	return nil
}

// Clone creates a deep copy of the payload.
func (p *Payload) Clone() *Payload {
	clone := *p
	if p.Metadata != nil {
		clone.Metadata = copyValue(map[string]any(p.Metadata)).(map[string]any)
	}
	return &clone
}

// System returns the originating-subsystem label recorded in the metadata.
func (p *Payload) System() string {
	s, _ := p.Metadata[MetaSystem].(string)
	return s
}

// GeneratedAt returns the generation timestamp recorded in the metadata.
func (p *Payload) GeneratedAt() (time.Time, bool) {
	s, ok := p.Metadata[MetaGeneratedAt].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Fields returns the payload as plain maps and scalars: the id is an int64
// or a string and metadata numbers are int64 or float64. Codecs without
// JSON marshaler support (MessagePack, Protobuf) encode it into the same
// shape as the serialized text.
func (p *Payload) Fields() map[string]any {
	var id any = p.ID.String()
	if n, ok := p.ID.Int64(); ok {
		id = n
	}
	return map[string]any{
		"kind":     string(p.Kind),
		"id":       id,
		"code":     p.Code,
		"metadata": plainValue(map[string]any(p.Metadata)),
	}
}

func plainValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case Metadata:
		return plainValue(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = plainValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = plainValue(val)
		}
		return out
	case nil:
		return nil
	default:
		return v
	}
}

func copyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(tv))
		for k, val := range tv {
			m[k] = copyValue(val)
		}
		return m
	case Metadata:
		return copyValue(map[string]any(tv))
	case []any:
		s := make([]any, len(tv))
		for i, val := range tv {
			s[i] = copyValue(val)
		}
		return s
	default:
		return v
	}
}

// normalizeMetadata passes metadata through the wire encoding so the
// in-memory form is exactly what Deserialize yields for it.
func normalizeMetadata(m Metadata) (Metadata, error) {
	if len(m) == 0 {
		return Metadata{}, nil
	}
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return decodeMetadata(data)
}

func decodeMetadata(data []byte) (Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return Metadata(out), nil
}
