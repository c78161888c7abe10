package kewtag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbaliyan/kewtag/render"
)

// generatedAtLayout is RFC 3339 in UTC with millisecond precision.
const generatedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithRenderer sets the renderer used by RenderForDisplay.
func WithRenderer(r render.Renderer) CodecOption {
	return func(c *Codec) {
		c.renderer = r
	}
}

// WithClock sets the time source used for the generatedAt metadata key.
// Defaults to time.Now.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger. The codec only logs render delegation at
// debug level; build and decode are silent.
func WithLogger(l *slog.Logger) CodecOption {
	return func(c *Codec) {
		if l != nil {
			c.logger = l
		}
	}
}

// Codec builds, validates, serializes and deserializes identity payloads.
//
// A Codec holds no mutable state after construction and is safe for
// concurrent use. The package-level functions use DefaultCodec.
//
// Example:
//
//	codec := kewtag.NewCodec(kewtag.WithRenderer(qr.New()))
//
//	p, err := codec.BuildPayload(kewtag.KindAsset, kewtag.IntID(1001), "AST-2025-001", nil)
//	if err != nil {
//	    return err
//	}
//	text, _ := codec.Serialize(p)
//	img, err := codec.RenderForDisplay(ctx, p, render.FidelityPrint)
type Codec struct {
	now      func() time.Time
	renderer render.Renderer
	logger   *slog.Logger
}

// NewCodec creates a codec.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "kewtag.codec")
	return c
}

var defaultCodec = NewCodec()

// DefaultCodec returns the codec used by the package-level functions.
// It has no renderer configured.
func DefaultCodec() *Codec {
	return defaultCodec
}

// BuildPayload assembles a payload for the given entity.
//
// Parameters:
//   - kind: must be one of the enumerated kinds; never coerced
//   - id: entity primary key in the store; must not be zero
//   - code: human-readable unique code; must not be empty
//   - extra: optional metadata; copied, never mutated
//
// The reserved keys generatedAt and system are always overwritten with
// encode-time values. Extra metadata is normalized through the wire encoding
// (numbers become json.Number) so the returned payload equals what
// Deserialize yields for its serialized form.
//
// Returns ErrInvalidKind for an unknown kind, ErrIncompletePayload for a
// zero id or an empty code and ErrMalformedPayload for an id or code that
// is not valid UTF-8.
func (c *Codec) BuildPayload(kind Kind, id ID, code string, extra Metadata) (*Payload, error) {
	const op = "build"
	if !kind.Valid() {
		return nil, payloadErr(op, "kind", ErrInvalidKind, nil)
	}
	if id.IsZero() {
		return nil, payloadErr(op, "id", ErrIncompletePayload, nil)
	}
	if code == "" {
		return nil, payloadErr(op, "code", ErrIncompletePayload, nil)
	}
	if err := checkText(op, id, code); err != nil {
		return nil, err
	}

	meta, err := normalizeMetadata(extra)
	if err != nil {
		return nil, payloadErr(op, "metadata", ErrMalformedPayload, err)
	}
	meta[MetaGeneratedAt] = c.now().UTC().Format(generatedAtLayout)
	meta[MetaSystem] = kind.System()

	return &Payload{
		Kind:     kind,
		ID:       id,
		Code:     code,
		Metadata: meta,
	}, nil
}

// AssetTag builds a KEW.PA asset payload.
func (c *Codec) AssetTag(id ID, code string, extra Metadata) (*Payload, error) {
	return c.BuildPayload(KindAsset, id, code, extra)
}

// InventoryTag builds a KEW.PS inventory payload.
func (c *Codec) InventoryTag(id ID, code string, extra Metadata) (*Payload, error) {
	return c.BuildPayload(KindInventory, id, code, extra)
}

// LocationTag builds a location payload.
func (c *Codec) LocationTag(id ID, code string, extra Metadata) (*Payload, error) {
	return c.BuildPayload(KindLocation, id, code, extra)
}

// UnitTag builds an organizational unit payload.
func (c *Codec) UnitTag(id ID, code string, extra Metadata) (*Payload, error) {
	return c.BuildPayload(KindUnit, id, code, extra)
}

// Serialize validates p and returns its compact textual form.
//
// The output is a JSON object with fields in the fixed order kind, id, code,
// metadata and metadata keys sorted, so equal payloads always serialize to
// identical text.
func (c *Codec) Serialize(p *Payload) (string, error) {
	const op = "serialize"
	if err := p.validate(op); err != nil {
		return "", err
	}
	out := *p
	if out.Metadata == nil {
		out.Metadata = Metadata{}
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return "", payloadErr(op, "metadata", ErrMalformedPayload, err)
	}
	return string(data), nil
}

// Deserialize parses scanned text back into a payload.
//
// Checks are applied in order and the first failure wins:
//  1. the text must be a single JSON object, else ErrMalformedPayload
//  2. kind, id and code must be present, non-null and non-empty, with id an
//     integer or string and code a string, else ErrIncompletePayload
//  3. kind must be one of the enumerated kinds, else ErrInvalidKind
//  4. metadata, when present, must be an object, else ErrMalformedPayload
//
// Surrounding whitespace is ignored. Missing metadata decodes to an empty map.
// Deserialize never panics on input.
func (c *Codec) Deserialize(text string) (*Payload, error) {
	const op = "deserialize"

	fields, err := decodeObject(strings.TrimSpace(text))
	if err != nil {
		return nil, payloadErr(op, "", ErrMalformedPayload, err)
	}

	rawKind, ok := present(fields, "kind")
	if !ok {
		return nil, payloadErr(op, "kind", ErrIncompletePayload, nil)
	}
	var kindName string
	kindIsString := json.Unmarshal(rawKind, &kindName) == nil
	if kindIsString && kindName == "" {
		return nil, payloadErr(op, "kind", ErrIncompletePayload, nil)
	}

	rawID, ok := present(fields, "id")
	if !ok {
		return nil, payloadErr(op, "id", ErrIncompletePayload, nil)
	}
	var id ID
	if err := json.Unmarshal(rawID, &id); err != nil {
		return nil, payloadErr(op, "id", ErrIncompletePayload, err)
	}

	rawCode, ok := present(fields, "code")
	if !ok {
		return nil, payloadErr(op, "code", ErrIncompletePayload, nil)
	}
	var code string
	if err := json.Unmarshal(rawCode, &code); err != nil {
		return nil, payloadErr(op, "code", ErrIncompletePayload, err)
	}
	if code == "" {
		return nil, payloadErr(op, "code", ErrIncompletePayload, nil)
	}

	kind := Kind(kindName)
	if !kindIsString || !kind.Valid() {
		return nil, payloadErr(op, "kind", ErrInvalidKind, nil)
	}

	meta := Metadata{}
	if rawMeta, ok := present(fields, "metadata"); ok {
		if len(rawMeta) == 0 || rawMeta[0] != '{' {
			return nil, payloadErr(op, "metadata", ErrMalformedPayload, nil)
		}
		meta, err = decodeMetadata(rawMeta)
		if err != nil {
			return nil, payloadErr(op, "metadata", ErrMalformedPayload, err)
		}
	}

	return &Payload{
		Kind:     kind,
		ID:       id,
		Code:     code,
		Metadata: meta,
	}, nil
}

// RenderForDisplay serializes p and hands the exact text to the configured
// renderer, exactly once. The renderer's image or error is returned unmodified.
//
// Returns ErrNoRenderer when the codec was built without WithRenderer, and
// the validation error when p is invalid; the renderer is not called in
// either case.
func (c *Codec) RenderForDisplay(ctx context.Context, p *Payload, fidelity render.Fidelity) (*render.Image, error) {
	if c.renderer == nil {
		return nil, ErrNoRenderer
	}
	text, err := c.Serialize(p)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("rendering tag",
		"kind", p.Kind,
		"code", p.Code,
		"fidelity", fidelity,
		"bytes", len(text))
	return c.renderer.Render(ctx, text, fidelity)
}

var errNotObject = errors.New("not a JSON object")

// decodeObject parses text as exactly one JSON object.
func decodeObject(text string) (map[string]json.RawMessage, error) {
	if text == "" || text[0] != '{' {
		return nil, errNotObject
	}
	dec := json.NewDecoder(strings.NewReader(text))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after object")
	}
	return fields, nil
}

// present returns the raw value for key unless it is missing or null.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	return raw, true
}

// BuildPayload builds a payload with the default codec.
func BuildPayload(kind Kind, id ID, code string, extra Metadata) (*Payload, error) {
	return defaultCodec.BuildPayload(kind, id, code, extra)
}

// AssetTag builds a KEW.PA asset payload with the default codec.
func AssetTag(id ID, code string, extra Metadata) (*Payload, error) {
	return defaultCodec.AssetTag(id, code, extra)
}

// InventoryTag builds a KEW.PS inventory payload with the default codec.
func InventoryTag(id ID, code string, extra Metadata) (*Payload, error) {
	return defaultCodec.InventoryTag(id, code, extra)
}

// LocationTag builds a location payload with the default codec.
func LocationTag(id ID, code string, extra Metadata) (*Payload, error) {
	return defaultCodec.LocationTag(id, code, extra)
}

// UnitTag builds an organizational unit payload with the default codec.
func UnitTag(id ID, code string, extra Metadata) (*Payload, error) {
	return defaultCodec.UnitTag(id, code, extra)
}

// Serialize serializes p with the default codec.
func Serialize(p *Payload) (string, error) {
	return defaultCodec.Serialize(p)
}

// Deserialize parses text with the default codec.
func Deserialize(text string) (*Payload, error) {
	return defaultCodec.Deserialize(text)
}
