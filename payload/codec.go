// Package payload provides the wire codecs used to persist and ship kewtag
// values: entity records in the store backends, lifecycle events in notify,
// and tag payload exports in the HTTP API.
//
// The tag text printed on a label is always the canonical JSON produced by
// kewtag.Serialize. The codecs here cover everything around it, where a
// denser or schema-typed encoding is useful.
//
// Usage:
//
//	// Store records as MessagePack in Badger
//	st, err := store.NewBadgerStore(db, store.WithCodec(payload.MsgPack{}))
//
//	// Pick a codec from an Accept header
//	c := payload.Negotiate(r.Header.Get("Accept"))
//	data, err := c.Encode(p)
package payload

// Content types of the built-in codecs.
const (
	ContentTypeJSON     = "application/json"
	ContentTypeMsgPack  = "application/msgpack"
	ContentTypeProtobuf = "application/protobuf"
)

// Codec encodes/decodes values to bytes.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Encode serializes v to bytes.
	Encode(v any) ([]byte, error)

	// Decode deserializes bytes into v.
	// The target must be a pointer.
	Decode(data []byte, v any) error

	// ContentType returns the MIME type (e.g., "application/json").
	ContentType() string
}

// Default returns the default codec (JSON).
func Default() Codec {
	return JSON{}
}
