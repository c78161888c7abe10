package payload

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack implements Codec using MessagePack serialization.
// It is the default value encoding of the Badger store, where records are
// read far more often than they are inspected by hand.
//
// Struct fields are keyed by their json tag so a record encodes with the
// same field names in every format.
//
// Usage:
//
//	st, err := store.NewBadgerStore(db, store.WithCodec(payload.MsgPack{}))
type MsgPack struct{}

// Encode serializes v to MessagePack bytes.
func (MsgPack) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes MessagePack bytes into v.
func (MsgPack) Decode(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// ContentType returns the MIME type for MessagePack.
func (MsgPack) ContentType() string {
	return ContentTypeMsgPack
}

// Compile-time check.
var _ Codec = MsgPack{}

func init() {
	Register(MsgPack{})
}
