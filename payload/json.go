package payload

import (
	"bytes"
	"encoding/json"
)

// JSON implements Codec using JSON serialization.
// This is the default codec. Numbers decoded into interface values are kept
// as json.Number so integer ids survive a round trip unchanged.
type JSON struct{}

// Encode serializes v to JSON bytes.
func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes JSON bytes into v.
func (JSON) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// ContentType returns the MIME type for JSON.
func (JSON) ContentType() string {
	return ContentTypeJSON
}

// Compile-time check.
var _ Codec = JSON{}
