package payload

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Proto implements Codec using Protocol Buffers serialization.
//
// proto.Message values are marshaled directly. Any other value must be
// JSON-shaped (a struct with json tags, a map, ...); it is carried as a
// google.protobuf.Struct, so consumers with the well-known types can read
// tag payloads without a kewtag-specific schema. Numbers inside a Struct are
// doubles; integers above 2^53 lose precision.
//
// Usage:
//
//	data, err := payload.Proto{}.Encode(p) // p is a *kewtag.Payload
type Proto struct{}

// Encode serializes v to Protocol Buffer bytes.
func (Proto) Encode(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return proto.Marshal(msg)
	}
	s, err := toStruct(v)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Decode deserializes Protocol Buffer bytes into v.
// A proto.Message target is unmarshaled directly; any other target is
// filled from the decoded Struct through its JSON form.
func (Proto) Decode(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, msg)
	}
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return err
	}
	js, err := protojson.Marshal(&s)
	if err != nil {
		return err
	}
	return JSON{}.Decode(js, v)
}

// ContentType returns the MIME type for Protocol Buffers.
func (Proto) ContentType() string {
	return ContentTypeProtobuf
}

func toStruct(v any) (*structpb.Struct, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(js, &m); err != nil {
		return nil, fmt.Errorf("proto: value must encode as a JSON object: %w", err)
	}
	return structpb.NewStruct(m)
}

// Compile-time check.
var _ Codec = Proto{}

func init() {
	Register(Proto{})
}
