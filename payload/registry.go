package payload

import (
	"mime"
	"strings"
	"sync"
)

var (
	mu       sync.RWMutex
	registry = map[string]Codec{
		ContentTypeJSON: JSON{},
	}
)

// Register adds a codec to the global registry.
// Codecs are looked up by their ContentType().
func Register(codec Codec) {
	mu.Lock()
	defer mu.Unlock()
	registry[codec.ContentType()] = codec
}

// Get retrieves a codec by content type from the global registry.
// Returns the codec and true if found, or nil and false if not found.
func Get(contentType string) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[contentType]
	return c, ok
}

// MustGet retrieves a codec by content type, returning the default JSON codec
// if the requested content type is not found.
func MustGet(contentType string) Codec {
	if c, ok := Get(contentType); ok {
		return c
	}
	return JSON{}
}

// Negotiate picks the first registered codec named in an Accept header.
// Parameters such as q-values are ignored; list order decides.
// Falls back to JSON when nothing matches.
//
// Example:
//
//	payload.Negotiate("application/msgpack, application/json;q=0.5") // MsgPack{}
func Negotiate(accept string) Codec {
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if c, ok := Get(mt); ok {
			return c
		}
	}
	return JSON{}
}
