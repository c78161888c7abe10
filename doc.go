// Package kewtag encodes and decodes the identity tags attached to physical
// assets (KEW.PA), store inventory (KEW.PS), locations and organizational
// units.
//
// A tag carries a small typed payload:
//
//	{"kind":"asset","id":1001,"code":"AST-2025-001","metadata":{"generatedAt":"2025-03-01T10:00:00.000Z","system":"KEW.PA"}}
//
// The package is made of three parts:
//   - Generator: produces human-readable unique codes (PREFIX-TIMESTAMP-SUFFIX)
//   - Codec: builds, validates, serializes and deserializes payloads
//   - render.Renderer: external collaborator turning serialized text into an image
//
// Basic example:
//
//	code := kewtag.GenerateUniqueCode(kewtag.KindAsset.CodePrefix())
//
//	p, err := kewtag.AssetTag(kewtag.IntID(1001), code, kewtag.Metadata{"name": "Laptop"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	text, err := kewtag.Serialize(p)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... printed, scanned ...
//
//	scanned, err := kewtag.Deserialize(text)
//	if err != nil {
//	    fmt.Println(kewtag.ClassifyError(err).Message())
//	    return
//	}
//	fmt.Println(scanned.Kind, scanned.ID, scanned.System()) // asset 1001 KEW.PA
//
// Error taxonomy:
//   - ErrMalformedPayload: the text is not a structured payload ("unreadable code")
//   - ErrIncompletePayload: kind, id or code is missing ("incomplete code")
//   - ErrInvalidKind: kind is not asset, inventory, location or unit ("not a valid identity tag")
//
// All errors returned by the codec wrap one of these sentinels, so callers can
// use errors.Is or ClassifyError.
//
// Invariants:
//   - Serialize is a pure function: equal payloads give identical text
//   - Deserialize(Serialize(p)) equals p for every payload built by the codec
//   - Kinds are never coerced; an unknown kind is always an error
//
// Sub-packages provide the surrounding service: render/qr (QR rendering),
// reservation (collision detection for generated codes), store (entity
// store backends), notify (tag lifecycle events), tagging (the orchestrating
// service), api (REST layer) and payload (wire codecs).
package kewtag
