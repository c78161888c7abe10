package kewtag

// Kind is the entity type carried by a tag.
// The set is closed; adding a kind is a breaking schema change.
type Kind string

const (
	// KindAsset tags a capital asset registered under KEW.PA.
	KindAsset Kind = "asset"

	// KindInventory tags a store inventory item registered under KEW.PS.
	KindInventory Kind = "inventory"

	// KindLocation tags a physical location (room, store, building).
	KindLocation Kind = "location"

	// KindUnit tags an organizational unit.
	KindUnit Kind = "unit"
)

// Originating-subsystem labels written to the "system" metadata key.
const (
	SystemAsset     = "KEW.PA"
	SystemInventory = "KEW.PS"
	SystemLocation  = "KEW-LOCATION"
	SystemUnit      = "KEW-UNIT"
)

var kinds = []Kind{KindAsset, KindInventory, KindLocation, KindUnit}

// Kinds returns every valid kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind parses a kind name. Matching is exact (lower case);
// anything else fails with ErrInvalidKind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", &PayloadError{Op: "parse", Field: "kind", Err: ErrInvalidKind}
	}
	return k, nil
}

// Valid reports whether k is one of the enumerated kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAsset, KindInventory, KindLocation, KindUnit:
		return true
	default:
		return false
	}
}

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// System returns the originating-subsystem label for the kind,
// or an empty string for an invalid kind.
func (k Kind) System() string {
	switch k {
	case KindAsset:
		return SystemAsset
	case KindInventory:
		return SystemInventory
	case KindLocation:
		return SystemLocation
	case KindUnit:
		return SystemUnit
	default:
		return ""
	}
}

// CodePrefix returns the generator prefix used for records of this kind
// that do not carry a code yet.
func (k Kind) CodePrefix() string {
	switch k {
	case KindAsset:
		return "AST"
	case KindInventory:
		return "INV"
	case KindLocation:
		return "LOC"
	case KindUnit:
		return "UNT"
	default:
		return DefaultCodePrefix
	}
}
