package kewtag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rbaliyan/kewtag/render"
	"syreclabs.com/go/faker"
)

var fixedTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func frozenCodec(opts ...CodecOption) *Codec {
	return NewCodec(append([]CodecOption{WithClock(func() time.Time { return fixedTime })}, opts...)...)
}

func TestAssetTagLifecycle(t *testing.T) {
	codec := frozenCodec()

	p, err := codec.AssetTag(IntID(1001), "AST-2025-001", nil)
	if err != nil {
		t.Fatalf("AssetTag failed: %v", err)
	}
	if p.System() != "KEW.PA" {
		t.Errorf("expected system KEW.PA, got %q", p.System())
	}
	if ts, ok := p.GeneratedAt(); !ok || !ts.Equal(fixedTime) {
		t.Errorf("expected generatedAt %v, got %v (ok=%v)", fixedTime, ts, ok)
	}

	text, err := codec.Serialize(p)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	want := `{"kind":"asset","id":1001,"code":"AST-2025-001","metadata":{"generatedAt":"2025-03-01T10:00:00.000Z","system":"KEW.PA"}}`
	if text != want {
		t.Errorf("unexpected serialization\n got: %s\nwant: %s", text, want)
	}

	scanned, err := codec.Deserialize(text)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if scanned.Kind != KindAsset {
		t.Errorf("expected kind asset, got %s", scanned.Kind)
	}
	if n, ok := scanned.ID.Int64(); !ok || n != 1001 {
		t.Errorf("expected integer id 1001, got %v", scanned.ID)
	}
	if scanned.Code != "AST-2025-001" {
		t.Errorf("expected code AST-2025-001, got %s", scanned.Code)
	}
	if diff := cmp.Diff(p, scanned); diff != "" {
		t.Errorf("round trip mismatch (-built +scanned):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	faker.Seed(time.Now().UnixNano())
	codec := NewCodec()

	for _, kind := range Kinds() {
		for i := 0; i < 20; i++ {
			var id ID
			if i%2 == 0 {
				id = IntID(int64(faker.RandomInt(1, 1<<30)))
			} else {
				id = StringID(faker.Lorem().Word() + "-" + fmt.Sprint(i))
			}
			code := GenerateUniqueCode(kind.CodePrefix())
			extra := Metadata{
				"name":     faker.Commerce().ProductName(),
				"quantity": faker.RandomInt(0, 5000),
				"price":    12.5,
				"tags":     []string{faker.Lorem().Word(), "<fragile>"},
				"nested":   map[string]any{"room": faker.Lorem().String()},
			}

			built, err := codec.BuildPayload(kind, id, code, extra)
			if err != nil {
				t.Fatalf("BuildPayload(%s) failed: %v", kind, err)
			}
			text, err := codec.Serialize(built)
			if err != nil {
				t.Fatalf("Serialize failed: %v", err)
			}
			got, err := codec.Deserialize(text)
			if err != nil {
				t.Fatalf("Deserialize(%s) failed: %v", text, err)
			}
			if diff := cmp.Diff(built, got); diff != "" {
				t.Errorf("round trip mismatch for %s (-built +decoded):\n%s", kind, diff)
			}
		}
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	codec := frozenCodec()
	extra := Metadata{"zeta": 1, "alpha": "a", "mid": true}

	first, err := codec.InventoryTag(IntID(7), "INV-1", extra)
	if err != nil {
		t.Fatalf("InventoryTag failed: %v", err)
	}
	second, err := codec.InventoryTag(IntID(7), "INV-1", extra)
	if err != nil {
		t.Fatalf("InventoryTag failed: %v", err)
	}

	a, _ := codec.Serialize(first)
	b, _ := codec.Serialize(second)
	if a != b {
		t.Errorf("expected identical text\n%s\n%s", a, b)
	}
	want := `{"kind":"inventory","id":7,"code":"INV-1","metadata":{"alpha":"a","generatedAt":"2025-03-01T10:00:00.000Z","mid":true,"system":"KEW.PS","zeta":1}}`
	if a != want {
		t.Errorf("unexpected serialization\n got: %s\nwant: %s", a, want)
	}
}

func TestBuildPayload(t *testing.T) {
	codec := frozenCodec()

	t.Run("every kind carries its system label", func(t *testing.T) {
		want := map[Kind]string{
			KindAsset:     "KEW.PA",
			KindInventory: "KEW.PS",
			KindLocation:  "KEW-LOCATION",
			KindUnit:      "KEW-UNIT",
		}
		seen := map[string]bool{}
		for _, kind := range Kinds() {
			p, err := codec.BuildPayload(kind, IntID(1), "X-1", nil)
			if err != nil {
				t.Fatalf("BuildPayload(%s) failed: %v", kind, err)
			}
			if p.System() != want[kind] {
				t.Errorf("%s: expected system %q, got %q", kind, want[kind], p.System())
			}
			if seen[p.System()] {
				t.Errorf("system label %q is not distinct", p.System())
			}
			seen[p.System()] = true
		}
	})

	t.Run("unknown kind is rejected, never coerced", func(t *testing.T) {
		for _, k := range []Kind{"vehicle", "", "Asset"} {
			_, err := codec.BuildPayload(k, IntID(1), "X-1", nil)
			if !errors.Is(err, ErrInvalidKind) {
				t.Errorf("BuildPayload(%q): expected ErrInvalidKind, got %v", k, err)
			}
		}
	})

	t.Run("missing id or code is incomplete", func(t *testing.T) {
		if _, err := codec.AssetTag(ID{}, "X-1", nil); !errors.Is(err, ErrIncompletePayload) {
			t.Errorf("expected ErrIncompletePayload for zero id, got %v", err)
		}
		if _, err := codec.AssetTag(IntID(1), "", nil); !errors.Is(err, ErrIncompletePayload) {
			t.Errorf("expected ErrIncompletePayload for empty code, got %v", err)
		}
	})

	t.Run("reserved keys are overwritten", func(t *testing.T) {
		p, err := codec.LocationTag(IntID(3), "LOC-1", Metadata{
			MetaSystem:      "spoofed",
			MetaGeneratedAt: "yesterday",
			"floor":         "2",
		})
		if err != nil {
			t.Fatalf("LocationTag failed: %v", err)
		}
		if p.System() != SystemLocation {
			t.Errorf("expected system %q, got %q", SystemLocation, p.System())
		}
		if p.Metadata[MetaGeneratedAt] != "2025-03-01T10:00:00.000Z" {
			t.Errorf("unexpected generatedAt %v", p.Metadata[MetaGeneratedAt])
		}
		if p.Metadata["floor"] != "2" {
			t.Errorf("expected extra key to survive, got %v", p.Metadata["floor"])
		}
	})

	t.Run("caller metadata is not mutated", func(t *testing.T) {
		extra := Metadata{"note": "x"}
		if _, err := codec.UnitTag(StringID("finance"), "UNT-1", extra); err != nil {
			t.Fatalf("UnitTag failed: %v", err)
		}
		if diff := cmp.Diff(Metadata{"note": "x"}, extra); diff != "" {
			t.Errorf("extra was mutated:\n%s", diff)
		}
	})

	t.Run("numbers are normalized to json.Number", func(t *testing.T) {
		p, err := codec.AssetTag(IntID(1), "AST-1", Metadata{"qty": 3})
		if err != nil {
			t.Fatalf("AssetTag failed: %v", err)
		}
		if p.Metadata["qty"] != json.Number("3") {
			t.Errorf("expected json.Number(3), got %#v", p.Metadata["qty"])
		}
	})

	t.Run("unencodable metadata is rejected", func(t *testing.T) {
		_, err := codec.AssetTag(IntID(1), "AST-1", Metadata{"ch": make(chan int)})
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("expected ErrMalformedPayload, got %v", err)
		}
	})
}

func TestSerializeRejectsInvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		p    *Payload
		want error
	}{
		{"nil payload", nil, ErrIncompletePayload},
		{"missing kind", &Payload{ID: IntID(1), Code: "A"}, ErrIncompletePayload},
		{"missing id", &Payload{Kind: KindAsset, Code: "A"}, ErrIncompletePayload},
		{"missing code", &Payload{Kind: KindAsset, ID: IntID(1)}, ErrIncompletePayload},
		{"unknown kind", &Payload{Kind: "vehicle", ID: IntID(1), Code: "A"}, ErrInvalidKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Serialize(tt.p); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("nil metadata serializes as an empty object", func(t *testing.T) {
		text, err := Serialize(&Payload{Kind: KindUnit, ID: StringID("u1"), Code: "UNT-1"})
		if err != nil {
			t.Fatalf("Serialize failed: %v", err)
		}
		want := `{"kind":"unit","id":"u1","code":"UNT-1","metadata":{}}`
		if text != want {
			t.Errorf("got %s, want %s", text, want)
		}
	})
}

func TestDeserialize(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  error
		field string
	}{
		{"plain text", "not json", ErrMalformedPayload, ""},
		{"empty", "", ErrMalformedPayload, ""},
		{"whitespace only", "   \n", ErrMalformedPayload, ""},
		{"array", "[1,2]", ErrMalformedPayload, ""},
		{"scalar", "42", ErrMalformedPayload, ""},
		{"null", "null", ErrMalformedPayload, ""},
		{"truncated scan", `{"kind":"asset","id":1,"co`, ErrMalformedPayload, ""},
		{"trailing data", `{"kind":"asset","id":1,"code":"A"} {}`, ErrMalformedPayload, ""},
		{"only kind", `{"kind":"asset"}`, ErrIncompletePayload, "id"},
		{"empty object", `{}`, ErrIncompletePayload, "kind"},
		{"missing kind", `{"id":1,"code":"A"}`, ErrIncompletePayload, "kind"},
		{"empty kind", `{"kind":"","id":1,"code":"A"}`, ErrIncompletePayload, "kind"},
		{"null id", `{"kind":"asset","id":null,"code":"A"}`, ErrIncompletePayload, "id"},
		{"empty id", `{"kind":"asset","id":"","code":"A"}`, ErrIncompletePayload, "id"},
		{"fractional id", `{"kind":"asset","id":1.5,"code":"A"}`, ErrIncompletePayload, "id"},
		{"boolean id", `{"kind":"asset","id":true,"code":"A"}`, ErrIncompletePayload, "id"},
		{"empty code", `{"kind":"asset","id":1,"code":""}`, ErrIncompletePayload, "code"},
		{"numeric code", `{"kind":"asset","id":1,"code":7}`, ErrIncompletePayload, "code"},
		{"unknown kind with missing fields", `{"kind":"vehicle"}`, ErrIncompletePayload, "id"},
		{"unknown kind", `{"kind":"vehicle","id":1,"code":"A"}`, ErrInvalidKind, "kind"},
		{"upper case kind", `{"kind":"ASSET","id":1,"code":"A"}`, ErrInvalidKind, "kind"},
		{"numeric kind", `{"kind":3,"id":1,"code":"A"}`, ErrInvalidKind, "kind"},
		{"array metadata", `{"kind":"asset","id":1,"code":"A","metadata":[1]}`, ErrMalformedPayload, "metadata"},
		{"string metadata", `{"kind":"asset","id":1,"code":"A","metadata":"x"}`, ErrMalformedPayload, "metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Deserialize(tt.text)
			if p != nil {
				t.Errorf("expected nil payload, got %+v", p)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var pe *PayloadError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PayloadError, got %T", err)
			}
			if pe.Op != "deserialize" {
				t.Errorf("expected op deserialize, got %q", pe.Op)
			}
			if pe.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, pe.Field)
			}
		})
	}

	t.Run("minimal payload gets empty metadata", func(t *testing.T) {
		p, err := Deserialize(`{"kind":"asset","id":1,"code":"AST-1"}`)
		if err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
		want := &Payload{Kind: KindAsset, ID: IntID(1), Code: "AST-1", Metadata: Metadata{}}
		if diff := cmp.Diff(want, p); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("null metadata is treated as absent", func(t *testing.T) {
		p, err := Deserialize(`{"kind":"unit","id":"ops","code":"UNT-1","metadata":null}`)
		if err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
		if p.Metadata == nil || len(p.Metadata) != 0 {
			t.Errorf("expected empty metadata, got %#v", p.Metadata)
		}
		if p.ID.IsInt() || p.ID.String() != "ops" {
			t.Errorf("expected string id ops, got %v", p.ID)
		}
	})

	t.Run("scanner whitespace is tolerated", func(t *testing.T) {
		p, err := Deserialize("\r\n  {\"kind\":\"location\",\"id\":9,\"code\":\"LOC-9\"}\n")
		if err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
		if p.Kind != KindLocation {
			t.Errorf("expected location, got %s", p.Kind)
		}
	})

	t.Run("unknown top-level fields are ignored", func(t *testing.T) {
		if _, err := Deserialize(`{"kind":"asset","id":1,"code":"A","v":2}`); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		text    string
		want    Failure
		message string
	}{
		{"garbage", FailureUnreadable, "unreadable code"},
		{`{"kind":"asset"}`, FailureIncomplete, "incomplete code"},
		{`{"kind":"vehicle","id":1,"code":"A"}`, FailureInvalidKind, "not a valid identity tag"},
	}
	for _, tt := range tests {
		_, err := Deserialize(tt.text)
		got := ClassifyError(err)
		if got != tt.want {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.text, got, tt.want)
		}
		if got.Message() != tt.message {
			t.Errorf("Message() = %q, want %q", got.Message(), tt.message)
		}
	}

	if ClassifyError(nil) != FailureNone {
		t.Error("expected FailureNone for nil")
	}
	if ClassifyError(errors.New("boom")) != FailureUnknown {
		t.Error("expected FailureUnknown for foreign error")
	}
	if got := ClassifyError(fmt.Errorf("scan: %w", ErrMalformedPayload)); got != FailureUnreadable {
		t.Errorf("expected wrapped sentinel to classify, got %v", got)
	}
}

func TestRenderForDisplay(t *testing.T) {
	ctx := context.Background()

	t.Run("renderer receives the serialized text exactly once", func(t *testing.T) {
		var calls int
		var gotContent string
		var gotFidelity render.Fidelity
		img := &render.Image{Data: []byte{1, 2, 3}, ContentType: "image/png", Size: 10}
		r := render.RendererFunc(func(_ context.Context, content string, f render.Fidelity) (*render.Image, error) {
			calls++
			gotContent = content
			gotFidelity = f
			return img, nil
		})
		codec := frozenCodec(WithRenderer(r))

		p, err := codec.AssetTag(IntID(1001), "AST-2025-001", nil)
		if err != nil {
			t.Fatalf("AssetTag failed: %v", err)
		}
		text, _ := codec.Serialize(p)

		got, err := codec.RenderForDisplay(ctx, p, render.FidelityPrint)
		if err != nil {
			t.Fatalf("RenderForDisplay failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 renderer call, got %d", calls)
		}
		if gotContent != text {
			t.Errorf("renderer got %q, want %q", gotContent, text)
		}
		if gotFidelity != render.FidelityPrint {
			t.Errorf("expected print fidelity, got %s", gotFidelity)
		}
		if got != img {
			t.Error("expected renderer image to be returned unmodified")
		}
	})

	t.Run("renderer errors pass through", func(t *testing.T) {
		boom := errors.New("printer on fire")
		codec := NewCodec(WithRenderer(render.RendererFunc(func(context.Context, string, render.Fidelity) (*render.Image, error) {
			return nil, boom
		})))
		p, _ := codec.UnitTag(IntID(1), "UNT-1", nil)
		if _, err := codec.RenderForDisplay(ctx, p, render.FidelityStandard); err != boom {
			t.Errorf("expected renderer error unmodified, got %v", err)
		}
	})

	t.Run("invalid payload never reaches the renderer", func(t *testing.T) {
		var calls int
		codec := NewCodec(WithRenderer(render.RendererFunc(func(context.Context, string, render.Fidelity) (*render.Image, error) {
			calls++
			return nil, nil
		})))
		_, err := codec.RenderForDisplay(ctx, &Payload{Kind: "vehicle", ID: IntID(1), Code: "A"}, render.FidelityStandard)
		if !errors.Is(err, ErrInvalidKind) {
			t.Errorf("expected ErrInvalidKind, got %v", err)
		}
		if calls != 0 {
			t.Errorf("expected no renderer calls, got %d", calls)
		}
	})

	t.Run("missing renderer is reported", func(t *testing.T) {
		p, _ := AssetTag(IntID(1), "AST-1", nil)
		if _, err := DefaultCodec().RenderForDisplay(ctx, p, render.FidelityStandard); !errors.Is(err, ErrNoRenderer) {
			t.Errorf("expected ErrNoRenderer, got %v", err)
		}
	})
}

func TestPayloadClone(t *testing.T) {
	p, err := AssetTag(IntID(5), "AST-5", Metadata{"nested": map[string]any{"a": "b"}, "list": []any{"x"}})
	if err != nil {
		t.Fatalf("AssetTag failed: %v", err)
	}
	c := p.Clone()
	if diff := cmp.Diff(p, c); diff != "" {
		t.Fatalf("clone differs:\n%s", diff)
	}
	c.Metadata["nested"].(map[string]any)["a"] = "changed"
	c.Metadata["list"].([]any)[0] = "y"
	if p.Metadata["nested"].(map[string]any)["a"] != "b" {
		t.Error("nested map shared between clone and original")
	}
	if p.Metadata["list"].([]any)[0] != "x" {
		t.Error("slice shared between clone and original")
	}
}

func TestPayloadFields(t *testing.T) {
	p, err := frozenCodec().InventoryTag(IntID(42), "INV-42", Metadata{
		"quantity": 12,
		"price":    3.5,
		"bins":     []any{1, "B-2"},
	})
	if err != nil {
		t.Fatalf("InventoryTag failed: %v", err)
	}

	want := map[string]any{
		"kind": "inventory",
		"id":   int64(42),
		"code": "INV-42",
		"metadata": map[string]any{
			"quantity":    int64(12),
			"price":       3.5,
			"bins":        []any{int64(1), "B-2"},
			"generatedAt": "2025-03-01T10:00:00.000Z",
			"system":      SystemInventory,
		},
	}
	if diff := cmp.Diff(want, p.Fields()); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}

	s, _ := LocationTag(StringID("room-12"), "LOC-12", nil)
	if id := s.Fields()["id"]; id != "room-12" {
		t.Errorf("expected string id, got %#v", id)
	}
}

func TestInvalidUTF8IsRejected(t *testing.T) {
	codec := frozenCodec()

	tests := []struct {
		name  string
		id    ID
		code  string
		field string
	}{
		{"code", IntID(1), "AST-\xff-001", "code"},
		{"string id", StringID("id\xfe"), "AST-1", "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name+" is refused by BuildPayload", func(t *testing.T) {
			_, err := codec.BuildPayload(KindAsset, tt.id, tt.code, nil)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
			var pe *PayloadError
			if !errors.As(err, &pe) || pe.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})

		t.Run(tt.name+" is refused by Serialize", func(t *testing.T) {
			p := &Payload{Kind: KindAsset, ID: tt.id, Code: tt.code}
			if _, err := codec.Serialize(p); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", err)
			}
			if err := p.Validate(); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Validate: expected ErrMalformedPayload, got %v", err)
			}
		})
	}

	t.Run("valid multi-byte text round-trips", func(t *testing.T) {
		p, err := codec.BuildPayload(KindLocation, StringID("salle-é"), "LOC-Ω-7", nil)
		if err != nil {
			t.Fatalf("BuildPayload failed: %v", err)
		}
		text, err := codec.Serialize(p)
		if err != nil {
			t.Fatalf("Serialize failed: %v", err)
		}
		got, err := codec.Deserialize(text)
		if err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
		if diff := cmp.Diff(p, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}
