// Package render defines the tag renderer contract.
//
// A Renderer turns the serialized text of an identity payload into a
// scannable image. The codec treats it as a black box: it is handed the exact
// output of kewtag.Serialize, invoked at most once per render request, and its
// result or error is passed through unmodified.
//
// Implementations:
//   - qr.Renderer: PNG QR codes (github.com/skip2/go-qrcode)
//   - RendererFunc: adapter for plain functions, handy in tests
//
// Example:
//
//	codec := kewtag.NewCodec(kewtag.WithRenderer(qr.New()))
//	img, err := codec.RenderForDisplay(ctx, payload, render.FidelityPrint)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(img.DataURI())
package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// Fidelity selects the trade-off between compactness and robustness.
type Fidelity string

const (
	// FidelityStandard favors a compact encoding for on-screen display.
	FidelityStandard Fidelity = "standard"

	// FidelityPrint requests maximal error correction and a larger pixel
	// footprint for printed labels.
	FidelityPrint Fidelity = "print"
)

// ErrInvalidFidelity is returned for fidelity names other than standard and print.
var ErrInvalidFidelity = errors.New("invalid render fidelity")

// ParseFidelity parses a fidelity name. An empty string selects FidelityStandard.
func ParseFidelity(s string) (Fidelity, error) {
	switch Fidelity(s) {
	case "", FidelityStandard:
		return FidelityStandard, nil
	case FidelityPrint:
		return FidelityPrint, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFidelity, s)
	}
}

// Valid reports whether f is a known fidelity.
func (f Fidelity) Valid() bool {
	return f == FidelityStandard || f == FidelityPrint
}

// Image is an opaque rendered tag.
type Image struct {
	Data        []byte
	ContentType string // e.g. "image/png"
	Size        int    // edge length in pixels
}

// DataURI returns the image as a base64 data URI suitable for an <img> src.
func (i *Image) DataURI() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Renderer renders serialized payload text into an image.
// Implementations must be safe for concurrent use.
type Renderer interface {
	Render(ctx context.Context, content string, fidelity Fidelity) (*Image, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, content string, fidelity Fidelity) (*Image, error)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, content string, fidelity Fidelity) (*Image, error) {
	return f(ctx, content, fidelity)
}

// Compile-time check.
var _ Renderer = RendererFunc(nil)
