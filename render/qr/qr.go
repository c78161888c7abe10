// Package qr renders identity tags as PNG QR codes using github.com/skip2/go-qrcode.
//
// Fidelity mapping:
//   - standard: medium error correction (~15% recovery), 256px
//   - print: highest error correction (~30% recovery), 1024px
//
// Example:
//
//	r := qr.New(qr.WithPrintSize(2048))
//	img, err := r.Render(ctx, text, render.FidelityPrint)
package qr

import (
	"context"
	"fmt"

	"github.com/rbaliyan/kewtag/render"
	qrcode "github.com/skip2/go-qrcode"
)

// Default image sizes in pixels.
const (
	DefaultStandardSize = 256
	DefaultPrintSize    = 1024
)

// Option configures the Renderer.
type Option func(*Renderer)

// WithStandardSize sets the edge length for standard fidelity.
func WithStandardSize(px int) Option {
	return func(r *Renderer) {
		if px > 0 {
			r.standardSize = px
		}
	}
}

// WithPrintSize sets the edge length for print fidelity.
func WithPrintSize(px int) Option {
	return func(r *Renderer) {
		if px > 0 {
			r.printSize = px
		}
	}
}

// WithBorder enables or disables the quiet zone around the symbol.
// Enabled by default; scanners need it on printed labels.
func WithBorder(enabled bool) Option {
	return func(r *Renderer) {
		r.border = enabled
	}
}

// Renderer implements render.Renderer with PNG QR codes.
// It is stateless after construction and safe for concurrent use.
type Renderer struct {
	standardSize int
	printSize    int
	border       bool
}

// New creates a QR renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		standardSize: DefaultStandardSize,
		printSize:    DefaultPrintSize,
		border:       true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render encodes content into a PNG QR code.
func (r *Renderer) Render(ctx context.Context, content string, fidelity render.Fidelity) (*render.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	level, size, err := r.settings(fidelity)
	if err != nil {
		return nil, err
	}

	code, err := qrcode.New(content, level)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	code.DisableBorder = !r.border

	png, err := code.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("qr png: %w", err)
	}

	return &render.Image{
		Data:        png,
		ContentType: "image/png",
		Size:        size,
	}, nil
}

func (r *Renderer) settings(fidelity render.Fidelity) (qrcode.RecoveryLevel, int, error) {
	switch fidelity {
	case render.FidelityStandard:
		return qrcode.Medium, r.standardSize, nil
	case render.FidelityPrint:
		return qrcode.Highest, r.printSize, nil
	default:
		return 0, 0, fmt.Errorf("%w: %q", render.ErrInvalidFidelity, fidelity)
	}
}

// Compile-time check.
var _ render.Renderer = (*Renderer)(nil)
