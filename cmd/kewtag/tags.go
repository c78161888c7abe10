package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rbaliyan/kewtag"
	"github.com/rbaliyan/kewtag/payload"
	"github.com/rbaliyan/kewtag/render"
	"github.com/rbaliyan/kewtag/render/qr"
	"github.com/spf13/cobra"
)

// Exit codes of the decode command, one per failure class.
const (
	exitUnreadable  = 2
	exitIncomplete  = 3
	exitInvalidKind = 4
)

func newCodeCmd() *cobra.Command {
	var (
		prefix string
		count  int
	)
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Generate unique codes",
		Long: `Generate unique codes of the form PREFIX-TIMESTAMP-SUFFIX.
The prefix may be a literal (e.g. AST) or a kind name (asset, inventory,
location, unit), which selects that kind's prefix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}
			if k, err := kewtag.ParseKind(prefix); err == nil {
				prefix = k.CodePrefix()
			}
			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				fmt.Fprintln(out, kewtag.GenerateUniqueCode(prefix))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Code prefix or kind name (default KEW)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of codes to generate")
	return cmd
}

// tagFlags are shared by encode and render.
type tagFlags struct {
	kind string
	id   string
	code string
	meta []string
}

func (f *tagFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "", "Entity kind: asset, inventory, location or unit")
	cmd.Flags().StringVar(&f.id, "id", "", "Entity id (integer or string)")
	cmd.Flags().StringVarP(&f.code, "code", "c", "", "Human-readable unique code")
	cmd.Flags().StringArrayVarP(&f.meta, "meta", "m", nil, "Extra metadata as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("code")
}

func (f *tagFlags) build(codec *kewtag.Codec) (*kewtag.Payload, error) {
	kind, err := kewtag.ParseKind(f.kind)
	if err != nil {
		return nil, err
	}
	extra, err := parseMeta(f.meta)
	if err != nil {
		return nil, err
	}
	return codec.BuildPayload(kind, parseID(f.id), f.code, extra)
}

// parseID reads an integer id when the text is one, and a string id otherwise.
func parseID(s string) kewtag.ID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return kewtag.IntID(n)
	}
	return kewtag.StringID(s)
}

func parseMeta(pairs []string) (kewtag.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := kewtag.Metadata{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q: expected key=value", pair)
		}
		meta[key] = value
	}
	return meta, nil
}

func newEncodeCmd() *cobra.Command {
	var (
		flags  tagFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Build and serialize a tag payload",
		Example: `  kewtag encode --kind asset --id 1001 --code AST-2025-001 --meta location="Block A"
  kewtag encode -k inventory --id 42 -c INV-2025-042 --format msgpack > tag.bin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.build(kewtag.DefaultCodec())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == "text" {
				text, err := kewtag.Serialize(p)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, text)
				return nil
			}
			c, err := codecByName(format)
			if err != nil {
				return err
			}
			data, err := c.Encode(p.Fields())
			if err != nil {
				return fmt.Errorf("encode %s: %w", format, err)
			}
			_, err = out.Write(data)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, msgpack or protobuf")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <text|->",
		Short: "Parse scanned tag text",
		Long: `Parse scanned tag text and print its kind, id, code and issue time,
followed by the payload as compact JSON on one line.
Pass "-" to read the text from stdin.

Exit codes: 2 unreadable, 3 incomplete, 4 not a valid identity tag.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := args[0]
			if text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			p, err := kewtag.Deserialize(text)
			if err != nil {
				return decodeFailure(err)
			}

			data, err := payload.JSON{}.Encode(p.Fields())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kind:     %s (%s)\n", p.Kind, p.System())
			fmt.Fprintf(out, "id:       %s\n", p.ID)
			fmt.Fprintf(out, "code:     %s\n", p.Code)
			if at, ok := p.GeneratedAt(); ok {
				fmt.Fprintf(out, "issued:   %s\n", at.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "payload:  %s\n", data)
			return nil
		},
	}
	return cmd
}

// decodeFailure maps a codec error to the scanner message and exit code.
func decodeFailure(err error) error {
	f := kewtag.ClassifyError(err)
	msg := fmt.Errorf("%s: %w", f.Message(), err)
	switch f {
	case kewtag.FailureUnreadable:
		return &exitError{code: exitUnreadable, err: msg}
	case kewtag.FailureIncomplete:
		return &exitError{code: exitIncomplete, err: msg}
	case kewtag.FailureInvalidKind:
		return &exitError{code: exitInvalidKind, err: msg}
	default:
		return msg
	}
}

func newRenderCmd() *cobra.Command {
	var (
		flags    tagFlags
		fidelity string
		output   string
		size     int
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a tag as a PNG QR code",
		Example: `  kewtag render --kind asset --id 1001 --code AST-2025-001 --fidelity print -o label.png`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fid, err := render.ParseFidelity(fidelity)
			if err != nil {
				return err
			}
			codec := kewtag.NewCodec(kewtag.WithRenderer(qr.New(
				qr.WithStandardSize(size),
				qr.WithPrintSize(size),
			)))
			p, err := flags.build(codec)
			if err != nil {
				return err
			}
			img, err := codec.RenderForDisplay(cmd.Context(), p, fid)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(img.Data)
				return err
			}
			if err := os.WriteFile(output, img.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%dpx, %d bytes)\n", output, img.Size, len(img.Data))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&fidelity, "fidelity", string(render.FidelityStandard), "Render fidelity: standard or print")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().IntVar(&size, "size", 0, "Image edge length in pixels (default depends on fidelity)")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <code>",
		Short: "Show the parts of a generated code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, ts, suffix, err := kewtag.ParseUniqueCode(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "prefix:   %s\n", prefix)
			fmt.Fprintf(out, "created:  %s\n", ts.Format(time.RFC3339Nano))
			fmt.Fprintf(out, "suffix:   %s\n", suffix)
			return nil
		},
	}
}

var errUnknownCodec = errors.New("unknown codec")

// codecByName resolves a payload codec from a short name. Empty selects JSON.
func codecByName(name string) (payload.Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return payload.JSON{}, nil
	case "msgpack":
		return payload.MsgPack{}, nil
	case "protobuf", "proto":
		return payload.Proto{}, nil
	default:
		return nil, fmt.Errorf("%w %q", errUnknownCodec, name)
	}
}
