package kewtag

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCodePrefix is used when GenerateUniqueCode is called with an empty prefix.
const DefaultCodePrefix = "KEW"

// suffixLen is the number of hex characters taken from the random uuid.
const suffixLen = 8

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorClock sets the time source. Defaults to time.Now.
func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithGeneratorRandom sets the entropy source used for the random suffix.
// Defaults to crypto/rand via uuid.New.
func WithGeneratorRandom(r io.Reader) GeneratorOption {
	return func(g *Generator) {
		g.rand = r
	}
}

// Generator produces human-readable unique codes of the form
// PREFIX-TIMESTAMP-SUFFIX, e.g. "AST-M5X2K9QZ-3F9A1C0B".
//
// The timestamp is the Unix time in milliseconds in base 36; the suffix is
// the first 8 hex characters of a random (v4) UUID, giving 32 bits of entropy.
// Uniqueness is probabilistic; pair it with a reservation.Registry when
// collisions must be detected.
//
// A Generator is safe for concurrent use.
type Generator struct {
	now  func() time.Time
	mu   sync.Mutex // guards rand
	rand io.Reader
}

// NewGenerator creates a code generator.
//
// Example:
//
//	gen := kewtag.NewGenerator()
//	code := gen.Generate("AST") // "AST-M5X2K9QZ-3F9A1C0B"
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a fresh code. An empty prefix selects DefaultCodePrefix.
// The result is always upper case and Generate never fails.
func (g *Generator) Generate(prefix string) string {
	if prefix == "" {
		prefix = DefaultCodePrefix
	}
	ts := strconv.FormatInt(g.now().UnixMilli(), 36)
	return strings.ToUpper(prefix + "-" + ts + "-" + g.suffix())
}

func (g *Generator) suffix() string {
	var id uuid.UUID
	if g.rand == nil {
		id = uuid.New()
	} else {
		g.mu.Lock()
		var err error
		id, err = uuid.NewRandomFromReader(g.rand)
		g.mu.Unlock()
		if err != nil {
			// Exhausted reader; fall back to the default source.
			id = uuid.New()
		}
	}
	return strings.ReplaceAll(id.String(), "-", "")[:suffixLen]
}

var defaultGenerator = NewGenerator()

// GenerateUniqueCode returns a fresh code using the default generator.
//
// Example:
//
//	kewtag.GenerateUniqueCode("AST") // "AST-M5X2K9QZ-3F9A1C0B"
//	kewtag.GenerateUniqueCode("")    // "KEW-M5X2K9QZ-77E0D412"
func GenerateUniqueCode(prefix string) string {
	return defaultGenerator.Generate(prefix)
}

var uniqueCodePattern = regexp.MustCompile(`^(.+)-([A-Z0-9]+)-([A-Z0-9]{8})$`)

// ParseUniqueCode splits a generated code into its prefix, timestamp and
// random suffix. It fails with ErrMalformedCode for any string that does not
// follow the generator layout. Codes entered by hand (e.g. "AST-2025-001")
// are valid tag codes but are not generator output.
func ParseUniqueCode(code string) (prefix string, ts time.Time, suffix string, err error) {
	m := uniqueCodePattern.FindStringSubmatch(code)
	if m == nil {
		return "", time.Time{}, "", &PayloadError{Op: "parse", Field: "code", Err: ErrMalformedCode}
	}
	ms, perr := strconv.ParseInt(strings.ToLower(m[2]), 36, 64)
	if perr != nil {
		return "", time.Time{}, "", &PayloadError{Op: "parse", Field: "code", Err: ErrMalformedCode, Cause: perr}
	}
	return m[1], time.UnixMilli(ms).UTC(), m[3], nil
}
