package kewtag

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

var assetCodePattern = regexp.MustCompile(`^AST-[A-Z0-9]+-[A-Z0-9]{8}$`)

func TestGenerateUniqueCode(t *testing.T) {
	t.Run("format follows PREFIX-TIMESTAMP-SUFFIX", func(t *testing.T) {
		code := GenerateUniqueCode("AST")
		if !assetCodePattern.MatchString(code) {
			t.Errorf("code %q does not match %s", code, assetCodePattern)
		}
	})

	t.Run("consecutive calls differ", func(t *testing.T) {
		a := GenerateUniqueCode("AST")
		b := GenerateUniqueCode("AST")
		if a == b {
			t.Errorf("expected distinct codes, got %q twice", a)
		}
	})

	t.Run("empty prefix falls back to KEW", func(t *testing.T) {
		code := GenerateUniqueCode("")
		if !strings.HasPrefix(code, "KEW-") {
			t.Errorf("expected KEW prefix, got %q", code)
		}
	})

	t.Run("result is upper case", func(t *testing.T) {
		code := GenerateUniqueCode("ast")
		if code != strings.ToUpper(code) {
			t.Errorf("expected upper case, got %q", code)
		}
		if !assetCodePattern.MatchString(code) {
			t.Errorf("code %q does not match %s", code, assetCodePattern)
		}
	})

	t.Run("concurrent generation yields unique codes", func(t *testing.T) {
		const n = 200
		var (
			mu   sync.Mutex
			seen = make(map[string]bool, n)
			wg   sync.WaitGroup
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				code := GenerateUniqueCode("INV")
				mu.Lock()
				seen[code] = true
				mu.Unlock()
			}()
		}
		wg.Wait()
		if len(seen) != n {
			t.Errorf("expected %d unique codes, got %d", n, len(seen))
		}
	})
}

func TestGeneratorDeterministic(t *testing.T) {
	random := bytes.NewReader(bytes.Repeat([]byte{0xab}, 16))
	gen := NewGenerator(
		WithGeneratorClock(func() time.Time { return fixedTime }),
		WithGeneratorRandom(random),
	)

	code := gen.Generate("AST")
	ts := strings.ToUpper(strconv.FormatInt(fixedTime.UnixMilli(), 36))
	want := "AST-" + ts + "-ABABABAB"
	if code != want {
		t.Errorf("got %q, want %q", code, want)
	}

	// Exhausted reader falls back to the default source.
	next := gen.Generate("AST")
	if !assetCodePattern.MatchString(next) {
		t.Errorf("fallback code %q does not match %s", next, assetCodePattern)
	}
}

func TestParseUniqueCode(t *testing.T) {
	gen := NewGenerator(WithGeneratorClock(func() time.Time { return fixedTime }))

	t.Run("splits generated codes", func(t *testing.T) {
		code := gen.Generate("LOC")
		prefix, ts, suffix, err := ParseUniqueCode(code)
		if err != nil {
			t.Fatalf("ParseUniqueCode(%q) failed: %v", code, err)
		}
		if prefix != "LOC" {
			t.Errorf("expected prefix LOC, got %q", prefix)
		}
		if !ts.Equal(fixedTime) {
			t.Errorf("expected timestamp %v, got %v", fixedTime, ts)
		}
		if len(suffix) != 8 || !strings.HasSuffix(code, suffix) {
			t.Errorf("unexpected suffix %q for %q", suffix, code)
		}
	})

	t.Run("prefixes may contain dashes", func(t *testing.T) {
		code := gen.Generate("KEW-PA")
		prefix, _, _, err := ParseUniqueCode(code)
		if err != nil {
			t.Fatalf("ParseUniqueCode(%q) failed: %v", code, err)
		}
		if prefix != "KEW-PA" {
			t.Errorf("expected prefix KEW-PA, got %q", prefix)
		}
	})

	t.Run("hand-entered codes are not generator output", func(t *testing.T) {
		for _, code := range []string{"AST-2025-001", "", "AST", "ast-m5x2k9qz-3f9a1c0b", "AST--3F9A1C0B"} {
			if _, _, _, err := ParseUniqueCode(code); !errors.Is(err, ErrMalformedCode) {
				t.Errorf("ParseUniqueCode(%q): expected ErrMalformedCode, got %v", code, err)
			}
		}
	})
}
