// Package barcode generates and validates the textual identifiers printed on
// catalog items.
//
// A code has the form PREFIX-IDENTIFIER-CHECKSUM. The identifier may contain
// hyphens itself (UUIDs do), so only the first and last segments have a fixed
// meaning. The checksum is the sum of the UTF-16 code units of
// "PREFIX-IDENTIFIER" modulo 97. It catches scanner misreads and typos; it is
// not an integrity guarantee.
package barcode

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode/utf16"
)

// DefaultPrefix is used when no prefix is supplied.
const DefaultPrefix = "LIB"

const modulus = 97

var (
	// ErrMalformed is returned when a code does not have the PREFIX-IDENTIFIER-NN shape.
	ErrMalformed = errors.New("malformed barcode")

	// ErrChecksumMismatch is returned when the trailing checksum does not match the body.
	ErrChecksumMismatch = errors.New("barcode checksum mismatch")
)

// Code is a parsed barcode.
type Code struct {
	Prefix     string
	Identifier string
	Checksum   int
}

// String renders the code with a zero-padded checksum.
func (c Code) String() string {
	return fmt.Sprintf("%s-%s-%02d", c.Prefix, c.Identifier, c.Checksum)
}

// Checksum returns the mod-97 sum of the UTF-16 code units of base.
func Checksum(base string) int {
	sum := 0
	for _, unit := range utf16.Encode([]rune(base)) {
		sum += int(unit)
	}
	return sum % modulus
}

// Generate derives a code for identifier using DefaultPrefix.
func Generate(identifier string) string {
	return GenerateWithPrefix(identifier, DefaultPrefix)
}

// GenerateWithPrefix derives a code for identifier. An empty prefix falls back
// to DefaultPrefix.
func GenerateWithPrefix(identifier, prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	base := prefix + "-" + identifier
	return fmt.Sprintf("%s-%02d", base, Checksum(base))
}

// Source supplies random integers in [0, n). *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultSource draws from the math/rand/v2 global generator.
var DefaultSource Source = globalSource{}

// GenerateRandom produces a code for a newly created item that has no
// identifier of its own yet: a random six digit number under DefaultPrefix.
// The result validates with Validate like any derived code.
func GenerateRandom(src Source) string {
	if src == nil {
		src = DefaultSource
	}
	n := 100000 + src.IntN(900000)
	return Generate(strconv.Itoa(n))
}

// Parse splits code into its parts and verifies the checksum.
func Parse(code string) (Code, error) {
	parts := strings.Split(code, "-")
	if len(parts) < 3 {
		return Code{}, fmt.Errorf("%w: want at least 3 segments, got %d", ErrMalformed, len(parts))
	}

	last := parts[len(parts)-1]
	if !isChecksumDigits(last) {
		return Code{}, fmt.Errorf("%w: checksum segment %q", ErrMalformed, last)
	}
	want, _ := strconv.Atoi(last)

	c := Code{
		Prefix:     parts[0],
		Identifier: strings.Join(parts[1:len(parts)-1], "-"),
		Checksum:   want,
	}
	if got := Checksum(c.Prefix + "-" + c.Identifier); got != want {
		return Code{}, fmt.Errorf("%w: computed %02d, code carries %02d", ErrChecksumMismatch, got, want)
	}
	return c, nil
}

// Validate reports whether code is well formed and carries a matching checksum.
func Validate(code string) bool {
	_, err := Parse(code)
	return err == nil
}

// isChecksumDigits matches ^\d{1,2}$ over ASCII digits only.
func isChecksumDigits(s string) bool {
	if len(s) < 1 || len(s) > 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
