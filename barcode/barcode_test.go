package barcode_test

import (
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/barcode"
)

type fixedSource int

func (f fixedSource) IntN(int) int { return int(f) }

func Test_Generate_KnownValues(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		prefix     string
		want       string
	}{
		{name: "short_identifier", identifier: "1", prefix: "LIB", want: "LIB-1-18"},
		{name: "zero_padded_checksum", identifier: "&", prefix: "LIB", want: "LIB-&-07"},
		{name: "empty_prefix_falls_back", identifier: "1", prefix: "", want: "LIB-1-18"},
		{name: "hyphenated_identifier", identifier: "aaaa-bbbb-cccc", prefix: "LIB", want: "LIB-aaaa-bbbb-cccc-71"},
		{name: "latin1_rune", identifier: "é", prefix: "LIB", want: "LIB-é-08"},
		{name: "surrogate_pair_counts_both_units", identifier: "😀", prefix: "LIB", want: "LIB-😀-26"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, barcode.GenerateWithPrefix(tt.identifier, tt.prefix))
		})
	}
}

func Test_Generate_RoundTripsThroughValidate(t *testing.T) {
	prefixes := []string{"LIB", "REF", "X1", "MEDIA"}
	identifiers := []string{"1", "0042", "abc", "aaaa-bbbb-cccc", "-", "with space", uuid.NewString()}

	for _, p := range prefixes {
		for _, id := range identifiers {
			code := barcode.GenerateWithPrefix(id, p)
			assert.Truef(t, barcode.Validate(code), "code %q should validate", code)
		}
	}
}

func Test_Generate_UUIDIdentifiers(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := uuid.New()
		code := barcode.Generate(id.String())

		parsed, err := barcode.Parse(code)
		require.NoError(t, err)
		assert.Equal(t, barcode.DefaultPrefix, parsed.Prefix)
		assert.Equal(t, id.String(), parsed.Identifier)
		assert.Equal(t, code, parsed.String())
	}
}

func Test_GenerateRandom(t *testing.T) {
	assert.Equal(t, "LIB-100000-64", barcode.GenerateRandom(fixedSource(0)))
	assert.Equal(t, "LIB-999999-20", barcode.GenerateRandom(fixedSource(899999)))

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		code := barcode.GenerateRandom(r)
		parsed, err := barcode.Parse(code)
		require.NoError(t, err, code)
		assert.Len(t, parsed.Identifier, 6)
	}

	assert.True(t, barcode.Validate(barcode.GenerateRandom(nil)))
}

func Test_Validate_ChecksumMutationFails(t *testing.T) {
	codes := []string{
		barcode.Generate("1"),
		barcode.Generate("aaaa-bbbb-cccc"),
		barcode.GenerateRandom(fixedSource(23456)),
	}

	for _, code := range codes {
		suffixStart := len(code) - 2
		for pos := suffixStart; pos < len(code); pos++ {
			for d := byte('0'); d <= '9'; d++ {
				if code[pos] == d {
					continue
				}
				mutated := []byte(code)
				mutated[pos] = d
				assert.Falsef(t, barcode.Validate(string(mutated)), "mutated %q should not validate", mutated)
			}
		}
	}
}

func Test_Validate_LeadingZeroTolerant(t *testing.T) {
	assert.True(t, barcode.Validate("LIB-&-07"))
	assert.True(t, barcode.Validate("LIB-&-7"))
	assert.False(t, barcode.Validate("LIB-&-007"))
}

func Test_Parse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{name: "empty", code: "", wantErr: barcode.ErrMalformed},
		{name: "two_segments", code: "LIB-42", wantErr: barcode.ErrMalformed},
		{name: "no_hyphen", code: "LIB4218", wantErr: barcode.ErrMalformed},
		{name: "three_digit_checksum", code: "LIB-1-018", wantErr: barcode.ErrMalformed},
		{name: "non_numeric_checksum", code: "LIB-1-1a", wantErr: barcode.ErrMalformed},
		{name: "empty_checksum", code: "LIB-1-", wantErr: barcode.ErrMalformed},
		{name: "unicode_digit_checksum", code: "LIB-1-١٨", wantErr: barcode.ErrMalformed},
		{name: "wrong_checksum", code: "LIB-1-19", wantErr: barcode.ErrChecksumMismatch},
		{name: "identifier_typo", code: "LIB-2-18", wantErr: barcode.ErrChecksumMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := barcode.Parse(tt.code)
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, barcode.Validate(tt.code))
		})
	}
}

func Test_Checksum_Range(t *testing.T) {
	for _, s := range []string{"", "LIB-", "LIB-123456", "ZZZZZZZZZZZZZZZZZZZZZZZZZZ"} {
		c := barcode.Checksum(s)
		assert.GreaterOrEqual(t, c, 0)
		assert.Less(t, c, 97)
	}
}
