package plate

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededCodec() *Codec {
	return NewCodec(NewToken(rand.New(rand.NewPCG(7, 11))))
}

func TestTokenDigits(t *testing.T) {
	token := NewToken(rand.New(rand.NewPCG(1, 2)))

	digits, err := token.Digits(200)
	require.NoError(t, err)
	assert.Len(t, digits, 200)
	for _, r := range digits {
		assert.Contains(t, digitAlphabet, string(r))
	}
	assert.NotContains(t, digits, "0")
}

func TestTokenLetters(t *testing.T) {
	token := NewToken(rand.New(rand.NewPCG(3, 4)))

	letters, err := token.Letters(500)
	require.NoError(t, err)
	assert.Len(t, letters, 500)
	assert.NotContains(t, letters, "I")
	assert.NotContains(t, letters, "O")
	for _, r := range letters {
		assert.Contains(t, letterAlphabet, string(r))
	}
}

func TestTokenRejectsNonPositiveCount(t *testing.T) {
	token := NewToken(nil)

	for _, n := range []int{0, -3} {
		_, err := token.Digits(n)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = token.Letters(n)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestSynthesizeRoundTrip(t *testing.T) {
	codec := seededCodec()

	for _, country := range Countries() {
		for i := 0; i < 25; i++ {
			plate, err := codec.Synthesize(country)
			require.NoError(t, err)
			assert.Len(t, plate, len(country.Template()), "plate %q for %s", plate, country)

			got, err := codec.CountryOf(plate)
			require.NoError(t, err, "plate %q for %s", plate, country)
			assert.Equal(t, country, got, "plate %q", plate)
		}
	}
}

func TestSynthesizeNeverEmitsZero(t *testing.T) {
	codec := seededCodec()

	for i := 0; i < 100; i++ {
		plate, err := codec.Synthesize(Portugal)
		require.NoError(t, err)
		assert.NotContains(t, plate, "0")
	}
}

func TestSynthesizeFinlandFollowsValidationLayout(t *testing.T) {
	plate, err := seededCodec().Synthesize(Finland)
	require.NoError(t, err)

	assert.Regexp(t, `^[1-9]{4}-[A-HJ-NP-Z]{3}$`, plate)
}

func TestSynthesizeUnknownCountry(t *testing.T) {
	codec := seededCodec()

	_, err := codec.Synthesize(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = codec.Synthesize(Country(99))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCountryOfKnownPlates(t *testing.T) {
	codec := NewCodec(nil)

	cases := map[string]Country{
		"12 34 ABC":  Germany,
		"K 510 BV":   Austria,
		"1-ABC-003":  Belgium,
		"CA 7845 XC": Bulgaria,
		"4A2 3000":   CzechRepublic,
		"LJ 13-1JP":  Slovenia,
		"2008 HHR":   Spain,
		"307 RTB":    Estonia,
		"4180-MMG":   Finland,
		"AA-229-AA":  France,
		"CM 844CA":   Italy,
		"HV 105":     Luxembourg,
		"ACF 110":    Malta,
		"PP-XF-69":   Netherlands,
		"45-72-XQ":   Portugal,
		"AG 07PAS":   Romania,
	}

	for plate, want := range cases {
		got, err := codec.CountryOf(plate)
		require.NoError(t, err, plate)
		assert.Equal(t, want, got, plate)
	}
}

func TestCountryOfRejectsUnknownLayouts(t *testing.T) {
	codec := NewCodec(nil)

	for _, plate := range []string{"ZZ99ZZ", "", "aa-229-aa", "AI-229-AA", "MMG-418", "2008  HHR"} {
		_, err := codec.CountryOf(plate)
		assert.ErrorIs(t, err, ErrInvalidFormat, "plate %q", plate)
	}
}

func TestParseCountry(t *testing.T) {
	for _, name := range []string{"Czech Republic", "czech_republic", "CzechRepublic", " czech-republic "} {
		c, err := ParseCountry(name)
		require.NoError(t, err, name)
		assert.Equal(t, CzechRepublic, c)
	}

	_, err := ParseCountry("Atlantis")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCountryText(t *testing.T) {
	text, err := Netherlands.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Netherlands", string(text))

	var c Country
	require.NoError(t, c.UnmarshalText([]byte("spain")))
	assert.Equal(t, Spain, c)

	_, err = Country(0).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPatternForQuotesLiterals(t *testing.T) {
	pattern := patternFor("D.L")
	assert.True(t, strings.Contains(pattern, `\.`), pattern)
}
