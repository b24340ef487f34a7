package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{name: "six chars untouched", raw: "ABC123", want: "ABC123", wantOK: true},
		{name: "seven chars untouched", raw: "ABC1234", want: "ABC1234", wantOK: true},
		{name: "I to 1", raw: "AIC123", want: "A1C123", wantOK: true},
		{name: "O to 0", raw: "OOB123", want: "00B123", wantOK: true},
		{name: "W to M", raw: "WXY1234", want: "MXY1234", wantOK: true},
		{name: "all three", raw: "IOW123", want: "10M123", wantOK: true},
		{name: "too short", raw: "AB123", wantOK: false},
		{name: "too long", raw: "ABCD1234", wantOK: false},
		{name: "empty", raw: "", wantOK: false},
		{name: "short with substitutable chars", raw: "IOW", wantOK: false},
		{name: "lowercase is not substituted", raw: "abci12", want: "abci12", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := NormalizePlate(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePlateProperties(t *testing.T) {
	t.Parallel()

	inputs := []string{"ABC123", "IIIIII", "OOOOOOO", "WWW999", "Z0Z1Z2Z", "MNO456", "WIO1234"}
	for _, raw := range inputs {
		got, ok := NormalizePlate(raw)
		require.True(t, ok, raw)
		assert.Len(t, got, len(raw), "length preserved for %q", raw)
		assert.False(t, strings.ContainsAny(got, "IOW"), "no confusable characters left in %q", got)

		again, ok := NormalizePlate(got)
		require.True(t, ok)
		assert.Equal(t, got, again, "normalization is a fixed point")
	}
}

func TestNormalizerLengthCountsCharacters(t *testing.T) {
	t.Parallel()

	n := NewNormalizer([]int{6}, DefaultSubstitutions)
	got, ok := n.Normalize("ÄBC12O")
	require.True(t, ok)
	assert.Equal(t, "ÄBC120", got)
}

func TestNormalizeRejectsInvalidUTF8(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"AB\xffC12", "AB\xfeC12", "\xc3ABC12"} {
		got, ok := NormalizePlate(raw)
		assert.False(t, ok, "%q", raw)
		assert.Empty(t, got)
	}
}

func TestParseSubstitutions(t *testing.T) {
	t.Parallel()

	t.Run("default table", func(t *testing.T) {
		got, err := ParseSubstitutions("I:1, O:0 ,W:M")
		require.NoError(t, err)
		assert.Equal(t, DefaultSubstitutions, got)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := ParseSubstitutions("  ")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("malformed pair", func(t *testing.T) {
		_, err := ParseSubstitutions("I1")
		assert.Error(t, err)
	})

	t.Run("duplicate source", func(t *testing.T) {
		_, err := ParseSubstitutions("I:1,I:L")
		assert.Error(t, err)
	})
}
