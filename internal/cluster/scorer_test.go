package cluster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{
			name: "identical",
			a:    "Acme Corp",
			b:    "Acme Corp",
			want: 100,
		},
		{
			name: "word order does not matter",
			a:    "Acme Corp",
			b:    "Corp Acme",
			want: 100,
		},
		{
			name: "case does not matter",
			a:    "ACME CORP",
			b:    "acme corp",
			want: 100,
		},
		{
			name: "punctuation is ignored",
			a:    "Acme, Corp.",
			b:    "Acme Corp",
			want: 100,
		},
		{
			name: "one extra letter",
			a:    "Acme Corp",
			b:    "Acme Corps",
			want: 95,
		},
		{
			name: "unrelated names",
			a:    "Acme Corp",
			b:    "Globex",
			want: 13,
		},
		{
			name: "empty against non-empty",
			a:    "",
			b:    "Globex",
			want: 0,
		},
		{
			name: "punctuation only against name",
			a:    "...",
			b:    "Globex",
			want: 0,
		},
		{
			name: "both empty",
			a:    "",
			b:    "",
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScoreIsSymmetric(t *testing.T) {
	names := []string{
		"Acme Corp", "Corp Acme", "Acme Corps", "Globex", "Globex Corporation",
		"Initech", "Initech LLC", "", "Umbrella", "umbrella corp", "Stark Industries",
	}
	for _, a := range names {
		for _, b := range names {
			ab, err := Score(a, b)
			require.NoError(t, err)
			ba, err := Score(b, a)
			require.NoError(t, err)
			assert.Equalf(t, ab, ba, "Score(%q, %q) != Score(%q, %q)", a, b, b, a)
			assert.GreaterOrEqual(t, ab, 0)
			assert.LessOrEqual(t, ab, 100)
		}
	}
}

func TestScoreInvalidUTF8(t *testing.T) {
	_, err := Score("Acme\xff", "Acme")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScoringFailure))
}

func TestGateAdmits(t *testing.T) {
	tests := []struct {
		name string
		gate GatePolicy
		a, b string
		want bool
	}{
		{"substring contained", GateSubstring, "Acme", "Acme Corp", true},
		{"substring case folded", GateSubstring, "ACME", "acme corp", true},
		{"substring reordered tokens", GateSubstring, "Acme Corp", "Corp Acme", true},
		{"substring prefix of longer name", GateSubstring, "Acme Corp", "Acme Corps Ltd Inc", true},
		{"substring disjoint", GateSubstring, "Acme", "Globex", false},
		{"substring near miss", GateSubstring, "Acme Corp", "Acme Crop", false},
		{"all admits everything", GateAll, "Acme", "Globex", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.gate.Admits(tt.a, tt.b))
		})
	}
}

func TestParseGatePolicy(t *testing.T) {
	got, err := ParseGatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, GateSubstring, got)

	got, err = ParseGatePolicy(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, GateAll, got)

	_, err = ParseGatePolicy("fuzzy")
	assert.Error(t, err)
}

func TestLCSLength(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 0},
		{"abc", "abc", 3},
		{"abcde", "ace", 3},
		{"ace", "abcde", 3},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, lcsLength([]rune(tt.a), []rune(tt.b)), "lcsLength(%q, %q)", tt.a, tt.b)
	}
}

func TestRatioRoundsHalfToEven(t *testing.T) {
	// 2*1/16 and 2*5/16 land exactly on .5.
	assert.Equal(t, 12, ratio([]rune("abcdefgh"), []rune("hijklmno")))
	assert.Equal(t, 62, ratio([]rune("abcdefgh"), []rune("abcdexyz")))
	assert.Equal(t, 38, ratio([]rune("abcdefgh"), []rune("abcxyzuv")))
}
