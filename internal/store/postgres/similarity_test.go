package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    string
		b    string
		want float64
	}{
		{"identical", "martin materials inc", "martin materials inc", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "martin", "", 0.0},
		{"disjoint", "abc", "xyz", 0.0},
		// 2 * len("abcd") / (6 + 5)
		{"partial overlap", "abcdef", "zabcd", 2 * 4.0 / 11},
		// "mart" + "n" common blocks: 2 * 5 / (6 + 6)
		{"transposed char", "martin", "martni", 2 * 5.0 / 12},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tc.want, similarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestSimilarityVendorNames(t *testing.T) {
	t.Parallel()

	// Close vendor-name variants should score well above unrelated names.
	close := similarity("carolina steel fabricators", "carolina steel fab")
	far := similarity("carolina steel fabricators", "mesa ridge partners")
	assert.Greater(t, close, 0.75)
	assert.Less(t, far, 0.5)
	assert.Greater(t, close, far)
}
