package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"512", 512},
		{"100B", 100},
		{"64K", 64 << 10},
		{"64kb", 64 << 10},
		{"1.5M", 3 << 19},
		{"4 GiB", 4 << 30},
		{"2T", 2 << 40},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSizeInvalid(t *testing.T) {
	for _, in := range []string{"", "K", "12X", "1.2.3M", "-5"} {
		_, err := ParseSize(in)
		assert.Error(t, err, in)
	}
}
