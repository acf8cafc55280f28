package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstantTimeEqual(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal", "s3cret", "s3cret", true},
		{"both empty", "", "", true},
		{"last byte differs", "s3cret", "s3crex", false},
		{"first byte differs", "s3cret", "x3cret", false},
		{"length differs", "s3cret", "s3cret!", false},
		{"one empty", "", "s3cret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ConstantTimeEqual([]byte(tt.a), []byte(tt.b)))
			require.Equal(t, tt.want, ConstantTimeEqualString(tt.a, tt.b))
		})
	}
}
