package sandbox

import (
	"math"
	"testing"
)

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want any
	}{
		{"whole", 50, int64(50)},
		{"negative whole", -3, int64(-3)},
		{"fraction", 100.5, 100.5},
		{"min int64", math.MinInt64, int64(math.MinInt64)},
		{"two to the 63", math.Pow(2, 63), math.Pow(2, 63)},
		{"beyond int64", 1e19, 1e19},
		{"infinity", math.Inf(1), math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeNumber(tt.in); got != tt.want {
				t.Errorf("normalizeNumber(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}
