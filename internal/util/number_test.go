package util

import (
	"math"
	"testing"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"1234", 1234, true},
		{"$1,234.50", 1234.5, true},
		{"(12.00)", -12, true},
		{"($1,000)", -1000, true},
		{"-$3.25", -3.25, true},
		{"+7", 7, true},
		{" 12.5% ", 12.5, true},
		{"0", 0, true},
		{"", 0, false},
		{"--", 0, false},
		{"N/A", 0, false},
		{"NaN", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseNumber(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNumberOrZero(t *testing.T) {
	if NumberOrZero("$5") != 5 {
		t.Errorf("NumberOrZero($5) = %v", NumberOrZero("$5"))
	}
	if NumberOrZero("x") != 0 {
		t.Error("NumberOrZero should map garbage to 0")
	}
}
