package safe

import (
	"math"
	"testing"
)

func TestFinite(t *testing.T) {
	tests := []struct {
		v    float64
		want bool
	}{
		{0, true},
		{1.5, true},
		{-1.5, true},
		{math.NaN(), false},
		{math.Inf(1), false},
		{math.Inf(-1), false},
	}

	for _, tt := range tests {
		if got := Finite(tt.v); got != tt.want {
			t.Errorf("Finite(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestValidPriceQty(t *testing.T) {
	if ValidPrice(0) {
		t.Error("zero price must be rejected")
	}
	if ValidPrice(-100) {
		t.Error("negative price must be rejected")
	}
	if ValidQty(math.NaN()) {
		t.Error("NaN quantity must be rejected")
	}
	if !ValidPrice(43250.5) || !ValidQty(0.001) {
		t.Error("normal price/qty must pass")
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v      float64
		places int
		want   float64
	}{
		{100.123456, 2, 100.12},
		{100.125, 2, 100.13},
		{-100.125, 2, -100.13},
		{100, 0, 100},
	}

	for _, tt := range tests {
		if got := Round(tt.v, tt.places); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.v, tt.places, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 1); got != 1 {
		t.Errorf("Clamp(5,0,1) = %v, want 1", got)
	}
	if got := Clamp(-5, 0, 1); got != 0 {
		t.Errorf("Clamp(-5,0,1) = %v, want 0", got)
	}
	if got := Clamp(0.5, 0, 1); got != 0.5 {
		t.Errorf("Clamp(0.5,0,1) = %v, want 0.5", got)
	}
}
