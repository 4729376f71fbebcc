package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	NormalizeL2(x)
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("got %v, want [0.6 0.8]", x)
	}

	var sum float64
	y := []float32{1, 2, 3, 4, 5}
	NormalizeL2(y)
	for _, v := range y {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("squared norm = %v, want 1", sum)
	}
}

func TestNormalizeL2_zero(t *testing.T) {
	x := []float32{0, 0, 0}
	NormalizeL2(x)
	for _, v := range x {
		if v != 0 {
			t.Fatalf("zero vector changed: %v", x)
		}
	}
}
