package consensus

import (
	"math"
	"testing"
)

func TestSumWeightsSymmetric(t *testing.T) {
	cases := [][2]float64{{10, 10}, {10, 20}, {0, 0}, {5.5, 5.5}, {100, 1}}
	for _, c := range cases {
		a, b := SumWeights(c[0], c[1]), SumWeights(c[1], c[0])
		if math.Abs(a-b) > 1e-12 {
			t.Errorf("SumWeights(%v,%v)=%v not symmetric with SumWeights(%v,%v)=%v", c[0], c[1], a, c[1], c[0], b)
		}
	}
}

func TestSumWeightsEqualInputs(t *testing.T) {
	// sum_weights(w, w) = w + log2(2) = w + 1.
	got := SumWeights(20, 20)
	want := 21.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("SumWeights(20,20) = %v, want %v", got, want)
	}
}

func TestSumWeightsDominantTerm(t *testing.T) {
	// A much larger weight should dominate; the correction term is small
	// but still positive at a difference of 29 (at a difference of 99, as
	// in SumWeights(100,1), it rounds away entirely in float64).
	got := SumWeights(30, 1)
	if got <= 30 {
		t.Errorf("SumWeights(30,1) = %v, want > 30", got)
	}
	if got-30 > 1 {
		t.Errorf("SumWeights(30,1) = %v, correction term implausibly large", got)
	}
}

func TestCompareWeights(t *testing.T) {
	const tol = 1e-10
	tests := []struct {
		name   string
		s      float64
		sStar  float64
		expect Ordering
	}{
		{"exactly tied", 10, 10, Tied},
		{"within tolerance above", 10, 10 + tol/2, Tied},
		{"within tolerance below", 10, 10 - tol/2, Tied},
		{"strictly less", 10, 10 + 2*tol, Less},
		{"strictly greater", 10 + 2*tol, 10, Greater},
		{"boundary less", 10 - tol, 10, Less},
		{"boundary greater", 10 + tol, 10, Greater},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareWeights(tt.s, tt.sStar, tol)
			if got != tt.expect {
				t.Errorf("CompareWeights(%v,%v,%v) = %v, want %v", tt.s, tt.sStar, tol, got, tt.expect)
			}
		})
	}
}
