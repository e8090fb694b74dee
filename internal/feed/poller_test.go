package feed

import "testing"

func TestWeightFromDifficultyClampsToPositive(t *testing.T) {
	cases := []struct {
		difficulty float64
		wantAtLeast float64
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{1024, 11},
	}
	for _, c := range cases {
		got := weightFromDifficulty(c.difficulty)
		if got < c.wantAtLeast {
			t.Errorf("weightFromDifficulty(%v) = %v, want >= %v", c.difficulty, got, c.wantAtLeast)
		}
		if got <= 0 {
			t.Errorf("weightFromDifficulty(%v) = %v, want positive", c.difficulty, got)
		}
	}
}

func TestWeightFromSizeClampsToPositive(t *testing.T) {
	cases := []int32{0, -1, 1, 250, 100000}
	for _, vsize := range cases {
		got := weightFromSize(vsize)
		if got <= 0 {
			t.Errorf("weightFromSize(%v) = %v, want positive", vsize, got)
		}
	}
}

func TestWeightFromSizeMonotonic(t *testing.T) {
	small := weightFromSize(200)
	large := weightFromSize(20000)
	if large <= small {
		t.Errorf("weightFromSize(20000)=%v should exceed weightFromSize(200)=%v", large, small)
	}
}
