package tokens

import "testing"

func TestEstimate(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"hello world, how are you?", 7},
		{"你好", 2},
	}
	for _, tt := range tests {
		if got := Estimate(tt.in); got != tt.want {
			t.Errorf("Estimate(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEstimateAll(t *testing.T) {
	got := EstimateAll([]string{"abcd", "", "abcdefgh"})
	want := []int{1, 0, 2}
	if len(got) != len(want) {
		t.Fatalf("got %d estimates, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("estimate[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
