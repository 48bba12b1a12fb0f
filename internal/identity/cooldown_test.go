package identity

import "testing"

func TestResendWaitSeconds(t *testing.T) {
	tests := []struct {
		attempt int
		base    int64
		want    int64
	}{
		{0, 32, 32},
		{1, 32, 32},
		{2, 32, 64},
		{3, 32, 128},
		{4, 32, 256},
		{10, 32, 16384},
	}

	for _, tt := range tests {
		got := ResendWaitSeconds(tt.attempt, tt.base)
		if got != tt.want {
			t.Errorf("ResendWaitSeconds(%d, %d) = %d, want %d", tt.attempt, tt.base, got, tt.want)
		}
	}
}

func TestEmailChangeWaitSeconds(t *testing.T) {
	tests := []struct {
		attempt int
		base    int64
		want    int64
	}{
		{0, 2, 2},
		{1, 2, 4},
		{2, 2, 8},
		{3, 2, 16},
		{10, 2, 2048},
	}

	for _, tt := range tests {
		got := EmailChangeWaitSeconds(tt.attempt, tt.base)
		if got != tt.want {
			t.Errorf("EmailChangeWaitSeconds(%d, %d) = %d, want %d", tt.attempt, tt.base, got, tt.want)
		}
	}
}

func TestCooldownMonotonicAndClamped(t *testing.T) {
	var prev int64
	for attempt := 0; attempt <= 100; attempt++ {
		got := ResendWaitSeconds(attempt, 32)
		if got < prev {
			t.Fatalf("ResendWaitSeconds decreased at attempt %d: %d < %d", attempt, got, prev)
		}
		if got <= 0 {
			t.Fatalf("ResendWaitSeconds(%d, 32) = %d, wraparound", attempt, got)
		}
		prev = got
	}

	// Past the clamp the wait plateaus instead of overflowing
	if ResendWaitSeconds(31, 32) != ResendWaitSeconds(1000, 32) {
		t.Errorf("expected clamped exponent to plateau")
	}
	if EmailChangeWaitSeconds(30, 2) != EmailChangeWaitSeconds(1000, 2) {
		t.Errorf("expected clamped exponent to plateau")
	}
}
