package strata

import (
	"errors"
	"testing"
)

func TestResolve_Variants(t *testing.T) {
	cases := []struct {
		name       string
		rng        ByteRange
		size       int64
		wantStart  int64
		wantLength int64
	}{
		{"full", FullRange{}, 10, 0, 10},
		{"nil is full", nil, 10, 0, 10},
		{"bounded", BoundedRange{Start: 2, End: 5}, 10, 2, 3},
		{"bounded ignores size", BoundedRange{Start: 2, End: 5}, 0, 2, 3},
		{"offset", OffsetRange{Offset: 1}, 5, 1, 4},
		{"offset at end", OffsetRange{Offset: 5}, 5, 5, 0},
		{"suffix", SuffixRange{Length: 2}, 5, 3, 2},
		{"suffix whole", SuffixRange{Length: 5}, 5, 0, 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, length, err := Resolve(tc.rng, tc.size)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if start != tc.wantStart || length != tc.wantLength {
				t.Errorf("Resolve = (%d, %d), want (%d, %d)", start, length, tc.wantStart, tc.wantLength)
			}
		})
	}
}

func TestResolve_FailsLoudly(t *testing.T) {
	cases := []struct {
		name string
		rng  ByteRange
		size int64
	}{
		{"offset beyond end", OffsetRange{Offset: 6}, 5},
		{"suffix longer than object", SuffixRange{Length: 6}, 5},
		{"negative bounded start", BoundedRange{Start: -1, End: 3}, 5},
		{"empty bounded", BoundedRange{Start: 3, End: 3}, 5},
		{"inverted bounded", BoundedRange{Start: 5, End: 3}, 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Resolve(tc.rng, tc.size); !errors.Is(err, ErrInvalidRange) {
				t.Errorf("expected ErrInvalidRange, got %v", err)
			}
		})
	}
}
