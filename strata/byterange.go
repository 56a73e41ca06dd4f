package strata

import "fmt"

// -----------------------------------------------------------------------------
// Byte-range model
// -----------------------------------------------------------------------------

// ByteRange describes which part of a stored object to read.
//
// The variant set is closed: FullRange, BoundedRange, OffsetRange, and
// SuffixRange. A nil ByteRange is equivalent to FullRange wherever a range
// is accepted.
type ByteRange interface {
	isByteRange()
}

// FullRange selects the entire object.
type FullRange struct{}

// BoundedRange selects the half-open byte interval [Start, End).
// It is the only variant resolvable without knowing the object's size.
type BoundedRange struct {
	Start int64
	End   int64
}

// OffsetRange selects all bytes from Offset to the end of the object.
type OffsetRange struct {
	Offset int64
}

// SuffixRange selects the last Length bytes of the object.
type SuffixRange struct {
	Length int64
}

func (FullRange) isByteRange()    {}
func (BoundedRange) isByteRange() {}
func (OffsetRange) isByteRange()  {}
func (SuffixRange) isByteRange()  {}

// Resolve converts a range into an explicit (start, length) pair for an
// object of the given size. Callers must guarantee offsets and suffix
// lengths fit within the object; a negative result fails with
// ErrInvalidRange rather than silently truncating.
func Resolve(rng ByteRange, size int64) (start, length int64, err error) {
	switch r := rng.(type) {
	case nil, FullRange:
		start, length = 0, size
	case BoundedRange:
		if r.End <= r.Start {
			return 0, 0, fmt.Errorf("bounded range [%d, %d): %w", r.Start, r.End, ErrInvalidRange)
		}
		start, length = r.Start, r.End-r.Start
	case OffsetRange:
		start, length = r.Offset, size-r.Offset
	case SuffixRange:
		start, length = size-r.Length, r.Length
	default:
		return 0, 0, fmt.Errorf("unexpected byte range %T: %w", rng, ErrInvalidRange)
	}

	if start < 0 || length < 0 {
		return 0, 0, fmt.Errorf("range %v resolves to (%d, %d) for size %d: %w",
			rng, start, length, size, ErrInvalidRange)
	}
	return start, length, nil
}
