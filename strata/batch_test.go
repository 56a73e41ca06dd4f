package strata

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

// -----------------------------------------------------------------------------
// Partitioning
// -----------------------------------------------------------------------------

func TestPlanBatch_PartitionsByVariant(t *testing.T) {
	requests := []ReadRequest{
		{Key: "a", Range: BoundedRange{Start: 0, End: 4}},
		{Key: "b", Range: nil},
		{Key: "a", Range: BoundedRange{Start: 8, End: 12}},
		{Key: "a", Range: OffsetRange{Offset: 2}},
		{Key: "c", Range: SuffixRange{Length: 3}},
	}

	plan, err := planBatch(requests)
	if err != nil {
		t.Fatalf("planBatch failed: %v", err)
	}

	if len(plan.boundedKeys) != 1 || plan.boundedKeys[0] != "a" {
		t.Errorf("boundedKeys = %v, want [a]", plan.boundedKeys)
	}
	group := plan.bounded["a"]
	if len(group) != 2 || group[0].index != 0 || group[1].index != 2 {
		t.Errorf("bounded group = %+v", group)
	}
	if len(plan.other) != 3 {
		t.Errorf("other = %+v, want 3 requests", plan.other)
	}
}

func TestPlanBatch_UnknownVariantFailsBeforeIO(t *testing.T) {
	requests := []ReadRequest{
		{Key: "a", Range: bogusRange{}},
	}

	if _, err := planBatch(requests); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

// bogusRange is an out-of-set variant for failure testing.
type bogusRange struct{}

func (bogusRange) isByteRange() {}

// -----------------------------------------------------------------------------
// GetPartialValues
// -----------------------------------------------------------------------------

func TestGetPartialValues_MatchesSequentialGets(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t, false)
	mustSet(t, store, "a", []byte("aaaaaaaaaa"))
	mustSet(t, store, "b", []byte("0123456789"))
	mustSet(t, store, "nested/c", []byte("hello world"))

	requests := []ReadRequest{
		{Key: "b", Range: BoundedRange{Start: 2, End: 5}},
		{Key: "a", Range: nil},
		{Key: "b", Range: BoundedRange{Start: 0, End: 3}},
		{Key: "missing", Range: BoundedRange{Start: 0, End: 1}},
		{Key: "nested/c", Range: SuffixRange{Length: 5}},
		{Key: "b", Range: OffsetRange{Offset: 7}},
		{Key: "missing", Range: nil},
		{Key: "b", Range: BoundedRange{Start: 2, End: 5}}, // duplicate range
	}

	got, err := store.GetPartialValues(ctx, requests)
	if err != nil {
		t.Fatalf("GetPartialValues failed: %v", err)
	}
	if len(got) != len(requests) {
		t.Fatalf("result length %d, want %d", len(got), len(requests))
	}

	for i, req := range requests {
		want, err := store.Get(ctx, req.Key, req.Range)
		if err != nil {
			t.Fatalf("sequential Get(%q) failed: %v", req.Key, err)
		}
		if !bytes.Equal(got[i], want) {
			t.Errorf("result[%d] = %q, sequential Get = %q", i, got[i], want)
		}
	}
}

func TestGetPartialValues_MissingKeysAreAbsentNotErrors(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t, false)
	mustSet(t, store, "present", []byte("value"))

	requests := []ReadRequest{
		{Key: "absent", Range: BoundedRange{Start: 0, End: 2}},
		{Key: "present", Range: nil},
		{Key: "also/absent", Range: SuffixRange{Length: 1}},
	}

	got, err := store.GetPartialValues(ctx, requests)
	if err != nil {
		t.Fatalf("GetPartialValues failed: %v", err)
	}

	if got[0] != nil {
		t.Errorf("result[0] = %q, want nil for missing key", got[0])
	}
	if string(got[1]) != "value" {
		t.Errorf("result[1] = %q, want value", got[1])
	}
	if got[2] != nil {
		t.Errorf("result[2] = %q, want nil for missing key", got[2])
	}
}

func TestGetPartialValues_Empty(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t, false)

	got, err := store.GetPartialValues(ctx, nil)
	if err != nil {
		t.Fatalf("GetPartialValues failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestGetPartialValues_OneBackendCallPerBoundedKey(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: NewMemory()}
	store, err := NewStore(backend, false)
	if err != nil {
		t.Fatal(err)
	}
	mustSet(t, store, "a", []byte("aaaaaaaaaa"))
	mustSet(t, store, "b", []byte("bbbbbbbbbb"))

	requests := []ReadRequest{
		{Key: "a", Range: BoundedRange{Start: 0, End: 2}},
		{Key: "a", Range: BoundedRange{Start: 4, End: 6}},
		{Key: "a", Range: BoundedRange{Start: 8, End: 10}},
		{Key: "b", Range: BoundedRange{Start: 0, End: 2}},
		{Key: "a", Range: nil},
	}

	if _, err := store.GetPartialValues(ctx, requests); err != nil {
		t.Fatalf("GetPartialValues failed: %v", err)
	}

	if n := backend.getRangesCalls.Load(); n != 2 {
		t.Errorf("GetRanges calls = %d, want 2 (one per bounded key)", n)
	}
	if n := backend.getCalls.Load(); n != 1 {
		t.Errorf("Get calls = %d, want 1 (one per other request)", n)
	}
}

func TestGetPartialValues_FailFast(t *testing.T) {
	// Error policy is fail-fast: a backend failure that is not a
	// not-found signal fails the whole batch.
	ctx := context.Background()
	backend := &faultBackend{Backend: NewMemory(), failKey: "bad"}
	store, err := NewStore(backend, false)
	if err != nil {
		t.Fatal(err)
	}
	mustSet(t, store, "good", []byte("value"))
	mustSet(t, store, "bad", []byte("value"))

	requests := []ReadRequest{
		{Key: "good", Range: BoundedRange{Start: 0, End: 2}},
		{Key: "bad", Range: BoundedRange{Start: 0, End: 2}},
	}

	_, err = store.GetPartialValues(ctx, requests)
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestGetPartialValues_InvalidKeyFailsBeforeIO(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{Backend: NewMemory()}
	store, err := NewStore(backend, false)
	if err != nil {
		t.Fatal(err)
	}

	requests := []ReadRequest{
		{Key: "ok", Range: nil},
		{Key: "../escape", Range: nil},
	}

	if _, err := store.GetPartialValues(ctx, requests); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if n := backend.getCalls.Load(); n != 0 {
		t.Errorf("Get calls = %d, want 0 (no I/O before plan validation)", n)
	}
}

// -----------------------------------------------------------------------------
// Test backends
// -----------------------------------------------------------------------------

// countingBackend wraps a backend and counts read calls.
type countingBackend struct {
	Backend

	getCalls       atomic.Int64
	getRangesCalls atomic.Int64
}

func (c *countingBackend) Get(ctx context.Context, key string, rng ByteRange) ([]byte, error) {
	c.getCalls.Add(1)
	return c.Backend.Get(ctx, key, rng)
}

func (c *countingBackend) GetRanges(ctx context.Context, key string, ranges []BoundedRange) ([][]byte, error) {
	c.getRangesCalls.Add(1)
	return c.Backend.GetRanges(ctx, key, ranges)
}

// faultBackend fails reads of one key with a storage error.
type faultBackend struct {
	Backend

	failKey string
}

func (f *faultBackend) Get(ctx context.Context, key string, rng ByteRange) ([]byte, error) {
	if key == f.failKey {
		return nil, &StorageError{Backend: "fault", Op: "get", Key: key, Err: errors.New("injected")}
	}
	return f.Backend.Get(ctx, key, rng)
}

func (f *faultBackend) GetRanges(ctx context.Context, key string, ranges []BoundedRange) ([][]byte, error) {
	if key == f.failKey {
		return nil, &StorageError{Backend: "fault", Op: "get_ranges", Key: key, Err: errors.New("injected")}
	}
	return f.Backend.GetRanges(ctx, key, ranges)
}
