package strata

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store exposes the storage contract over a backend.
//
// A Store holds a single backend handle and a read-only flag fixed at
// construction. It normalizes keys at the boundary, resolves backend
// not-found signals to absent buffers, and enforces the read-only and
// capability rules. One Store is constructed per backend connection and
// lives for the duration of the session.
type Store struct {
	backend  Backend
	readOnly bool
}

// NewStore creates a Store over the given backend. The backend must be one
// of the recognized backend kinds (the Backend interface is sealed); a nil
// handle is rejected.
func NewStore(backend Backend, readOnly bool) (*Store, error) {
	if backend == nil {
		return nil, errors.New("strata: backend is required")
	}
	return &Store{backend: backend, readOnly: readOnly}, nil
}

// ReadOnly reports whether the store rejects writes and deletes.
func (s *Store) ReadOnly() bool { return s.readOnly }

// SupportsWrites reports whether the backend implements writes.
func (s *Store) SupportsWrites() bool { return s.backend.Capabilities().Writes }

// SupportsDeletes reports whether the backend implements deletes.
func (s *Store) SupportsDeletes() bool { return s.backend.Capabilities().Deletes }

// SupportsPartialWrites reports whether the backend implements partial writes.
func (s *Store) SupportsPartialWrites() bool { return s.backend.Capabilities().PartialWrites }

// SupportsListing reports whether the backend implements listing.
func (s *Store) SupportsListing() bool { return s.backend.Capabilities().Listing }

// Get reads the selected range of the object at key. A nil rng reads the
// whole object. A missing key returns a nil buffer and no error; backend
// "not found" signals are never surfaced as errors. The returned buffer is
// owned by the caller.
func (s *Store) Get(ctx context.Context, key string, rng ByteRange) ([]byte, error) {
	normalized, err := Normalize(key)
	if err != nil {
		return nil, err
	}

	data, err := s.backend.Get(ctx, normalized, rng)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Exists reports whether the key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	normalized, err := Normalize(key)
	if err != nil {
		return false, err
	}
	return s.backend.Exists(ctx, normalized)
}

// Set writes value to key, overwriting unconditionally.
// Fails with ErrReadOnly on a read-only store.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	normalized, err := Normalize(key)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, normalized, value)
}

// SetIfNotExists writes value to key only if the key does not exist.
// An existing key leaves the stored value unchanged and raises no error:
// this is a conditional create, not a conditional update.
func (s *Store) SetIfNotExists(ctx context.Context, key string, value []byte) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	normalized, err := Normalize(key)
	if err != nil {
		return err
	}

	err = s.backend.PutIfAbsent(ctx, normalized, value)
	if errors.Is(err, ErrPathExists) {
		return nil
	}
	return err
}

// Delete removes the key if it exists.
// Fails with ErrReadOnly on a read-only store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if !s.backend.Capabilities().Deletes {
		return ErrUnsupported
	}
	normalized, err := Normalize(key)
	if err != nil {
		return err
	}
	return s.backend.Delete(ctx, normalized)
}

// SetPartialValues writes byte ranges into existing objects. No backend in
// this module implements partial writes; it fails with ErrUnsupported
// unless SupportsPartialWrites reports true.
func (s *Store) SetPartialValues(ctx context.Context, writes []PartialWrite) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if !s.backend.Capabilities().PartialWrites {
		return ErrUnsupported
	}
	// No backend kind implements partial writes.
	return ErrUnsupported
}

// PartialWrite describes one (key, offset, bytes) partial write.
type PartialWrite struct {
	Key    string
	Offset int64
	Value  []byte
}

// List yields every key in the store, in backend order. The sequence is a
// single forward pass; it is not restartable once consumed.
func (s *Store) List(ctx context.Context) iter.Seq2[string, error] {
	return s.listPrefix(ctx, "")
}

// ListPrefix yields every key whose normalized form starts with prefix.
func (s *Store) ListPrefix(ctx context.Context, prefix string) iter.Seq2[string, error] {
	normalized, err := Normalize(prefix)
	if err != nil {
		return errSeq(err)
	}
	return s.listPrefix(ctx, normalized)
}

// ListDir yields only the immediate child segment under prefix: keys whose
// remainder after prefix contains no further '/'. Nested keys contribute
// nothing, so ListDir over {"a/b", "a/c/d", "a/e"} with prefix "a" yields
// "b" and "e".
func (s *Store) ListDir(ctx context.Context, prefix string) iter.Seq2[string, error] {
	normalized, err := Normalize(prefix)
	if err != nil {
		return errSeq(err)
	}
	if !s.backend.Capabilities().Listing {
		return errSeq(ErrUnsupported)
	}

	header := normalized
	if header != "" {
		header += "/"
	}

	return func(yield func(string, error) bool) {
		for key, err := range s.backend.List(ctx, normalized) {
			if err != nil {
				yield("", err)
				return
			}
			child := strings.TrimPrefix(key, header)
			if child == key && header != "" {
				continue
			}
			if strings.Contains(child, "/") {
				continue
			}
			if !yield(child, nil) {
				return
			}
		}
	}
}

func (s *Store) listPrefix(ctx context.Context, prefix string) iter.Seq2[string, error] {
	if !s.backend.Capabilities().Listing {
		return errSeq(ErrUnsupported)
	}
	return s.backend.List(ctx, prefix)
}

func (s *Store) checkWritable() error {
	if s.readOnly {
		return ErrReadOnly
	}
	if !s.backend.Capabilities().Writes {
		return ErrUnsupported
	}
	return nil
}

// errSeq returns a sequence that yields a single error.
func errSeq(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}

// String implements fmt.Stringer for diagnostics.
func (s *Store) String() string {
	return fmt.Sprintf("store(read_only=%t)", s.readOnly)
}
