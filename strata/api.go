// Package strata provides the storage and codec core for chunked
// N-dimensional array data.
//
// Strata focuses on the persistence contract: normalized keys, byte-range
// reads, a pluggable Store over interchangeable backends, and reversible
// chunk codecs. It does not implement the array metadata model or the
// high-level array API.
package strata

import (
	"context"
	"fmt"
	"iter"
)

// -----------------------------------------------------------------------------
// Capabilities
// -----------------------------------------------------------------------------

// Capabilities describes the operation classes a backend supports.
//
// The flags are static per backend kind and are queried by callers before
// attempting the corresponding operation class. An unsupported operation
// fails with ErrUnsupported, which is distinct from ErrReadOnly.
type Capabilities struct {
	// Writes reports whether Set and SetIfNotExists are available.
	Writes bool

	// Deletes reports whether Delete is available.
	Deletes bool

	// PartialWrites reports whether SetPartialValues is available.
	// No backend in this module implements partial writes.
	PartialWrites bool

	// Listing reports whether List, ListPrefix, and ListDir are available.
	Listing bool
}

// -----------------------------------------------------------------------------
// Read requests
// -----------------------------------------------------------------------------

// ReadRequest pairs a key with the byte range to read from it.
//
// A batch of requests is submitted to Store.GetPartialValues; each request's
// position in the batch is its identity, and the result slice preserves it.
type ReadRequest struct {
	// Key is the normalized key to read from.
	Key string

	// Range selects which bytes of the object to fetch.
	// A nil Range reads the entire object.
	Range ByteRange
}

// -----------------------------------------------------------------------------
// Backend interface
// -----------------------------------------------------------------------------

// Backend is the primitive operation surface a storage provider exposes.
//
// The interface is sealed: only types embedding BackendBase satisfy it, so
// the set of backend kinds is closed at compile time. Backends report
// missing keys as ErrNotFound and create conflicts as ErrPathExists; the
// Store layer translates both into its own contract.
type Backend interface {
	sealedBackend

	// Capabilities returns the backend's static capability flags.
	Capabilities() Capabilities

	// Get reads the selected range of the object at key.
	// A nil rng reads the whole object. Missing keys fail with ErrNotFound.
	Get(ctx context.Context, key string, rng ByteRange) ([]byte, error)

	// GetRanges reads several bounded ranges of one object in a single
	// multiplexed call. The backend merges overlapping or adjacent ranges
	// internally; results are returned in input order. A missing key fails
	// with ErrNotFound.
	GetRanges(ctx context.Context, key string, ranges []BoundedRange) ([][]byte, error)

	// Exists reports whether the key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Put writes value to key, overwriting unconditionally.
	Put(ctx context.Context, key string, value []byte) error

	// PutIfAbsent writes value to key only if the key does not exist.
	// An existing key fails with ErrPathExists.
	PutIfAbsent(ctx context.Context, key string, value []byte) error

	// Delete removes the key if it exists. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// List yields all keys starting with prefix, in backend order.
	// The sequence is a single forward pass.
	List(ctx context.Context, prefix string) iter.Seq2[string, error]
}

// BackendBase seals the Backend interface. Every backend kind embeds it;
// types outside the recognized set cannot satisfy Backend.
type BackendBase struct{}

func (BackendBase) isBackend() {}

type sealedBackend interface{ isBackend() }

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested key does not exist. Backends return
	// it internally; the Store contract resolves it to an absent buffer.
	ErrNotFound = errNotFound{}

	// ErrPathExists indicates a create-only write found an existing key.
	ErrPathExists = errPathExists{}

	// ErrInvalidPath indicates a malformed key: non-ASCII bytes, or a '.'
	// or '..' segment after normalization.
	ErrInvalidPath = errInvalidPath{}

	// ErrInvalidRange indicates an unresolvable or nonsensical byte range.
	ErrInvalidRange = errInvalidRange{}

	// ErrReadOnly indicates a write or delete attempted on a read-only store.
	ErrReadOnly = errReadOnly{}

	// ErrUnsupported indicates a capability the backend or codec does not
	// implement (partial writes, encoded-size computation).
	ErrUnsupported = errUnsupported{}

	// ErrConfig indicates a codec configuration outside its valid domain.
	ErrConfig = errConfig{}

	// ErrCodec indicates a decode failure on corrupt or mismatched data.
	ErrCodec = errCodec{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errPathExists struct{}

func (errPathExists) Error() string { return "path exists" }

type errInvalidPath struct{}

func (errInvalidPath) Error() string { return "invalid path" }

type errInvalidRange struct{}

func (errInvalidRange) Error() string { return "invalid byte range" }

type errReadOnly struct{}

func (errReadOnly) Error() string { return "store is read-only" }

type errUnsupported struct{}

func (errUnsupported) Error() string { return "operation not supported" }

type errConfig struct{}

func (errConfig) Error() string { return "invalid codec configuration" }

type errCodec struct{}

func (errCodec) Error() string { return "codec decode failed" }

// StorageError wraps a backend I/O failure that is not classified as
// not-found. It propagates unmodified to the caller.
type StorageError struct {
	// Backend names the backend kind ("s3", "fs", "memory").
	Backend string

	// Op is the failing operation ("get", "put", "list", ...).
	Op string

	// Key is the key involved, if any.
	Key string

	// Err is the underlying backend error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
