package strata

import (
	"context"
	"io"
	"iter"
	"os"
	"path/filepath"
)

// -----------------------------------------------------------------------------
// Filesystem backend
// -----------------------------------------------------------------------------

// fsBackend implements Backend using the local filesystem.
type fsBackend struct {
	BackendBase

	root string
}

// NewFS creates a filesystem backend rooted at the given directory.
// The directory must exist.
//
// Consistency: Immediate read-after-write on local filesystems.
func NewFS(root string) (Backend, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrNotExist
	}
	return &fsBackend{root: root}, nil
}

func (f *fsBackend) Capabilities() Capabilities {
	return Capabilities{Writes: true, Deletes: true, PartialWrites: false, Listing: true}
}

func (f *fsBackend) Get(_ context.Context, key string, rng ByteRange) ([]byte, error) {
	file, err := os.Open(f.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Backend: "fs", Op: "get", Key: key, Err: err}
	}
	defer closer(file)()

	info, err := file.Stat()
	if err != nil {
		return nil, &StorageError{Backend: "fs", Op: "get", Key: key, Err: err}
	}
	if info.IsDir() {
		// A key shaped like a directory is treated as absent.
		return nil, ErrNotFound
	}

	start, length, err := Resolve(rng, info.Size())
	if err != nil {
		return nil, err
	}
	if start+length > info.Size() {
		return nil, ErrInvalidRange
	}

	data := make([]byte, length)
	if _, err := file.ReadAt(data, start); err != nil && err != io.EOF {
		return nil, &StorageError{Backend: "fs", Op: "get", Key: key, Err: err}
	}
	return data, nil
}

func (f *fsBackend) GetRanges(ctx context.Context, key string, ranges []BoundedRange) ([][]byte, error) {
	file, err := os.Open(f.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Backend: "fs", Op: "get_ranges", Key: key, Err: err}
	}
	defer closer(file)()

	info, err := file.Stat()
	if err != nil {
		return nil, &StorageError{Backend: "fs", Op: "get_ranges", Key: key, Err: err}
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	out := make([][]byte, len(ranges))
	for i, rng := range ranges {
		start, length, err := Resolve(rng, info.Size())
		if err != nil {
			return nil, err
		}
		if start+length > info.Size() {
			return nil, ErrInvalidRange
		}
		buf := make([]byte, length)
		if _, err := file.ReadAt(buf, start); err != nil && err != io.EOF {
			return nil, &StorageError{Backend: "fs", Op: "get_ranges", Key: key, Err: err}
		}
		out[i] = buf
	}
	return out, nil
}

func (f *fsBackend) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(f.fullPath(key))
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &StorageError{Backend: "fs", Op: "exists", Key: key, Err: err}
}

func (f *fsBackend) Put(_ context.Context, key string, value []byte) error {
	fullPath := f.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return &StorageError{Backend: "fs", Op: "put", Key: key, Err: err}
	}
	if err := os.WriteFile(fullPath, value, 0o644); err != nil {
		return &StorageError{Backend: "fs", Op: "put", Key: key, Err: err}
	}
	return nil
}

func (f *fsBackend) PutIfAbsent(_ context.Context, key string, value []byte) error {
	fullPath := f.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return &StorageError{Backend: "fs", Op: "put_if_absent", Key: key, Err: err}
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrPathExists
		}
		return &StorageError{Backend: "fs", Op: "put_if_absent", Key: key, Err: err}
	}
	defer closer(file)()

	if _, err := file.Write(value); err != nil {
		return &StorageError{Backend: "fs", Op: "put_if_absent", Key: key, Err: err}
	}
	return nil
}

func (f *fsBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(f.fullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return &StorageError{Backend: "fs", Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (f *fsBackend) List(_ context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		walkErr := filepath.Walk(f.root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}
			relPath, err := filepath.Rel(f.root, path)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(relPath)
			if prefix != "" && !hasKeyPrefix(key, prefix) {
				return nil
			}
			if !yield(key, nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if walkErr != nil {
			yield("", &StorageError{Backend: "fs", Op: "list", Err: walkErr})
		}
	}
}

// hasKeyPrefix reports whether key starts with prefix as a string prefix.
func hasKeyPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

// fullPath maps a normalized key into the backend root. Keys are already
// normalized by the Store boundary, so no traversal check is repeated here.
func (f *fsBackend) fullPath(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// closer returns a function that closes c, discarding the error.
// Use with defer for cleanup-only io.Closer values where the
// error is intentionally ignored (e.g., response bodies, read-only files).
func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
