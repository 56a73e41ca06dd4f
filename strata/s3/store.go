// Package s3 provides an S3-compatible backend for strata.
//
// This backend supports AWS S3, MinIO, LocalStack, Cloudflare R2,
// and other S3-compatible object stores.
//
// # Contract Compliance
//
//   - Get: dispatches each byte-range variant onto an HTTP Range header;
//     unconditional GetObject for full reads.
//   - GetRanges: one multiplexed call per key; overlapping and adjacent
//     ranges are merged into coalesced GETs before slicing results out.
//   - Put: whole-buffer unconditional PutObject.
//   - PutIfAbsent: PutObject with If-None-Match for an atomic create.
//   - Exists/Delete: standard ErrNotFound semantics; Delete is idempotent.
//   - List: full pagination support, yielded lazily.
//
// # Consistency
//
// AWS S3 provides strong read-after-write consistency (since Dec 2020).
// Other S3-compatible backends (MinIO, LocalStack, R2) may have different
// consistency guarantees — consult their documentation.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/strata/strata"
)

// API defines the subset of the S3 client interface used by the backend.
// This enables testing with mock implementations.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds configuration for the S3 backend.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all operations.
	// If set, all keys are prefixed with this value (with a trailing slash added if missing).
	Prefix string
}

// Backend implements strata.Backend using an S3-compatible object store.
type Backend struct {
	strata.BackendBase

	client API
	bucket string
	prefix string
}

// New creates a new S3 backend with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint.
// Use NewClient or github.com/aws/aws-sdk-go-v2/config to build one.
//
// Example:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	backend, err := s3backend.New(client, s3backend.Config{Bucket: "my-bucket"})
//	store, err := strata.NewStore(backend, false)
func New(client API, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Backend{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Capabilities returns the static capability flags for S3 backends.
func (b *Backend) Capabilities() strata.Capabilities {
	return strata.Capabilities{
		Writes:        true,
		Deletes:       true,
		PartialWrites: false,
		Listing:       true,
	}
}

// Get reads the selected range of the object at key.
// Missing keys fail with strata.ErrNotFound.
func (b *Backend) Get(ctx context.Context, key string, rng strata.ByteRange) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + key),
	}

	switch r := rng.(type) {
	case nil, strata.FullRange:
		// Unconditional get.
	case strata.BoundedRange:
		if r.End <= r.Start {
			return nil, fmt.Errorf("bounded range [%d, %d): %w", r.Start, r.End, strata.ErrInvalidRange)
		}
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", r.Start, r.End-1))
	case strata.OffsetRange:
		if r.Offset < 0 {
			return nil, fmt.Errorf("offset %d: %w", r.Offset, strata.ErrInvalidRange)
		}
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", r.Offset))
	case strata.SuffixRange:
		if r.Length <= 0 {
			return nil, fmt.Errorf("suffix length %d: %w", r.Length, strata.ErrInvalidRange)
		}
		input.Range = aws.String(fmt.Sprintf("bytes=-%d", r.Length))
	default:
		return nil, fmt.Errorf("unexpected byte range %T: %w", rng, strata.ErrInvalidRange)
	}

	out, err := b.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, strata.ErrNotFound
		}
		if isInvalidRange(err) {
			return nil, fmt.Errorf("range %v rejected by backend: %w", rng, strata.ErrInvalidRange)
		}
		return nil, &strata.StorageError{Backend: "s3", Op: "get", Key: key, Err: err}
	}
	defer closer(out.Body)()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &strata.StorageError{Backend: "s3", Op: "get", Key: key, Err: err}
	}
	return data, nil
}

// mergedRun is one coalesced GET covering several requested ranges.
type mergedRun struct {
	start int64
	end   int64
	data  []byte
}

// GetRanges reads several bounded ranges of one object in a single
// multiplexed call. Overlapping and adjacent ranges are merged into
// coalesced GETs, fetched concurrently, and the requested slices are cut
// back out of the merged buffers. Results are returned in input order.
func (b *Backend) GetRanges(ctx context.Context, key string, ranges []strata.BoundedRange) ([][]byte, error) {
	for _, r := range ranges {
		if r.Start < 0 || r.End <= r.Start {
			return nil, fmt.Errorf("bounded range [%d, %d): %w", r.Start, r.End, strata.ErrInvalidRange)
		}
	}

	runs := mergeRanges(ranges)

	grp, ctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		grp.Go(func() error {
			out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(b.bucket),
				Key:    aws.String(b.prefix + key),
				Range:  aws.String(fmt.Sprintf("bytes=%d-%d", run.start, run.end-1)),
			})
			if err != nil {
				if isNotFound(err) {
					return strata.ErrNotFound
				}
				if isInvalidRange(err) {
					return fmt.Errorf("range [%d, %d) rejected by backend: %w", run.start, run.end, strata.ErrInvalidRange)
				}
				return &strata.StorageError{Backend: "s3", Op: "get_ranges", Key: key, Err: err}
			}
			defer closer(out.Body)()

			data, err := io.ReadAll(out.Body)
			if err != nil {
				return &strata.StorageError{Backend: "s3", Op: "get_ranges", Key: key, Err: err}
			}
			run.data = data
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	out := make([][]byte, len(ranges))
	for i, r := range ranges {
		run := runFor(runs, r)
		lo := r.Start - run.start
		hi := r.End - run.start
		if hi > int64(len(run.data)) {
			// The object is shorter than the requested range.
			return nil, fmt.Errorf("range [%d, %d) beyond object end: %w", r.Start, r.End, strata.ErrInvalidRange)
		}
		buf := make([]byte, hi-lo)
		copy(buf, run.data[lo:hi])
		out[i] = buf
	}
	return out, nil
}

// mergeRanges coalesces overlapping and adjacent ranges into sorted runs.
func mergeRanges(ranges []strata.BoundedRange) []*mergedRun {
	sorted := make([]strata.BoundedRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var runs []*mergedRun
	for _, r := range sorted {
		if n := len(runs); n > 0 && r.Start <= runs[n-1].end {
			if r.End > runs[n-1].end {
				runs[n-1].end = r.End
			}
			continue
		}
		runs = append(runs, &mergedRun{start: r.Start, end: r.End})
	}
	return runs
}

// runFor finds the merged run covering the given range. Every input range
// is covered by construction.
func runFor(runs []*mergedRun, r strata.BoundedRange) *mergedRun {
	i := sort.Search(len(runs), func(i int) bool { return runs[i].end >= r.End })
	return runs[i]
}

// Exists reports whether the key exists.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &strata.StorageError{Backend: "s3", Op: "exists", Key: key, Err: err}
	}
	return true, nil
}

// Put writes value to key, overwriting unconditionally.
func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.prefix + key),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
	})
	if err != nil {
		return &strata.StorageError{Backend: "s3", Op: "put", Key: key, Err: err}
	}
	return nil
}

// PutIfAbsent writes value to key only if the key does not exist, using
// PutObject with If-None-Match for an atomic create. An existing key fails
// with strata.ErrPathExists.
func (b *Backend) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.prefix + key),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			// PreconditionFailed (412) - standard conditional failure
			// ConditionalRequestConflict (409) - S3 conflict during conditional request
			if code == "PreconditionFailed" || code == "412" ||
				code == "ConditionalRequestConflict" || code == "409" {
				return strata.ErrPathExists
			}
		}
		return &strata.StorageError{Backend: "s3", Op: "put_if_absent", Key: key, Err: err}
	}
	return nil
}

// Delete removes the key if it exists.
// Safe to call on missing keys (idempotent).
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + key),
	})
	if err != nil {
		// S3 DeleteObject is idempotent; it doesn't error on missing keys
		return &strata.StorageError{Backend: "s3", Op: "delete", Key: key, Err: err}
	}
	return nil
}

// List yields all keys starting with prefix, in backend order.
// Pagination is handled lazily; pages are fetched as the sequence advances.
func (b *Backend) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var continuationToken *string

		for {
			out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(b.bucket),
				Prefix:            aws.String(b.prefix + prefix),
				ContinuationToken: continuationToken,
			})
			if err != nil {
				yield("", &strata.StorageError{Backend: "s3", Op: "list", Err: err})
				return
			}

			for _, obj := range out.Contents {
				if obj.Key == nil {
					continue
				}
				// Strip the backend prefix to yield relative keys
				relKey := strings.TrimPrefix(*obj.Key, b.prefix)
				if !yield(relKey, nil) {
					return
				}
			}

			if !aws.ToBool(out.IsTruncated) {
				return
			}
			continuationToken = out.NextContinuationToken
		}
	}
}

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}

// isInvalidRange checks if an error is the backend's range rejection.
func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}

// closer returns a function that closes c, discarding the error.
func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// MockS3Client is a test double for API.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Call counters for test assertions
	PutObjectCalls  int
	GetObjectCalls  int
	HeadObjectCalls int

	// GetObjectErr, when set, is returned by every GetObject call.
	GetObjectErr error

	// PageSize caps the number of keys per ListObjectsV2 page.
	// Zero means no pagination.
	PageSize int
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string][]byte),
	}
}

// SetObject seeds an object directly, bypassing PutObject.
func (m *MockS3Client) SetObject(key string, data []byte) {
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
}

// ResetCounts resets call counters for test isolation.
func (m *MockS3Client) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutObjectCalls = 0
	m.GetObjectCalls = 0
	m.HeadObjectCalls = 0
}

// PutObject implements API.PutObject for testing.
func (m *MockS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutObjectCalls++

	// Handle If-None-Match: "*" (conditional create)
	if aws.ToString(params.IfNoneMatch) == "*" {
		if _, exists := m.objects[key]; exists {
			return nil, &smithyAPIError{code: "PreconditionFailed", message: "object already exists"}
		}
	}

	m.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

// GetObject implements API.GetObject for testing, including
// "bytes=start-end", "bytes=start-", and "bytes=-suffix" ranges.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.GetObjectCalls++
	m.mu.Unlock()

	if m.GetObjectErr != nil {
		return nil, m.GetObjectErr
	}

	m.mu.RLock()
	data, exists := m.objects[key]
	m.mu.RUnlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}

	if params.Range != nil {
		sliced, err := sliceRange(data, aws.ToString(params.Range))
		if err != nil {
			return nil, err
		}
		data = sliced
	}

	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

// sliceRange applies an HTTP Range header to data.
func sliceRange(data []byte, rangeStr string) ([]byte, error) {
	expr, ok := strings.CutPrefix(rangeStr, "bytes=")
	if !ok {
		return nil, &smithyAPIError{code: "InvalidRange"}
	}

	size := int64(len(data))
	startStr, endStr, _ := strings.Cut(expr, "-")

	if startStr == "" {
		// Suffix range: last N bytes.
		var suffix int64
		if _, err := fmt.Sscanf(endStr, "%d", &suffix); err != nil {
			return nil, &smithyAPIError{code: "InvalidRange"}
		}
		if suffix > size {
			suffix = size
		}
		return data[size-suffix:], nil
	}

	var start int64
	if _, err := fmt.Sscanf(startStr, "%d", &start); err != nil {
		return nil, &smithyAPIError{code: "InvalidRange"}
	}
	if start >= size {
		return nil, &smithyAPIError{code: "InvalidRange"}
	}

	end := size - 1
	if endStr != "" {
		if _, err := fmt.Sscanf(endStr, "%d", &end); err != nil {
			return nil, &smithyAPIError{code: "InvalidRange"}
		}
		if end >= size {
			end = size - 1
		}
	}

	return data[start : end+1], nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.HeadObjectCalls++
	_, exists := m.objects[key]
	m.mu.Unlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}

	return &s3.HeadObjectOutput{}, nil
}

// DeleteObject implements API.DeleteObject for testing.
func (m *MockS3Client) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()

	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 implements API.ListObjectsV2 for testing, including
// continuation-token pagination when PageSize is set.
func (m *MockS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)

	m.mu.RLock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(params.ContinuationToken); tok != "" {
		if _, err := fmt.Sscanf(tok, "%d", &start); err != nil {
			return nil, &smithyAPIError{code: "InvalidToken"}
		}
	}

	end := len(keys)
	truncated := false
	if m.PageSize > 0 && start+m.PageSize < end {
		end = start + m.PageSize
		truncated = true
	}

	var contents []types.Object
	for _, key := range keys[start:end] {
		contents = append(contents, types.Object{Key: aws.String(key)})
	}

	out := &s3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: aws.Bool(truncated),
	}
	if truncated {
		out.NextContinuationToken = aws.String(fmt.Sprintf("%d", end))
	}
	return out, nil
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}
