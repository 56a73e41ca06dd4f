package strata

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------
// Partial-value batch optimizer
// -----------------------------------------------------------------------------

// boundedRequest is a bounded-range read retaining its position in the
// original batch. Bounded requests for the same key are multiplexed into a
// single backend GetRanges call.
type boundedRequest struct {
	index int
	rng   BoundedRange
}

// otherRequest is a full, offset, or suffix read. These cannot be
// multiplexed and each needs its own backend Get call.
type otherRequest struct {
	index int
	key   string
	rng   ByteRange
}

// batchPlan is the partitioned form of a request batch, built before any
// I/O begins.
type batchPlan struct {
	// bounded groups all bounded requests by key, preserving first-seen
	// order of both keys and requests within a key.
	bounded map[string][]boundedRequest

	// boundedKeys records key insertion order for deterministic scheduling.
	boundedKeys []string

	// other holds the standalone requests.
	other []otherRequest
}

// planBatch partitions requests by range variant. An unrecognized variant
// fails the whole batch with ErrInvalidRange before any backend call.
func planBatch(requests []ReadRequest) (*batchPlan, error) {
	plan := &batchPlan{bounded: make(map[string][]boundedRequest)}

	for i, req := range requests {
		key, err := Normalize(req.Key)
		if err != nil {
			return nil, err
		}

		switch rng := req.Range.(type) {
		case BoundedRange:
			if _, seen := plan.bounded[key]; !seen {
				plan.boundedKeys = append(plan.boundedKeys, key)
			}
			plan.bounded[key] = append(plan.bounded[key], boundedRequest{index: i, rng: rng})
		case nil, FullRange, OffsetRange, SuffixRange:
			plan.other = append(plan.other, otherRequest{index: i, key: key, rng: rng})
		default:
			return nil, fmt.Errorf("unexpected byte range %T at request %d: %w", req.Range, i, ErrInvalidRange)
		}
	}

	return plan, nil
}

// GetPartialValues reads a batch of (key, range) requests, minimizing
// backend round trips. Bounded-range requests sharing a key are coalesced
// into one multiplexed GetRanges call; full, offset, and suffix requests
// each issue one independent Get. All calls run concurrently and are
// joined before reassembly.
//
// The result slice has exactly the length and order of the input: element
// i is the bytes for requests[i], or nil if that request's key does not
// exist. Missing keys never fail the batch.
//
// Error policy is fail-fast: the first failure that is not a not-found
// signal cancels the remaining in-flight sub-requests and fails the whole
// call.
func (s *Store) GetPartialValues(ctx context.Context, requests []ReadRequest) ([][]byte, error) {
	plan, err := planBatch(requests)
	if err != nil {
		return nil, err
	}

	// Each sub-request writes to a disjoint set of indices, so the result
	// slice needs no locking.
	results := make([][]byte, len(requests))

	grp, ctx := errgroup.WithContext(ctx)

	for _, key := range plan.boundedKeys {
		group := plan.bounded[key]
		grp.Go(func() error {
			ranges := make([]BoundedRange, len(group))
			for i, req := range group {
				ranges[i] = req.rng
			}

			buffers, err := s.backend.GetRanges(ctx, key, ranges)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return err
			}
			for i, req := range group {
				results[req.index] = buffers[i]
			}
			return nil
		})
	}

	for _, req := range plan.other {
		grp.Go(func() error {
			data, err := s.backend.Get(ctx, req.key, req.rng)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return err
			}
			results[req.index] = data
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
