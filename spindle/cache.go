// Package spindle implements the watchtower: an off-chain service that
// observes gossiped knots and on-chain commitments, detects the two
// fraud conditions a thread owner alone cannot be trusted to self-report
// (double-knot equivocation and stale commitments), and assembles the
// fraud proofs the weave verifies.
package spindle

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
)

// knotKey identifies a single (thread, version) slot. Two distinct knots
// observed at the same slot is exactly the double-knot condition.
type knotKey struct {
	thread  types.ThreadID
	version uint64
}

// knotCache is a bounded LRU of the most recently observed knots, keyed by
// (thread_id, version). Size is bounded because a watchtower cannot retain
// every knot for every thread it has ever seen; spec.md section 6 only
// requires it to catch equivocation and reconstruct a stale-commit proof's
// missing-knot chain within its retention window, not forever.
type knotCache struct {
	lru *lru.Cache[knotKey, *thread.Knot]
}

func newKnotCache(size int) *knotCache {
	c, err := lru.New[knotKey, *thread.Knot](size)
	if err != nil {
		// Only returns an error for a non-positive size, which is a caller
		// bug, not a runtime condition; fall back to a minimal cache rather
		// than propagating a constructor error through every caller.
		c, _ = lru.New[knotKey, *thread.Knot](1)
	}
	return &knotCache{lru: c}
}
