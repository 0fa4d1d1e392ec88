package spindle

import (
	"github.com/nornlabs/norn/metrics"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

// CheckCommitment compares an applied commitment's version against the
// highest knot version this Watchtower has observed for the thread. If the
// watchtower has seen a later version and retains a contiguous knot chain
// from the committed version onward, it raises a stale-commit fraud proof
// (spec.md section 6, scenario 6): the owner committed an old header while
// newer knots already existed.
func (w *Watchtower) CheckCommitment(commitment *thread.Header) (*weave.FraudProof, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	highest, ok := w.highest[commitment.ThreadID]
	if !ok || highest <= commitment.Version {
		return nil, false
	}

	missing := w.contiguousChainLocked(commitment.ThreadID, commitment.Version+1, highest)
	if missing == nil {
		// We've seen a later version but not the whole chain since the
		// committed one; the proof must carry an unbroken chain or the
		// weave can't verify it, so wait for more knots to arrive.
		return nil, false
	}

	proof := &weave.FraudProof{
		Kind:      weave.FraudStaleCommit,
		Submitter: w.operator,
		StaleCommit: &weave.StaleCommitProof{
			ThreadID:     commitment.ThreadID,
			Commitment:   commitment,
			MissingKnots: missing,
		},
	}
	w.log.Warnw("stale commitment detected", "thread_id", commitment.ThreadID,
		"committed_version", commitment.Version, "highest_observed", highest)
	metrics.SpindleStaleCommitDetectedTotal.Inc()
	metrics.SpindleFraudSubmissionsTotal.Inc()
	return proof, true
}

// contiguousChainLocked returns the retained knots for thread from..to
// inclusive, in version order, or nil if any version in the range is
// missing from the watchtower's retained history.
func (w *Watchtower) contiguousChainLocked(threadID types.ThreadID, from, to uint64) []*thread.Knot {
	out := make([]*thread.Knot, 0, to-from+1)
	for v := from; v <= to; v++ {
		k, ok := w.knots.lru.Get(knotKey{thread: threadID, version: v})
		if !ok {
			return nil
		}
		out = append(out, k)
	}
	return out
}
