package spindle

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nornlabs/norn/log"
	"github.com/nornlabs/norn/metrics"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

// DefaultCacheSize bounds how many (thread, version) slots a Watchtower
// retains for equivocation detection.
const DefaultCacheSize = 1 << 16

// Watchtower observes knots gossiped over the network and commitments
// applied to the weave, and raises fraud proofs for equivocation
// (double-knot) and stale commitments (spec.md section 6).
type Watchtower struct {
	mu sync.Mutex

	operator types.Address
	knots    *knotCache
	highest  map[types.ThreadID]uint64

	limiter *PeerLimiter
	log     *zap.SugaredLogger
}

// New builds a Watchtower that raises fraud proofs under operator's
// address (the address credited with the submitter's bounty on a
// successful slash).
func New(operator types.Address, cacheSize int) *Watchtower {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Watchtower{
		operator: operator,
		knots:    newKnotCache(cacheSize),
		highest:  make(map[types.ThreadID]uint64),
		limiter:  NewPeerLimiter(),
		log:      log.For("spindle"),
	}
}

// ObserveKnot records a gossiped knot and reports a double-knot fraud
// proof if a distinct knot was already observed at the same
// (thread_id, version) slot.
func (w *Watchtower) ObserveKnot(peer types.Address, k *thread.Knot) (*weave.FraudProof, bool) {
	if !w.limiter.Allow(peer) {
		metrics.SpindleRateLimitedTotal.Inc()
		return nil, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	key := knotKey{thread: k.ThreadID, version: k.Version}

	if existing, ok := w.knots.lru.Get(key); ok {
		if existing.Hash() != k.Hash() {
			proof := &weave.FraudProof{
				Kind:      weave.FraudDoubleKnot,
				Submitter: w.operator,
				DoubleKnot: &weave.DoubleKnotProof{
					ThreadID: k.ThreadID,
					KnotA:    existing,
					KnotB:    k,
				},
			}
			w.log.Warnw("double-knot detected", "thread_id", k.ThreadID, "version", k.Version)
			metrics.SpindleDoubleKnotDetectedTotal.Inc()
			metrics.SpindleFraudSubmissionsTotal.Inc()
			return proof, true
		}
		return nil, false
	}

	w.knots.lru.Add(key, k)
	if k.Version > w.highest[k.ThreadID] {
		w.highest[k.ThreadID] = k.Version
	}
	metrics.SpindleCacheSize.Set(float64(w.knots.lru.Len()))
	return nil, false
}

// HighestObserved returns the highest knot version the Watchtower has seen
// for thread, and whether it has seen any.
func (w *Watchtower) HighestObserved(threadID types.ThreadID) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.highest[threadID]
	return v, ok
}
