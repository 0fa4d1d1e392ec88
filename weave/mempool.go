package weave

import (
	"container/heap"
	"sync"

	"github.com/google/uuid"

	"github.com/nornlabs/norn/metrics"
	"github.com/nornlabs/norn/types"
)

// ItemKind distinguishes the three things a block body can carry besides
// its header.
type ItemKind byte

const (
	ItemCommitment ItemKind = iota + 1
	ItemFraudProof
	ItemOther
)

// MempoolEntry is one pending item awaiting inclusion in a block.
type MempoolEntry struct {
	Kind        ItemKind
	Commitment  *Commitment
	FraudProof  *FraudProof
	Other       []byte // opaque placeholder payload, see OtherTx note below
	ReceivedAt  int64  // unix nanos; injected by the caller, never read from wall clock here
	FeeBid      types.Amount
	Fingerprint types.Hash
}

// NewOtherFingerprint mints a fingerprint for an OtherTx placeholder that
// has no natural content hash of its own, per spec.md's mempool-entry
// design (commitments and fraud proofs dedupe by their own content hash).
func NewOtherFingerprint() types.Hash {
	id := uuid.New()
	var h types.Hash
	copy(h[:], id[:])
	return h
}

// Mempool holds pending commitments, fraud proofs, and other transactions,
// ordered by descending fee_bid with ties broken by earliest received_at
// then fingerprint. It is a concurrent structure: any task may Insert;
// the proposer task reads via Pending, and entries leave only via Remove.
type Mempool struct {
	mu       sync.Mutex
	capacity int
	byFp     map[types.Hash]*MempoolEntry
	pq       entryHeap
}

func NewMempool(capacity int) *Mempool {
	return &Mempool{
		capacity: capacity,
		byFp:     make(map[types.Hash]*MempoolEntry),
	}
}

// Insert adds e, rejecting duplicates by fingerprint and rejecting once the
// mempool is at capacity.
func (m *Mempool) Insert(e *MempoolEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byFp[e.Fingerprint]; exists {
		return ErrDuplicateEntry
	}
	if len(m.byFp) >= m.capacity {
		return ErrMempoolFull
	}
	m.byFp[e.Fingerprint] = e
	heap.Push(&m.pq, e)
	metrics.MempoolSize.Set(float64(len(m.byFp)))
	return nil
}

// Pending returns up to limit entries in priority order without removing
// them, for the block proposer to assemble a block body.
func (m *Mempool) Pending(limit int) []*MempoolEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make(entryHeap, len(m.pq))
	copy(cp, m.pq)
	heap.Init(&cp)

	out := make([]*MempoolEntry, 0, limit)
	for len(out) < limit && cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(*MempoolEntry))
	}
	return out
}

// Remove drops entries by fingerprint once their block has been finalized.
func (m *Mempool) Remove(fingerprints []types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[types.Hash]bool, len(fingerprints))
	for _, fp := range fingerprints {
		drop[fp] = true
		delete(m.byFp, fp)
	}
	filtered := m.pq[:0]
	for _, e := range m.pq {
		if !drop[e.Fingerprint] {
			filtered = append(filtered, e)
		}
	}
	m.pq = filtered
	heap.Init(&m.pq)
	metrics.MempoolSize.Set(float64(len(m.byFp)))
}

func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byFp)
}

// entryHeap is a max-heap by (fee_bid desc, received_at asc, fingerprint asc).
type entryHeap []*MempoolEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if cmp := a.FeeBid.Cmp(b.FeeBid); cmp != 0 {
		return cmp > 0
	}
	if a.ReceivedAt != b.ReceivedAt {
		return a.ReceivedAt < b.ReceivedAt
	}
	return lessFingerprint(a.Fingerprint, b.Fingerprint)
}

func lessFingerprint(a, b types.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*MempoolEntry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
