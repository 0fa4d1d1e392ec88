package thread

import (
	"fmt"
	"sync"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/types"
)

// MaxParticipants bounds a loom's accepted-participant set. Nothing in this
// package enforces it; loom.Loom.AddParticipant applies the same limit.
const MaxParticipants = 1000

// Thread is a single owner's append-only knot chain plus the folded state
// tree it produces. Knots are retained locally in full; only headers
// travel to the weave.
type Thread struct {
	mu sync.RWMutex

	id          types.ThreadID
	ownerPubkey types.PublicKey

	knots       map[uint64]*Knot
	knotsAtVer  map[uint64][]*Knot // all distinct knots ever seen at a version, for fraud-proof evidence
	headVersion uint64
	hasHead     bool

	state *StateTree

	forked bool // set once a DoubleKnot fraud proof against this thread is accepted
}

// DeriveThreadID computes the thread identifier for an owner's public key.
func DeriveThreadID(ownerPubkey types.PublicKey) types.ThreadID {
	return crypto.Hash(ownerPubkey[:])
}

// New creates an empty thread for ownerPubkey.
func New(ownerPubkey types.PublicKey) *Thread {
	return &Thread{
		id:          DeriveThreadID(ownerPubkey),
		ownerPubkey: ownerPubkey,
		knots:       make(map[uint64]*Knot),
		knotsAtVer:  make(map[uint64][]*Knot),
		state:       NewStateTree(),
	}
}

func (t *Thread) ID() types.ThreadID { return t.id }

func (t *Thread) OwnerPubkey() types.PublicKey { return t.ownerPubkey }

func (t *Thread) IsForked() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.forked
}

// MarkForked records that this thread has an accepted DoubleKnot fraud
// proof against it. Per spec.md's conservative reading of the open
// question on in-flight commitments, a forked thread accepts no further
// commitments until the owner rotates keys (out of this package's scope).
func (t *Thread) MarkForked() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forked = true
}

// Head returns the current head knot, or nil for an empty thread.
func (t *Thread) Head() *Knot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.hasHead {
		return nil
	}
	return t.knots[t.headVersion]
}

// Get returns the locally retained knot at version, if any.
func (t *Thread) Get(version uint64) (*Knot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	k, ok := t.knots[version]
	return k, ok
}

// KnotsAtVersion returns every distinct knot this thread has ever seen at
// version — including ones superseded by the first-retained rule — for
// use building DoubleKnot fraud-proof evidence.
func (t *Thread) KnotsAtVersion(version uint64) []*Knot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Knot, len(t.knotsAtVer[version]))
	copy(out, t.knotsAtVer[version])
	return out
}

// loomActiveFunc is injected by the caller (the node wiring owns the loom
// registry) so this package never imports loom directly.
type loomActiveFunc = func(types.LoomID) bool

// Append validates and, if valid, applies knot to the thread. Per
// spec.md §4.B, within a single version there is exactly one legitimate
// knot: if a second knot arrives for an already-occupied version it is
// rejected from becoming head (ErrVersionOccupied) but is still retained
// under KnotsAtVersion so spindle/fraud-proof construction can use it.
func (t *Thread) Append(knot *Knot, loomActive loomActiveFunc) error {
	if knot.ThreadID != t.id {
		return fmt.Errorf("%w: knot thread_id does not match this thread", errs.ErrValidation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.knots[knot.Version]; ok {
		t.knotsAtVer[knot.Version] = appendIfDistinct(t.knotsAtVer[knot.Version], knot)
		if existing.Hash() == knot.Hash() {
			return nil // exact duplicate delivery, not an error
		}
		return fmt.Errorf("%w: version %d already has a retained knot", ErrVersionOccupied, knot.Version)
	}

	var head *Knot
	if t.hasHead {
		head = t.knots[t.headVersion]
	}
	if err := knot.ValidateAgainst(head, t.ownerPubkey, loomActive); err != nil {
		return err
	}

	snap := t.state.Snapshot()
	if err := t.applyOperations(knot); err != nil {
		_ = t.state.RevertToSnapshot(snap)
		return err
	}

	t.knots[knot.Version] = knot
	t.knotsAtVer[knot.Version] = appendIfDistinct(t.knotsAtVer[knot.Version], knot)
	t.headVersion = knot.Version
	t.hasHead = true
	return nil
}

func appendIfDistinct(list []*Knot, k *Knot) []*Knot {
	h := k.Hash()
	for _, existing := range list {
		if existing.Hash() == h {
			return list
		}
	}
	return append(list, k)
}

func (t *Thread) applyOperations(knot *Knot) error {
	for _, op := range knot.Operations {
		switch op.Type {
		case OpTransfer:
			if err := t.state.Debit(op.Transfer.TokenID, op.Transfer.Amount); err != nil {
				return err
			}
		case OpLoomCall:
			t.state.RecordLoomCall(op.LoomCall.LoomID)
		case OpNameSet:
			t.state.SetName(op.NameSet.Name, knot.Timestamp)
		case OpNameClear:
			t.state.ClearName(op.NameClear.Name)
		}
	}
	return nil
}

// StateHash returns the state tree root after folding knots 0..=version.
// Because the tree is mutated incrementally as knots are appended, this
// is only exact for version == current head version; callers disputing
// an older version must replay from genesis (see Replay).
func (t *Thread) StateHash(version uint64) (types.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.hasHead || version != t.headVersion {
		return t.Replay(version)
	}
	return t.state.Root(), nil
}

// Replay recomputes the state tree root from genesis through version by
// re-applying retained knots in order, without mutating the thread's live
// state. It errors if any knot in [0, version] is missing locally.
func (t *Thread) Replay(version uint64) (types.Hash, error) {
	tree := NewStateTree()
	for v := uint64(0); v <= version; v++ {
		knot, ok := t.knots[v]
		if !ok {
			return types.Hash{}, fmt.Errorf("%w: missing knot at version %d for replay", errs.ErrStorage, v)
		}
		for _, op := range knot.Operations {
			switch op.Type {
			case OpTransfer:
				if err := tree.Debit(op.Transfer.TokenID, op.Transfer.Amount); err != nil {
					return types.Hash{}, err
				}
			case OpLoomCall:
				tree.RecordLoomCall(op.LoomCall.LoomID)
			case OpNameSet:
				tree.SetName(op.NameSet.Name, knot.Timestamp)
			case OpNameClear:
				tree.ClearName(op.NameClear.Name)
			}
		}
	}
	return tree.Root(), nil
}

// PublishHeader builds and signs a ThreadHeader for version, which must be
// locally derivable (version <= head version and every knot 0..=version
// retained).
func (t *Thread) PublishHeader(version uint64, priv crypto.PrivateKey, at types.Timestamp) (*Header, error) {
	stateHash, err := t.StateHash(version)
	if err != nil {
		return nil, err
	}
	h := &Header{
		ThreadID:  t.id,
		Version:   version,
		StateHash: stateHash,
		Timestamp: at,
	}
	h.Sign(priv)
	return h, nil
}

// Sentinel error for a version that already has a different retained
// knot — not a per-field validation failure, but still categorized as
// Validation per spec.md §7.
var ErrVersionOccupied = fmt.Errorf("%w: version occupied by a distinct knot", errs.ErrValidation)
