package weave

import (
	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/loom"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
)

// FraudProofKind tags which of the three fraud proof variants a FraudProof
// carries.
type FraudProofKind byte

const (
	FraudDoubleKnot FraudProofKind = iota + 1
	FraudStaleCommit
	FraudInvalidLoomTransition
)

// FraudProof is a tagged sum of the three provable-misbehavior variants.
// Exactly one of the payload fields matching Kind is populated.
type FraudProof struct {
	Kind      FraudProofKind
	Submitter types.Address

	DoubleKnot      *DoubleKnotProof
	StaleCommit     *StaleCommitProof
	InvalidTransition *InvalidLoomTransitionProof
}

// DoubleKnotProof is evidence that two distinct knots were both signed by
// the same thread owner at the same version.
type DoubleKnotProof struct {
	ThreadID types.ThreadID
	KnotA    *thread.Knot
	KnotB    *thread.Knot
}

// StaleCommitProof is evidence that a committed header skipped knots the
// submitter had already observed.
type StaleCommitProof struct {
	ThreadID     types.ThreadID
	Commitment   *thread.Header
	MissingKnots []*thread.Knot
}

// InvalidLoomTransitionProof is evidence that a knot's claimed loom-call
// output disagrees with authoritative deterministic re-execution.
type InvalidLoomTransitionProof struct {
	LoomID         types.LoomID
	Knot           *thread.Knot
	Input          []byte
	Sender         types.Address
	GasLimit       uint64
	ClaimedOutput  []byte
	ClaimedStateHash types.Hash
	Reason         string
}

// Fingerprint deduplicates mempool entries carrying the same proof: two
// proofs over the same offending evidence hash identically regardless of
// which peer resubmits them.
func (p *FraudProof) Fingerprint() types.Hash {
	return crypto.Hash(p.Encode())
}

// VerifyFraudProof independently re-checks p and, if valid, mutates state:
// slashing the offender and, for a double-knot, marking the thread forked.
// It returns the offender's address and the amount slashed.
func (s *State) VerifyFraudProof(p *FraudProof, ownerPubkeyLookup func(types.ThreadID) (types.PublicKey, bool), registry *loom.Registry, snapshot *loom.SnapshotReader, gasSchedule loom.GasSchedule) (types.Address, types.Amount, error) {
	switch p.Kind {
	case FraudDoubleKnot:
		return s.verifyDoubleKnot(p, ownerPubkeyLookup)
	case FraudStaleCommit:
		return s.verifyStaleCommit(p)
	case FraudInvalidLoomTransition:
		return s.verifyInvalidLoomTransition(p, registry, snapshot, gasSchedule)
	default:
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
}

func (s *State) verifyDoubleKnot(p *FraudProof, ownerPubkeyLookup func(types.ThreadID) (types.PublicKey, bool)) (types.Address, types.Amount, error) {
	d := p.DoubleKnot
	if d == nil {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	if d.KnotA.ThreadID != d.ThreadID || d.KnotB.ThreadID != d.ThreadID {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	if d.KnotA.Version != d.KnotB.Version {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	if d.KnotA.Hash() == d.KnotB.Hash() {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	pub, ok := ownerPubkeyLookup(d.ThreadID)
	if !ok {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	if err := d.KnotA.Verify(pub); err != nil {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	if err := d.KnotB.Verify(pub); err != nil {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}

	offender := crypto.DeriveAddress(pub)
	s.MarkThreadForked(d.ThreadID)
	slashed, err := s.Slash(offender, p.Submitter, true)
	if err != nil {
		return types.Address{}, types.Amount{}, err
	}
	return offender, slashed, nil
}

func (s *State) verifyStaleCommit(p *FraudProof) (types.Address, types.Amount, error) {
	sc := p.StaleCommit
	if sc == nil || sc.Commitment == nil {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	committed, ok := s.ThreadCommitted(sc.ThreadID)
	if ok && sc.Commitment.Version < committed.Version {
		// The committer committed a version already superseded: stale by
		// definition.
	} else if len(sc.MissingKnots) == 0 {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	} else {
		prev := sc.Commitment
		for i, k := range sc.MissingKnots {
			if k.Version != prev.Version+uint64(i)+1 {
				return types.Address{}, types.Amount{}, ErrFraudProofRejected
			}
		}
	}

	pub, ok := s.ThreadOwnerPubKey(sc.ThreadID)
	if !ok {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	if err := sc.Commitment.Verify(pub); err != nil {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}

	offender := crypto.DeriveAddress(pub)
	slashed, err := s.Slash(offender, p.Submitter, false)
	if err != nil {
		return types.Address{}, types.Amount{}, err
	}
	return offender, slashed, nil
}

func (s *State) verifyInvalidLoomTransition(p *FraudProof, registry *loom.Registry, snapshot *loom.SnapshotReader, gasSchedule loom.GasSchedule) (types.Address, types.Amount, error) {
	it := p.InvalidTransition
	if it == nil {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	program, ok := registry.Program(it.LoomID)
	if !ok {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	l, ok := registry.Get(it.LoomID)
	if !ok {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}

	ctx := loom.ExecContext{
		LoomID: it.LoomID,
		Sender: it.Sender,
	}
	actualOutput, actualHash, err := loom.Reexecute(program, it.Input, ctx, it.GasLimit, gasSchedule, snapshot)
	if err != nil {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}
	if loom.MatchesClaim(it.ClaimedOutput, it.ClaimedStateHash, actualOutput, actualHash) {
		return types.Address{}, types.Amount{}, ErrFraudProofRejected
	}

	slashed, err := s.Slash(l.Operator, p.Submitter, false)
	if err != nil {
		return types.Address{}, types.Amount{}, err
	}
	return l.Operator, slashed, nil
}
