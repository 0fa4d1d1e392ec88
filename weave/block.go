package weave

import (
	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/types"
)

// Phase names one of the three consensus phases a quorum certificate
// attests to.
type Phase byte

const (
	PhasePrepare Phase = iota + 1
	PhasePreCommit
	PhaseCommit
)

func (p Phase) String() string {
	switch p {
	case PhasePrepare:
		return "prepare"
	case PhasePreCommit:
		return "pre-commit"
	case PhaseCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// QC is a quorum certificate: >= 2f+1 validator signatures over
// (height, view, phase, block_hash).
type QC struct {
	Height    uint64
	View      uint64
	BlockHash types.Hash
	Phase     Phase
	Sigs      map[types.Address]types.Signature
}

// VoteSigningBytes is the canonical byte sequence a validator's vote
// signature covers at (height, view, phase, block_hash). It is shared
// between the consensus engine, which produces vote signatures, and any
// later verifier (such as a syncing node checking a block's QuorumCert)
// that must recompute the same bytes independently.
func VoteSigningBytes(height, view uint64, phase Phase, blockHash types.Hash) []byte {
	e := types.NewEncoder()
	e.WriteUint64(height)
	e.WriteUint64(view)
	e.WriteByte(byte(phase))
	e.WriteHash(blockHash)
	return e.Bytes()
}

// VerifyQC checks that qc carries at least quorum signatures, each from a
// distinct address in validatorPubKeys, each a valid signature over the
// vote bytes the QC claims to attest. It does not check that the block
// the QC is attached to is the one qc.BlockHash names; callers compare
// qc.BlockHash against their own block.Hash() first.
func VerifyQC(qc *QC, validatorPubKeys map[types.Address]types.PublicKey, quorum int) error {
	if len(qc.Sigs) < quorum {
		return ErrQuorumNotReached
	}
	signing := VoteSigningBytes(qc.Height, qc.View, qc.Phase, qc.BlockHash)
	for addr, sig := range qc.Sigs {
		pub, ok := validatorPubKeys[addr]
		if !ok {
			return ErrUnknownQCSigner
		}
		if err := crypto.Verify(pub, signing, sig); err != nil {
			return ErrBadQCSignature
		}
	}
	return nil
}

// LoomRegistrationTx registers a new loom under the block's proposer.
type LoomRegistrationTx struct {
	LoomID   types.LoomID
	Operator types.Address
}

// NameOpKind distinguishes set from clear for an on-chain name operation.
type NameOpKind byte

const (
	NameOpSet NameOpKind = iota + 1
	NameOpClear
)

// NameOpTx binds or releases name -> address at the weave level (distinct
// from a thread's own local name-op knot operation: this is the weave's
// global registry, the thread's is per-thread state).
type NameOpTx struct {
	Kind NameOpKind
	Name string
	Addr types.Address
}

// Block is the weave's anchor unit: a signed header plus a body of
// commitments, fraud proofs, loom registrations, and name operations.
type Block struct {
	Height      uint64
	ParentHash  types.Hash
	StateRoot   types.Hash
	ThreadsRoot types.Hash
	Timestamp   types.Timestamp
	Proposer    types.Address

	Commitments  []*Commitment
	FraudProofs  []*FraudProof
	LoomRegs     []*LoomRegistrationTx
	NameOps      []*NameOpTx

	QuorumCert *QC

	Signature types.Signature
}

func (b *Block) headerBytes() []byte {
	e := types.NewEncoder()
	e.WriteUint64(b.Height)
	e.WriteHash(b.ParentHash)
	e.WriteHash(b.StateRoot)
	e.WriteHash(b.ThreadsRoot)
	e.WriteUint64(uint64(b.Timestamp))
	e.WriteAddress(b.Proposer)
	return e.Bytes()
}

// Hash returns the block header hash (excludes the signature and QC, which
// are both over the header, not the other way around).
func (b *Block) Hash() types.Hash {
	return crypto.Hash(b.headerBytes())
}

// Sign sets Signature from the proposer's key over the header hash.
func (b *Block) Sign(priv crypto.PrivateKey) {
	h := b.Hash()
	b.Signature = priv.Sign(h[:])
}

// Verify checks the proposer signature over the recomputed header hash.
func (b *Block) Verify(proposerPub types.PublicKey) error {
	h := b.Hash()
	return crypto.Verify(proposerPub, h[:], b.Signature)
}

// ComputeThreadsRoot computes the merkle root over the block's included
// commitments' (thread_id, version, state_hash) triples, in the order they
// appear in the block body.
func ComputeThreadsRoot(commitments []*Commitment) types.Hash {
	if len(commitments) == 0 {
		return crypto.Hash([]byte("empty-threads-root"))
	}
	leaves := make([][]byte, len(commitments))
	for i, c := range commitments {
		e := types.NewEncoder()
		e.WriteHash(c.Header.ThreadID)
		e.WriteUint64(c.Header.Version)
		e.WriteHash(c.Header.StateHash)
		leaves[i] = e.Bytes()
	}
	return crypto.MerkleRoot(leaves)
}

// NewBlock builds an unsigned block at height extending parentHash; the
// caller passes the new block's own height (the parent's height + 1).
func NewBlock(height uint64, parentHash types.Hash, proposer types.Address, at types.Timestamp) *Block {
	return &Block{
		Height:     height,
		ParentHash: parentHash,
		Timestamp:  at,
		Proposer:   proposer,
	}
}
