package consensus

import (
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

// Propose carries a leader's proposed block for a given height/view.
type Propose struct {
	Height uint64
	View   uint64
	Block  *weave.Block
}

// Vote is a single validator's signed attestation to a block hash at a
// given phase, the building block of a weave.QC once 2f+1 accumulate.
type Vote struct {
	Height    uint64
	View      uint64
	Phase     weave.Phase
	BlockHash types.Hash
	Voter     types.Address
	Sig       types.Signature
}

// voteSigningBytes is the canonical byte sequence a vote's signature covers.
// Identical across every phase except for the phase byte, which is what
// prevents a prepare vote from being replayed as a commit vote. Shared
// with weave.VerifyQC so a QC built from these votes can be independently
// re-verified later without the consensus package in scope.
func voteSigningBytes(height, view uint64, phase weave.Phase, blockHash types.Hash) []byte {
	return weave.VoteSigningBytes(height, view, phase, blockHash)
}

// ViewChange is broadcast by a replica that timed out waiting on the leader
// for the current view; it carries the highest QC the replica has observed
// so the new leader can safely extend the chain.
type ViewChange struct {
	Height    uint64
	NewView   uint64
	HighestQC *weave.QC
	Voter     types.Address
	Sig       types.Signature
}

func viewChangeSigningBytes(height, newView uint64, highestQC *weave.QC) []byte {
	e := types.NewEncoder()
	e.WriteUint64(height)
	e.WriteUint64(newView)
	if highestQC != nil {
		e.WriteUint64(highestQC.Height)
		e.WriteUint64(highestQC.View)
		e.WriteHash(highestQC.BlockHash)
		e.WriteByte(byte(highestQC.Phase))
	}
	return e.Bytes()
}
