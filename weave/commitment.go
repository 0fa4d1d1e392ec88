package weave

import (
	"encoding/binary"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
)

// FeePerCommitment is the fixed surcharge above base_fee paid per included
// commitment; the base_fee portion is burned and this surcharge goes to
// the block's proposer (spec.md section 4.D fee market, scenario 3).
var FeePerCommitment = types.NewAmountFromUint64(10)

// Commitment is the weave's on-chain wire form of a ThreadHeader. OwnerPubKey
// is required the first time a thread commits (the weave has no other way
// to learn a thread's owner, since ThreadID is a one-way hash of the
// pubkey); on later commitments it may be left zero and the owner already
// bound in state is used.
type Commitment struct {
	Header      *thread.Header
	OwnerPubKey types.PublicKey
}

// Fingerprint deduplicates mempool entries for the same (thread, version).
func (c *Commitment) Fingerprint() types.Hash {
	var versionBytes [8]byte
	binary.LittleEndian.PutUint64(versionBytes[:], c.Header.Version)
	return crypto.HashConcat(c.Header.ThreadID[:], versionBytes[:])
}

// ApplyCommitment runs the five-step commitment pipeline against s. Per
// spec.md section 4.D step 5, a failure here only drops the commitment from
// the block being applied; it never fails the block itself.
func (s *State) ApplyCommitment(c *Commitment, proposer types.Address) error {
	s.mu.RLock()
	existing, hasCommit := s.threads[c.Header.ThreadID]
	forked := hasCommit && existing.Forked
	knownPub, hasPub := s.threadOwner[c.Header.ThreadID]
	s.mu.RUnlock()

	if forked {
		return ErrThreadForked
	}

	// Step 1: thread must exist (bootstraps on first commitment) and the
	// commitment must strictly advance the committed version.
	if hasCommit && existing.Version >= c.Header.Version {
		return ErrVersionNotAdvancing
	}

	// Step 2: signature verification, against the bound pubkey if known,
	// else the pubkey carried in this commitment (which becomes bound).
	pub := knownPub
	if !hasPub {
		if c.OwnerPubKey.IsZero() {
			return ErrUnknownThread
		}
		pub = c.OwnerPubKey
	}
	if err := c.Header.Verify(pub); err != nil {
		return ErrBadCommitmentSig
	}

	// Step 3: fee payment. base_fee is burned (simply not credited
	// anywhere); FeePerCommitment goes to the proposer.
	owner := crypto.DeriveAddress(pub)
	fee, err := s.BaseFee().Add(FeePerCommitment)
	if err != nil {
		return err
	}
	if err := s.Debit(owner, fee); err != nil {
		return err
	}
	if err := s.Credit(proposer, FeePerCommitment); err != nil {
		return err
	}

	// Step 4: advance the thread's committed (version, state_hash).
	if !hasPub {
		s.bindThreadOwner(c.Header.ThreadID, pub)
	}
	s.advanceThreadCommitment(c.Header.ThreadID, c.Header.Version, c.Header.StateHash)

	return nil
}
