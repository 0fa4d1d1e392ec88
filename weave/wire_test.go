package weave_test

import (
	"testing"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

func TestCommitmentEncodeDecodeRoundTrip(t *testing.T) {
	priv, pub := mustKeyPair(t)
	threadID := thread.DeriveThreadID(pub)
	header := &thread.Header{ThreadID: threadID, Version: 3, StateHash: types.Hash{9}}
	header.Sign(priv)
	c := &weave.Commitment{Header: header, OwnerPubKey: pub}

	decoded, err := weave.DecodeCommitment(c.Encode())
	if err != nil {
		t.Fatalf("decode commitment: %v", err)
	}
	if decoded.Header.ThreadID != threadID || decoded.Header.Version != 3 {
		t.Fatalf("decoded commitment header mismatch")
	}
	if decoded.OwnerPubKey != pub {
		t.Fatalf("decoded owner pubkey mismatch")
	}
}

func TestQCEncodeDecodeRoundTrip(t *testing.T) {
	_, pubA := mustKeyPair(t)
	_, pubB := mustKeyPair(t)
	addrA := crypto.DeriveAddress(pubA)
	addrB := crypto.DeriveAddress(pubB)

	qc := &weave.QC{
		Height:    5,
		View:      2,
		BlockHash: types.Hash{1, 2, 3},
		Phase:     weave.PhaseCommit,
		Sigs: map[types.Address]types.Signature{
			addrA: {0xAA},
			addrB: {0xBB},
		},
	}

	decoded, err := weave.DecodeQC(qc.Encode())
	if err != nil {
		t.Fatalf("decode qc: %v", err)
	}
	if decoded.Height != 5 || decoded.View != 2 || decoded.Phase != weave.PhaseCommit {
		t.Fatalf("decoded qc scalar fields mismatch")
	}
	if len(decoded.Sigs) != 2 || decoded.Sigs[addrA] != qc.Sigs[addrA] || decoded.Sigs[addrB] != qc.Sigs[addrB] {
		t.Fatalf("decoded qc signature set mismatch")
	}
}

func TestFraudProofEncodeDecodeRoundTripAllVariants(t *testing.T) {
	priv, pub := mustKeyPair(t)
	threadID := thread.DeriveThreadID(pub)
	var submitter types.Address
	submitter[0] = 0x42

	a := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 1}
	a.Sign(priv)
	b := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 2}
	b.Sign(priv)
	doubleKnot := &weave.FraudProof{
		Kind:      weave.FraudDoubleKnot,
		Submitter: submitter,
		DoubleKnot: &weave.DoubleKnotProof{
			ThreadID: threadID,
			KnotA:    a,
			KnotB:    b,
		},
	}
	decoded, err := weave.DecodeFraudProof(doubleKnot.Encode())
	if err != nil {
		t.Fatalf("decode double-knot proof: %v", err)
	}
	if decoded.Kind != weave.FraudDoubleKnot || decoded.DoubleKnot.ThreadID != threadID {
		t.Fatalf("decoded double-knot proof mismatch")
	}
	if decoded.DoubleKnot.KnotA.Hash() != a.Hash() || decoded.DoubleKnot.KnotB.Hash() != b.Hash() {
		t.Fatalf("decoded double-knot nested knots mismatch")
	}

	header := &thread.Header{ThreadID: threadID, Version: 3, StateHash: types.Hash{5}}
	header.Sign(priv)
	missing := []*thread.Knot{a, b}
	staleCommit := &weave.FraudProof{
		Kind:      weave.FraudStaleCommit,
		Submitter: submitter,
		StaleCommit: &weave.StaleCommitProof{
			ThreadID:     threadID,
			Commitment:   header,
			MissingKnots: missing,
		},
	}
	decoded, err = weave.DecodeFraudProof(staleCommit.Encode())
	if err != nil {
		t.Fatalf("decode stale-commit proof: %v", err)
	}
	if decoded.Kind != weave.FraudStaleCommit || len(decoded.StaleCommit.MissingKnots) != 2 {
		t.Fatalf("decoded stale-commit proof mismatch")
	}
	if decoded.StaleCommit.Commitment.Version != 3 {
		t.Fatalf("decoded stale-commit header mismatch")
	}
}

func TestBlockEncodeDecodeRoundTripWithQC(t *testing.T) {
	priv, pub := mustKeyPair(t)
	proposer := crypto.DeriveAddress(pub)
	threadID := thread.DeriveThreadID(pub)

	header := &thread.Header{ThreadID: threadID, Version: 1, StateHash: types.Hash{1}}
	header.Sign(priv)

	block := weave.NewBlock(1, types.Hash{}, proposer, types.Timestamp(10))
	block.Commitments = append(block.Commitments, &weave.Commitment{Header: header, OwnerPubKey: pub})
	block.ThreadsRoot = weave.ComputeThreadsRoot(block.Commitments)
	block.Sign(priv)
	block.QuorumCert = &weave.QC{
		Height:    1,
		View:      0,
		BlockHash: block.Hash(),
		Phase:     weave.PhaseCommit,
		Sigs:      map[types.Address]types.Signature{proposer: {0x01}},
	}

	decoded, err := weave.DecodeBlock(block.Encode())
	if err != nil {
		t.Fatalf("decode block: %v", err)
	}
	if decoded.Height != 1 || decoded.Proposer != proposer {
		t.Fatalf("decoded block header mismatch")
	}
	if len(decoded.Commitments) != 1 || decoded.Commitments[0].Header.ThreadID != threadID {
		t.Fatalf("decoded block commitments mismatch")
	}
	if decoded.QuorumCert == nil || decoded.QuorumCert.BlockHash != block.Hash() {
		t.Fatalf("decoded block QC mismatch")
	}
}

func TestVerifyQCRejectsBelowQuorum(t *testing.T) {
	_, pub := mustKeyPair(t)
	addr := crypto.DeriveAddress(pub)

	qc := &weave.QC{
		Height:    1,
		View:      0,
		BlockHash: types.Hash{1},
		Phase:     weave.PhaseCommit,
		Sigs:      map[types.Address]types.Signature{addr: {0x01}},
	}
	keys := map[types.Address]types.PublicKey{addr: pub}

	if err := weave.VerifyQC(qc, keys, 2); err == nil {
		t.Fatalf("expected a single signature to fail a quorum-of-2 check")
	}
}

func TestVerifyQCAcceptsValidSignatures(t *testing.T) {
	privA, pubA := mustKeyPair(t)
	privB, pubB := mustKeyPair(t)
	addrA := crypto.DeriveAddress(pubA)
	addrB := crypto.DeriveAddress(pubB)

	blockHash := types.Hash{7}
	signing := weave.VoteSigningBytes(1, 0, weave.PhaseCommit, blockHash)
	qc := &weave.QC{
		Height:    1,
		View:      0,
		BlockHash: blockHash,
		Phase:     weave.PhaseCommit,
		Sigs: map[types.Address]types.Signature{
			addrA: privA.Sign(signing),
			addrB: privB.Sign(signing),
		},
	}
	keys := map[types.Address]types.PublicKey{addrA: pubA, addrB: pubB}

	if err := weave.VerifyQC(qc, keys, 2); err != nil {
		t.Fatalf("expected valid quorum signatures to verify, got %v", err)
	}
}
