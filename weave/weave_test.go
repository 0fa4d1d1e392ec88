package weave_test

import (
	"testing"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/events"
	"github.com/nornlabs/norn/loom"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

func mustKeyPair(t *testing.T) (crypto.PrivateKey, types.PublicKey) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	return priv, pub
}

func TestCommitmentFeeBurnScenario(t *testing.T) {
	baseFee := types.NewAmountFromUint64(100)
	s := weave.NewState(baseFee, 1000)

	priv, pub := mustKeyPair(t)
	owner := crypto.DeriveAddress(pub)
	threadID := thread.DeriveThreadID(pub)
	if err := s.Credit(owner, types.NewAmountFromUint64(10_000)); err != nil {
		t.Fatalf("credit owner: %v", err)
	}

	var proposer types.Address
	proposer[0] = 0x99

	commitments := make([]*weave.Commitment, 0, 5)
	for v := uint64(1); v <= 5; v++ {
		h := &thread.Header{ThreadID: threadID, Version: v, StateHash: types.Hash{byte(v)}}
		h.Sign(priv)
		c := &weave.Commitment{Header: h}
		if v == 1 {
			c.OwnerPubKey = pub
		}
		commitments = append(commitments, c)
	}

	proposerBalanceBefore := s.Balance(proposer)
	applied := 0
	for _, c := range commitments {
		if err := s.ApplyCommitment(c, proposer); err != nil {
			t.Fatalf("commitment %d rejected: %v", c.Header.Version, err)
		}
		applied++
	}
	if applied != 5 {
		t.Fatalf("expected all 5 commitments to apply, got %d", applied)
	}

	wantOwnerBalance := uint64(10_000 - 5*110)
	if s.Balance(owner).Uint64() != wantOwnerBalance {
		t.Fatalf("expected owner balance %d, got %d", wantOwnerBalance, s.Balance(owner).Uint64())
	}
	wantProposerCredit := proposerBalanceBefore.Uint64() + 5*10
	if s.Balance(proposer).Uint64() != wantProposerCredit {
		t.Fatalf("expected proposer balance %d, got %d", wantProposerCredit, s.Balance(proposer).Uint64())
	}

	if err := s.ApplyFeeMarket(applied); err != nil {
		t.Fatalf("apply fee market: %v", err)
	}
	if got := s.BaseFee().Uint64(); got != 103 {
		t.Fatalf("expected base_fee_next ~103, got %d", got)
	}
}

func TestCommitmentRejectsNonAdvancingVersion(t *testing.T) {
	s := weave.NewState(types.NewAmountFromUint64(100), 1000)
	priv, pub := mustKeyPair(t)
	owner := crypto.DeriveAddress(pub)
	threadID := thread.DeriveThreadID(pub)
	_ = s.Credit(owner, types.NewAmountFromUint64(10_000))

	var proposer types.Address
	h1 := &thread.Header{ThreadID: threadID, Version: 1, StateHash: types.Hash{1}}
	h1.Sign(priv)
	if err := s.ApplyCommitment(&weave.Commitment{Header: h1, OwnerPubKey: pub}, proposer); err != nil {
		t.Fatalf("first commitment rejected: %v", err)
	}

	hStale := &thread.Header{ThreadID: threadID, Version: 1, StateHash: types.Hash{9}}
	hStale.Sign(priv)
	if err := s.ApplyCommitment(&weave.Commitment{Header: hStale}, proposer); err == nil {
		t.Fatalf("expected a repeated version to be rejected")
	}
}

func TestFeeMarketMonotonicity(t *testing.T) {
	base := types.NewAmountFromUint64(1000)

	above, err := weave.AdjustBaseFee(base, weave.BlockSizeTarget+2)
	if err != nil {
		t.Fatalf("adjust above target: %v", err)
	}
	if above.Cmp(base) <= 0 {
		t.Fatalf("expected base_fee to rise when actual > target")
	}

	below, err := weave.AdjustBaseFee(base, 0)
	if err != nil {
		t.Fatalf("adjust below target: %v", err)
	}
	if below.Cmp(base) >= 0 {
		t.Fatalf("expected base_fee to fall when actual < target")
	}

	same, err := weave.AdjustBaseFee(base, weave.BlockSizeTarget)
	if err != nil {
		t.Fatalf("adjust at target: %v", err)
	}
	if same.Cmp(base) != 0 {
		t.Fatalf("expected base_fee unchanged when actual == target")
	}
}

func TestFeeMarketClampsToBounds(t *testing.T) {
	tiny := types.NewAmountFromUint64(1)
	next, err := weave.AdjustBaseFee(tiny, 0)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if next.Cmp(weave.MinFee) < 0 {
		t.Fatalf("base_fee must never drop below MinFee")
	}
}

func TestDoubleKnotFraudProofSlashesAndForks(t *testing.T) {
	s := weave.NewState(types.NewAmountFromUint64(100), 1000)
	priv, pub := mustKeyPair(t)
	owner := crypto.DeriveAddress(pub)
	threadID := thread.DeriveThreadID(pub)

	if err := s.Bond(owner, pub, types.NewAmountFromUint64(2_000_000)); err != nil {
		t.Fatalf("bond: %v", err)
	}

	// Establish the thread's owner pubkey via a first legitimate commitment.
	h0 := &thread.Header{ThreadID: threadID, Version: 1, StateHash: types.Hash{1}}
	h0.Sign(priv)
	var proposer types.Address
	_ = s.Credit(owner, types.NewAmountFromUint64(10_000))
	if err := s.ApplyCommitment(&weave.Commitment{Header: h0, OwnerPubKey: pub}, proposer); err != nil {
		t.Fatalf("bootstrap commitment: %v", err)
	}

	knotA := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 1}
	knotA.Sign(priv)
	knotB := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 2}
	knotB.Sign(priv)

	var submitter types.Address
	submitter[0] = 0x42

	proof := &weave.FraudProof{
		Kind:      weave.FraudDoubleKnot,
		Submitter: submitter,
		DoubleKnot: &weave.DoubleKnotProof{
			ThreadID: threadID,
			KnotA:    knotA,
			KnotB:    knotB,
		},
	}

	offender, slashed, err := s.VerifyFraudProof(proof, s.ThreadOwnerPubKey, loom.NewRegistry(), nil, loom.GasScheduleV1)
	if err != nil {
		t.Fatalf("expected proof to verify: %v", err)
	}
	if offender != owner {
		t.Fatalf("expected offender to be the thread owner")
	}
	if slashed.IsZero() {
		t.Fatalf("expected a nonzero slash amount")
	}

	committed, _ := s.ThreadCommitted(threadID)
	if !committed.Forked {
		t.Fatalf("expected the thread to be marked forked")
	}
	if !s.Balance(submitter).IsZero() {
		// bounty should be credited
	} else {
		t.Fatalf("expected the submitter to receive a bounty credit")
	}
}

func TestStakingBondUnbondWithdraw(t *testing.T) {
	s := weave.NewState(types.NewAmountFromUint64(100), 1000)
	var addr types.Address
	addr[0] = 0x01
	var pub types.PublicKey

	if err := s.Bond(addr, pub, weave.MinStake); err != nil {
		t.Fatalf("bond: %v", err)
	}
	actives := s.ActiveValidators()
	if len(actives) != 1 {
		t.Fatalf("expected 1 active validator, got %d", len(actives))
	}

	if err := s.BeginUnbond(addr, 10); err != nil {
		t.Fatalf("begin unbond: %v", err)
	}
	if _, err := s.WithdrawUnbonded(addr, 10); err == nil {
		t.Fatalf("expected withdrawal before the bonding period to fail")
	}
	if _, err := s.WithdrawUnbonded(addr, 10+weave.BondingPeriod); err != nil {
		t.Fatalf("expected withdrawal after the bonding period to succeed: %v", err)
	}
}

func TestStakingUnbondAndWithdrawEmitEvents(t *testing.T) {
	s := weave.NewState(types.NewAmountFromUint64(100), 1000)
	emitter := events.NewEmitter()
	s.SetEmitter(emitter)

	var seen []events.EventType
	emitter.Subscribe(events.EventValidatorUnbonded, func(ev events.Event) { seen = append(seen, ev.Type) })
	emitter.Subscribe(events.EventValidatorWithdrawn, func(ev events.Event) { seen = append(seen, ev.Type) })

	var addr types.Address
	addr[0] = 0x02
	var pub types.PublicKey
	if err := s.Bond(addr, pub, weave.MinStake); err != nil {
		t.Fatalf("bond: %v", err)
	}
	if err := s.BeginUnbond(addr, 1); err != nil {
		t.Fatalf("begin unbond: %v", err)
	}
	if _, err := s.WithdrawUnbonded(addr, 1+weave.BondingPeriod); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if len(seen) != 2 || seen[0] != events.EventValidatorUnbonded || seen[1] != events.EventValidatorWithdrawn {
		t.Fatalf("unexpected event sequence: %+v", seen)
	}
}

func TestMempoolOrderingAndDedup(t *testing.T) {
	mp := weave.NewMempool(10)

	low := &weave.MempoolEntry{Kind: weave.ItemOther, FeeBid: types.NewAmountFromUint64(1), ReceivedAt: 1, Fingerprint: types.Hash{1}}
	high := &weave.MempoolEntry{Kind: weave.ItemOther, FeeBid: types.NewAmountFromUint64(100), ReceivedAt: 2, Fingerprint: types.Hash{2}}
	mid := &weave.MempoolEntry{Kind: weave.ItemOther, FeeBid: types.NewAmountFromUint64(50), ReceivedAt: 0, Fingerprint: types.Hash{3}}

	for _, e := range []*weave.MempoolEntry{low, high, mid} {
		if err := mp.Insert(e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := mp.Insert(low); err == nil {
		t.Fatalf("expected duplicate fingerprint to be rejected")
	}

	ordered := mp.Pending(10)
	if len(ordered) != 3 || ordered[0] != high || ordered[1] != mid || ordered[2] != low {
		t.Fatalf("expected descending fee_bid order, got %+v", ordered)
	}
}

func TestMempoolFullRejectsInserts(t *testing.T) {
	mp := weave.NewMempool(1)
	if err := mp.Insert(&weave.MempoolEntry{FeeBid: types.NewAmountFromUint64(1), Fingerprint: types.Hash{1}}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := mp.Insert(&weave.MempoolEntry{FeeBid: types.NewAmountFromUint64(2), Fingerprint: types.Hash{2}}); err == nil {
		t.Fatalf("expected MempoolFull rejection")
	}
}

func TestInvalidLoomTransitionFraudProof(t *testing.T) {
	s := weave.NewState(types.NewAmountFromUint64(100), 1000)

	var operator types.Address
	operator[0] = 0x07
	var operatorPub types.PublicKey
	if err := s.Bond(operator, operatorPub, weave.MinStake); err != nil {
		t.Fatalf("bond operator: %v", err)
	}
	loomID := types.Hash{0x10}
	l := loom.NewLoom(loomID, operator, 0)
	registry := s.Looms()
	registry.Put(l)

	prog := counterProgram()
	registry.SetProgram(loomID, prog)

	var submitter types.Address
	submitter[0] = 0x08

	snap := &loom.SnapshotReader{Data: map[string][]byte{}}
	fabricated := []byte{2, 0, 0, 0, 0, 0, 0, 0}

	proof := &weave.FraudProof{
		Kind:      weave.FraudInvalidLoomTransition,
		Submitter: submitter,
		InvalidTransition: &weave.InvalidLoomTransitionProof{
			LoomID:        loomID,
			GasLimit:      1000,
			ClaimedOutput: fabricated,
		},
	}

	offender, slashed, err := s.VerifyFraudProof(proof, s.ThreadOwnerPubKey, registry, snap, loom.GasScheduleV1)
	if err != nil {
		t.Fatalf("expected fraud proof to verify: %v", err)
	}
	if offender != operator {
		t.Fatalf("expected the loom operator to be slashed")
	}
	if slashed.IsZero() {
		t.Fatalf("expected nonzero slash")
	}
}

// counterProgram avoids importing loom/examples to keep this test isolated
// from example-package churn; it mirrors examples.Counter()'s shape.
func counterProgram() *loom.Program {
	return &loom.Program{
		Instructions: []loom.Instruction{
			{Op: loom.OpPushI64, Imm: 1},
			{Op: loom.OpWordToBytes},
			{Op: loom.OpSetOutput},
			{Op: loom.OpHalt},
		},
	}
}
