package spindle_test

import (
	"testing"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/spindle"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

func TestWatchtowerDetectsDoubleKnot(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	threadID := thread.DeriveThreadID(pub)

	var operator types.Address
	operator[0] = 0x11
	w := spindle.New(operator, 1024)

	var peer types.Address
	peer[0] = 0x22

	a := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 1}
	a.Sign(priv)
	b := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 2}
	b.Sign(priv)

	if _, flagged := w.ObserveKnot(peer, a); flagged {
		t.Fatalf("first observation should never be flagged")
	}
	proof, flagged := w.ObserveKnot(peer, b)
	if !flagged {
		t.Fatalf("expected the second distinct knot at the same version to be flagged")
	}
	if proof.Kind != weave.FraudDoubleKnot {
		t.Fatalf("expected a double-knot proof, got %v", proof.Kind)
	}
	if proof.DoubleKnot.ThreadID != threadID {
		t.Fatalf("unexpected thread id on proof")
	}
}

func TestWatchtowerIgnoresIdenticalRedelivery(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	threadID := thread.DeriveThreadID(pub)
	var operator, peer types.Address
	w := spindle.New(operator, 1024)

	k := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 1}
	k.Sign(priv)

	if _, flagged := w.ObserveKnot(peer, k); flagged {
		t.Fatalf("first observation should never be flagged")
	}
	if _, flagged := w.ObserveKnot(peer, k); flagged {
		t.Fatalf("redelivering the identical knot must not be flagged")
	}
}

func TestWatchtowerDetectsStaleCommit(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	threadID := thread.DeriveThreadID(pub)
	var operator, peer types.Address
	w := spindle.New(operator, 1024)

	var prev types.Hash
	for v := uint64(1); v <= 5; v++ {
		k := &thread.Knot{ThreadID: threadID, Version: v, PrevHash: prev, Timestamp: types.Timestamp(v)}
		k.Sign(priv)
		if _, flagged := w.ObserveKnot(peer, k); flagged {
			t.Fatalf("unexpected flag building the honest chain")
		}
		prev = k.Hash()
	}

	stale := &thread.Header{ThreadID: threadID, Version: 3, StateHash: types.Hash{3}}
	stale.Sign(priv)

	proof, flagged := w.CheckCommitment(stale)
	if !flagged {
		t.Fatalf("expected a stale commitment at version 3 with versions up to 5 observed to be flagged")
	}
	if proof.Kind != weave.FraudStaleCommit {
		t.Fatalf("expected a stale-commit proof, got %v", proof.Kind)
	}
	if len(proof.StaleCommit.MissingKnots) != 2 {
		t.Fatalf("expected 2 missing knots (versions 4 and 5), got %d", len(proof.StaleCommit.MissingKnots))
	}
}

func TestWatchtowerAllowsFreshCommit(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	threadID := thread.DeriveThreadID(pub)
	var operator, peer types.Address
	w := spindle.New(operator, 1024)

	k := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 1}
	k.Sign(priv)
	w.ObserveKnot(peer, k)

	fresh := &thread.Header{ThreadID: threadID, Version: 1, StateHash: types.Hash{1}}
	fresh.Sign(priv)
	if _, flagged := w.CheckCommitment(fresh); flagged {
		t.Fatalf("committing the latest observed version must not be flagged as stale")
	}
}

func TestPeerLimiterBlocksFloodingPeer(t *testing.T) {
	limiter := spindle.NewPeerLimiter()
	var peer types.Address
	peer[0] = 0x99

	allowed := 0
	for i := 0; i < 1000; i++ {
		if limiter.Allow(peer) {
			allowed++
		}
	}
	if allowed >= 1000 {
		t.Fatalf("expected the burst limit to reject some of 1000 rapid-fire calls")
	}
	if allowed == 0 {
		t.Fatalf("expected the initial burst allowance to let some calls through")
	}
}
