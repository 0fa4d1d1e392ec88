package network_test

import (
	"testing"
	"time"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/network"
	"github.com/nornlabs/norn/spindle"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestPeerSendReceiveRoundTrip(t *testing.T) {
	mempool := weave.NewMempool(16)
	n := network.NewNode("node-a", "127.0.0.1:0", mempool, nil, nil, nil, nil)
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	peer, err := network.Connect("dialer", n.Addr(), nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer peer.Close()

	payload := []byte("hello payload")
	if err := peer.Send(network.Message{Type: network.MsgHello, Payload: payload}); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The listening side doesn't echo, but sending must not error and the
	// connection must stay open for a subsequent send.
	if err := peer.Send(network.Message{Type: network.MsgHello, Payload: payload}); err != nil {
		t.Fatalf("second send: %v", err)
	}
}

func TestNodeFlagsGossipedDoubleKnot(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	threadID := thread.DeriveThreadID(pub)

	mempool := weave.NewMempool(16)
	var operator types.Address
	operator[0] = 0x55
	watchtower := spindle.New(operator, 1024)

	n := network.NewNode("node-a", "127.0.0.1:0", mempool, watchtower, nil, nil, nil)
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	peer, err := network.Connect("dialer", n.Addr(), nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer peer.Close()

	a := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 1}
	a.Sign(priv)
	b := &thread.Knot{ThreadID: threadID, Version: 1, Timestamp: 2}
	b.Sign(priv)

	if err := peer.Send(network.Message{Type: network.MsgKnot, Payload: a.Encode()}); err != nil {
		t.Fatalf("send knot a: %v", err)
	}
	if err := peer.Send(network.Message{Type: network.MsgKnot, Payload: b.Encode()}); err != nil {
		t.Fatalf("send knot b: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return mempool.Len() == 1 })

	entries := mempool.Pending(10)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one mempool entry, got %d", len(entries))
	}
	if entries[0].Kind != weave.ItemFraudProof {
		t.Fatalf("expected a fraud proof entry, got kind %v", entries[0].Kind)
	}
	if entries[0].FraudProof.Kind != weave.FraudDoubleKnot {
		t.Fatalf("expected a double-knot fraud proof, got %v", entries[0].FraudProof.Kind)
	}
}

func TestNodeInsertsGossipedCommitment(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	threadID := thread.DeriveThreadID(pub)

	mempool := weave.NewMempool(16)
	n := network.NewNode("node-a", "127.0.0.1:0", mempool, nil, nil, nil, nil)
	if err := n.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	peer, err := network.Connect("dialer", n.Addr(), nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer peer.Close()

	header := &thread.Header{ThreadID: threadID, Version: 1, StateHash: types.Hash{7}}
	header.Sign(priv)
	commitment := &weave.Commitment{Header: header, OwnerPubKey: pub}

	if err := peer.Send(network.Message{Type: network.MsgCommitment, Payload: commitment.Encode()}); err != nil {
		t.Fatalf("send commitment: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return mempool.Len() == 1 })

	entries := mempool.Pending(10)
	if entries[0].Kind != weave.ItemCommitment {
		t.Fatalf("expected a commitment entry, got kind %v", entries[0].Kind)
	}
	if entries[0].Commitment.Header.ThreadID != threadID {
		t.Fatalf("unexpected thread id on relayed commitment")
	}
}
