package thread

import (
	"bytes"
	"testing"
	"time"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/types"
)

func TestKnotEncodeDecodeRoundTrip(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	priv, _, _ := crypto.GenerateKeyPair()

	k := &Knot{
		ThreadID:  DeriveThreadID(pub),
		Version:   3,
		PrevHash:  types.Hash{1, 2, 3},
		Timestamp: types.Timestamp(time.Now().Unix()),
		Operations: []Operation{
			{Type: OpTransfer, Transfer: &TransferOp{To: types.Address{9}, TokenID: types.NativeTokenID, Amount: types.NewAmountFromUint64(500)}},
			{Type: OpLoomCall, LoomCall: &LoomCallOp{LoomID: types.Hash{7}, Input: []byte("increment"), GasLimit: 10000}},
			{Type: OpNameSet, NameSet: &NameSetOp{Name: "alice"}},
		},
	}
	k.Sign(priv)

	encoded := k.Encode()
	decoded, err := DecodeKnot(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ThreadID != k.ThreadID || decoded.Version != k.Version || decoded.PrevHash != k.PrevHash {
		t.Fatal("header fields did not round trip")
	}
	if len(decoded.Operations) != len(k.Operations) {
		t.Fatalf("operation count mismatch: got %d want %d", len(decoded.Operations), len(k.Operations))
	}
	if !bytes.Equal(decoded.Encode(), encoded) {
		t.Fatal("re-encoding decoded knot did not reproduce original bytes")
	}
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	h := &Header{
		ThreadID:  types.Hash{4, 5, 6},
		Version:   7,
		StateHash: types.Hash{8, 9},
		Timestamp: types.Timestamp(1234),
	}
	h.Sign(priv)

	encoded := h.Encode()
	decoded, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ThreadID != h.ThreadID || decoded.Version != h.Version || decoded.StateHash != h.StateHash {
		t.Fatal("header fields did not round trip")
	}
	if decoded.Signature != h.Signature {
		t.Fatal("signature did not round trip")
	}
}
