package loom_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/loom"
	"github.com/nornlabs/norn/loom/examples"
	"github.com/nornlabs/norn/types"
)

func testCtx(state loom.StateReader) loom.ExecContext {
	var sender types.Address
	sender[0] = 0xAA
	return loom.ExecContext{
		LoomID:         types.Hash{0x01},
		Sender:         sender,
		BlockHeight:    10,
		BlockTimestamp: 1000,
		State:          state,
	}
}

type mapState struct{ data map[string][]byte }

func (m mapState) Get(_ types.LoomID, key []byte) ([]byte, bool) {
	v, ok := m.data[string(key)]
	return v, ok
}

func applyDelta(data map[string][]byte, delta map[string]loom.StateDeltaEntry) {
	for k, e := range delta {
		if e.Deleted {
			delete(data, k)
		} else {
			data[k] = e.New
		}
	}
}

func TestCounterFirstCallGasBoundary(t *testing.T) {
	prog := examples.Counter()
	ctx := testCtx(mapState{data: map[string][]byte{}})

	ok := loom.Execute(prog, nil, ctx, 70, loom.GasScheduleV1)
	if !ok.Success {
		t.Fatalf("expected success at exact gas cost, got failure: %s", ok.Reason)
	}
	if ok.GasUsed != 70 {
		t.Fatalf("expected gas used 70, got %d", ok.GasUsed)
	}
	if binary.LittleEndian.Uint64(ok.Output) != 1 {
		t.Fatalf("expected output 1, got %d", binary.LittleEndian.Uint64(ok.Output))
	}

	fail := loom.Execute(prog, nil, ctx, 69, loom.GasScheduleV1)
	if fail.Success {
		t.Fatalf("expected failure one gas short of the boundary")
	}
}

func TestCounterSecondCallIncrements(t *testing.T) {
	prog := examples.Counter()
	data := map[string][]byte{}
	ctx := testCtx(mapState{data: data})

	first := loom.Execute(prog, nil, ctx, 1000, loom.GasScheduleV1)
	if !first.Success {
		t.Fatalf("first call failed: %s", first.Reason)
	}
	applyDelta(data, first.StateDelta)

	ctx = testCtx(mapState{data: data})
	second := loom.Execute(prog, nil, ctx, 1000, loom.GasScheduleV1)
	if !second.Success {
		t.Fatalf("second call failed: %s", second.Reason)
	}
	if binary.LittleEndian.Uint64(second.Output) != 2 {
		t.Fatalf("expected output 2 on second call, got %d", binary.LittleEndian.Uint64(second.Output))
	}
}

func TestQueryMatchesExecuteOutputAndHasNoDelta(t *testing.T) {
	prog := examples.Counter()
	ctx := testCtx(mapState{data: map[string][]byte{}})

	exec := loom.Execute(prog, nil, ctx, 1000, loom.GasScheduleV1)
	query := loom.Query(prog, nil, ctx, 1000, loom.GasScheduleV1)

	if string(exec.Output) != string(query.Output) {
		t.Fatalf("query output %v diverged from execute output %v", query.Output, exec.Output)
	}
	if query.StateDelta != nil {
		t.Fatalf("query must never return a committable state delta")
	}
}

func TestLoomParticipantLimitBoundary(t *testing.T) {
	l := loom.NewLoom(types.Hash{0x02}, types.Address{0x03}, 0)
	for i := 0; i < loom.MaxParticipants; i++ {
		var addr types.Address
		binary.BigEndian.PutUint32(addr[:4], uint32(i))
		if err := l.AddParticipant(addr); err != nil {
			t.Fatalf("participant %d: unexpected error: %v", i, err)
		}
	}
	var overflow types.Address
	binary.BigEndian.PutUint32(overflow[:4], uint32(loom.MaxParticipants))
	if err := l.AddParticipant(overflow); !errors.Is(err, loom.ErrParticipantLimitExceeded) {
		t.Fatalf("expected ErrParticipantLimitExceeded at participant %d, got %v", loom.MaxParticipants, err)
	}
}

func TestLoomCallDepthExceeded(t *testing.T) {
	target := types.Hash{0x09}
	prog := loomCallProgram(target, []byte("in"))

	stack := make([]types.LoomID, loom.MaxCallDepth)
	for i := range stack {
		stack[i] = types.Hash{byte(i + 1)}
	}
	ctx := testCtx(mapState{data: map[string][]byte{}})
	ctx.CallStack = stack

	res := loom.Execute(prog, nil, ctx, 10000, loom.GasScheduleV1)
	if res.Success {
		t.Fatalf("expected call-depth failure")
	}
}

func TestLoomCallReentrancyRejected(t *testing.T) {
	target := types.Hash{0x0A}
	prog := loomCallProgram(target, []byte("in"))

	ctx := testCtx(mapState{data: map[string][]byte{}})
	ctx.CallStack = []types.LoomID{target}

	res := loom.Execute(prog, nil, ctx, 10000, loom.GasScheduleV1)
	if res.Success {
		t.Fatalf("expected reentrancy failure")
	}
}

func loomCallProgram(target types.LoomID, input []byte) *loom.Program {
	return &loom.Program{
		Instructions: []loom.Instruction{
			{Op: loom.OpPushBytes, Imm: 0},
			{Op: loom.OpPushBytes, Imm: 1},
			{Op: loom.OpPushI64, Imm: 1000},
			{Op: loom.OpLoomCall},
			{Op: loom.OpHalt},
		},
		Constants: [][]byte{target[:], input},
	}
}

func TestGasExhaustedUnwrapsToResourceError(t *testing.T) {
	ge := &loom.GasExhausted{Used: 100, Limit: 50}
	if !errors.Is(ge, errs.ErrResource) {
		t.Fatalf("GasExhausted must unwrap to errs.ErrResource")
	}
}

func TestTokenLedgerTransferDebitsAndCredits(t *testing.T) {
	prog := examples.TokenLedger()
	var sender types.Address
	sender[0] = 0xAA
	recipient := []byte("recipient-key-0000")

	data := map[string][]byte{
		string(sender[:]): wordBytes(5),
	}
	ctx := loom.ExecContext{
		LoomID: types.Hash{0x04},
		Sender: sender,
		State:  mapState{data: data},
	}

	res := loom.Execute(prog, recipient, ctx, 100000, loom.GasScheduleV1)
	if !res.Success {
		t.Fatalf("transfer failed: %s", res.Reason)
	}
	applyDelta(data, res.StateDelta)

	if binary.LittleEndian.Uint64(data[string(sender[:])]) != 4 {
		t.Fatalf("expected sender balance 4 after debit, got %d", binary.LittleEndian.Uint64(data[string(sender[:])]))
	}
	if binary.LittleEndian.Uint64(data[string(recipient)]) != 1 {
		t.Fatalf("expected recipient balance 1 after credit, got %d", binary.LittleEndian.Uint64(data[string(recipient)]))
	}
}

func TestTokenLedgerTrapsOnInsufficientBalance(t *testing.T) {
	prog := examples.TokenLedger()
	var sender types.Address
	sender[0] = 0xBB
	ctx := loom.ExecContext{
		LoomID: types.Hash{0x05},
		Sender: sender,
		State:  mapState{data: map[string][]byte{}},
	}

	res := loom.Execute(prog, []byte("somebody"), ctx, 100000, loom.GasScheduleV1)
	if res.Success {
		t.Fatalf("expected trap on a sender with zero balance")
	}
}

func wordBytes(w uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], w)
	return b[:]
}

func TestReexecuteDetectsInvalidLoomTransition(t *testing.T) {
	prog := examples.Counter()
	snap := &loom.SnapshotReader{Data: map[string][]byte{}}
	ctx := testCtx(nil)

	actualOutput, actualHash, err := loom.Reexecute(prog, nil, ctx, 1000, loom.GasScheduleV1, snap)
	if err != nil {
		t.Fatalf("re-execution failed: %v", err)
	}
	if binary.LittleEndian.Uint64(actualOutput) != 1 {
		t.Fatalf("expected re-executed output 1, got %d", binary.LittleEndian.Uint64(actualOutput))
	}

	claimedOutput := wordBytes(2)
	var claimedHash types.Hash
	claimedHash[0] = 0xFF

	if loom.MatchesClaim(claimedOutput, claimedHash, actualOutput, actualHash) {
		t.Fatalf("fabricated claim must not match authoritative re-execution")
	}
	if !loom.MatchesClaim(actualOutput, actualHash, actualOutput, actualHash) {
		t.Fatalf("identical claim and actual result must match")
	}
}
