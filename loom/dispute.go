package loom

import (
	"bytes"
	"sort"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/types"
)

// SnapshotReader is a read-only view of a loom's keyed state as of the
// last committed state_hash, used as the starting point for a disputed
// re-execution. The weave supplies this from its own committed storage,
// never from a participant's claim.
type SnapshotReader struct {
	Data map[string][]byte
}

func (s *SnapshotReader) Get(_ types.LoomID, key []byte) ([]byte, bool) {
	v, ok := s.Data[string(key)]
	return v, ok
}

// Reexecute deterministically replays a disputed call from snapshot and
// returns the resulting output and the new state_hash: the BLAKE3 merkle
// root over every key of the snapshot with the call's writes and deletes
// applied, sorted by key, so the result is independent of map iteration
// order.
func Reexecute(program *Program, input []byte, ctx ExecContext, gasLimit uint64, gasSchedule GasSchedule, snapshot *SnapshotReader) (output []byte, newStateHash types.Hash, err error) {
	ctx.State = snapshot
	result := Execute(program, input, ctx, gasLimit, gasSchedule)
	if !result.Success {
		return nil, types.Hash{}, &disputeExecutionFailed{reason: result.Reason}
	}

	merged := make(map[string][]byte, len(snapshot.Data)+len(result.StateDelta))
	for k, v := range snapshot.Data {
		merged[k] = v
	}
	for k, entry := range result.StateDelta {
		if entry.Deleted {
			delete(merged, k)
		} else {
			merged[k] = entry.New
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	leaves := make([][]byte, 0, len(keys))
	for _, k := range keys {
		e := types.NewEncoder()
		e.WriteString(k)
		e.WriteBytes(merged[k])
		leaves = append(leaves, e.Bytes())
	}
	return result.Output, crypto.MerkleRoot(leaves), nil
}

// MatchesClaim reports whether a disputed knot's claimed (output,
// state_hash) agrees with authoritative re-execution — the core check
// behind an InvalidLoomTransition fraud proof.
func MatchesClaim(claimedOutput []byte, claimedStateHash types.Hash, actualOutput []byte, actualStateHash types.Hash) bool {
	return bytes.Equal(claimedOutput, actualOutput) && claimedStateHash == actualStateHash
}

type disputeExecutionFailed struct{ reason string }

func (e *disputeExecutionFailed) Error() string { return "re-execution failed: " + e.reason }
