package loom

import "github.com/nornlabs/norn/types"

// StateReader gives the interpreter read access to a loom's committed
// keyed state, e.g. the last committed snapshot held by the weave.
type StateReader interface {
	Get(loomID types.LoomID, key []byte) ([]byte, bool)
}

// Invoker performs a nested loom_call. The implementation (owned by the
// node wiring) is responsible for call-stack bookkeeping shared across
// the whole call chain; Execute only enforces depth and reentrancy
// locally via callStack.
type Invoker interface {
	Invoke(loomID types.LoomID, input []byte, sender types.Address, gasLimit uint64) (output []byte, gasUsed uint64, err error)
}

// ExecContext carries the read-only environment an execution runs
// against: caller identity, committed block info, the state reader for
// the target loom, and (for non-root calls) the nested invoker and
// current call stack.
type ExecContext struct {
	LoomID         types.LoomID
	Sender         types.Address
	BlockHeight    uint64
	BlockTimestamp uint64
	State          StateReader
	Invoker        Invoker
	CallStack      []types.LoomID // loom IDs currently executing, root first
}

// StateDeltaEntry records a single key's before/after value for atomic
// apply-on-success / discard-on-failure semantics.
type StateDeltaEntry struct {
	Old      []byte
	New      []byte
	Deleted  bool
	HadOld   bool
}

// Result is the outcome of Execute or Query.
type Result struct {
	Output     []byte
	GasUsed    uint64
	Logs       [][]byte
	StateDelta map[string]StateDeltaEntry // nil for Query
	Success    bool
	Reason     string
}
