package thread

import (
	"fmt"
	"sort"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/types"
)

// StateTree is the per-thread sparse state: token balances, loom
// call-counts, and bound names, folded deterministically into a single
// state_hash via a sorted-leaf merkle root. It uses the same
// dirty/write-buffer discipline as the rest of this codebase's state
// containers so operations can be applied speculatively and rolled back
// if a later operation in the same knot fails validation.
type StateTree struct {
	balances  map[types.TokenID]types.Amount
	callCount map[types.LoomID]uint64
	names     map[string]types.Timestamp

	snapshots []stateTreeSnapshot
}

type stateTreeSnapshot struct {
	balances  map[types.TokenID]types.Amount
	callCount map[types.LoomID]uint64
	names     map[string]types.Timestamp
}

// NewStateTree returns an empty state tree (thread genesis state).
func NewStateTree() *StateTree {
	return &StateTree{
		balances:  make(map[types.TokenID]types.Amount),
		callCount: make(map[types.LoomID]uint64),
		names:     make(map[string]types.Timestamp),
	}
}

func (s *StateTree) Balance(tokenID types.TokenID) types.Amount {
	if b, ok := s.balances[tokenID]; ok {
		return b
	}
	return types.ZeroAmount
}

func (s *StateTree) CallCount(loomID types.LoomID) uint64 {
	return s.callCount[loomID]
}

func (s *StateTree) HasName(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Credit increases tokenID's balance by amount.
func (s *StateTree) Credit(tokenID types.TokenID, amount types.Amount) error {
	next, err := s.Balance(tokenID).Add(amount)
	if err != nil {
		return err
	}
	s.balances[tokenID] = next
	return nil
}

// Debit decreases tokenID's balance by amount, failing on insufficient funds.
func (s *StateTree) Debit(tokenID types.TokenID, amount types.Amount) error {
	next, err := s.Balance(tokenID).Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: insufficient balance", errs.ErrValidation)
	}
	s.balances[tokenID] = next
	return nil
}

func (s *StateTree) RecordLoomCall(loomID types.LoomID) {
	s.callCount[loomID]++
}

func (s *StateTree) SetName(name string, at types.Timestamp) {
	s.names[name] = at
}

func (s *StateTree) ClearName(name string) {
	delete(s.names, name)
}

// Snapshot pushes a deep copy of the current tree for later rollback.
func (s *StateTree) Snapshot() int {
	snap := stateTreeSnapshot{
		balances:  make(map[types.TokenID]types.Amount, len(s.balances)),
		callCount: make(map[types.LoomID]uint64, len(s.callCount)),
		names:     make(map[string]types.Timestamp, len(s.names)),
	}
	for k, v := range s.balances {
		snap.balances[k] = v
	}
	for k, v := range s.callCount {
		snap.callCount[k] = v
	}
	for k, v := range s.names {
		snap.names[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1
}

// RevertToSnapshot restores the tree to a previously taken snapshot.
func (s *StateTree) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("%w: invalid state-tree snapshot id %d", errs.ErrStorage, id)
	}
	snap := s.snapshots[id]
	s.balances = snap.balances
	s.callCount = snap.callCount
	s.names = snap.names
	s.snapshots = s.snapshots[:id]
	return nil
}

// Root computes the deterministic state_hash: every entry is encoded as a
// canonical leaf, leaves are sorted by key so insertion order never
// matters, and folded through crypto.MerkleRoot.
func (s *StateTree) Root() types.Hash {
	type entry struct {
		key  string
		leaf []byte
	}
	entries := make([]entry, 0, len(s.balances)+len(s.callCount)+len(s.names))

	for tok, bal := range s.balances {
		e := types.NewEncoder()
		e.WriteByte('b')
		e.WriteHash(tok)
		e.WriteAmount(bal)
		entries = append(entries, entry{key: "b:" + tok.String(), leaf: e.Bytes()})
	}
	for loomID, count := range s.callCount {
		e := types.NewEncoder()
		e.WriteByte('c')
		e.WriteHash(loomID)
		e.WriteUint64(count)
		entries = append(entries, entry{key: "c:" + loomID.String(), leaf: e.Bytes()})
	}
	for name, at := range s.names {
		e := types.NewEncoder()
		e.WriteByte('n')
		e.WriteString(name)
		e.WriteUint64(uint64(at))
		entries = append(entries, entry{key: "n:" + name, leaf: e.Bytes()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	leaves := make([][]byte, len(entries))
	for i, e := range entries {
		leaves[i] = e.leaf
	}
	return crypto.MerkleRoot(leaves)
}
