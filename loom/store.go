package loom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/storage"
	"github.com/nornlabs/norn/types"
)

const loomStatePrefix = "loom_state:"

func loomStateKey(id types.LoomID, key []byte) []byte {
	return []byte(loomStatePrefix + id.String() + ":" + string(key))
}

func loomStateScanPrefix(id types.LoomID) []byte {
	return []byte(loomStatePrefix + id.String() + ":")
}

// Store is a loom's durable keyed-state backing, persisted under the
// loom_state:<loom_id>:<key> layout. It serves as both the live
// StateReader a running execution reads against and the snapshot source
// the weave hands to a disputed re-execution.
type Store struct {
	db storage.DB
}

// NewStore wraps db as a loom state store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Get implements StateReader by reading the durable key for id.
func (s *Store) Get(id types.LoomID, key []byte) ([]byte, bool) {
	v, err := s.db.Get(loomStateKey(id, key))
	if err != nil {
		return nil, false
	}
	return v, true
}

// Apply commits a successful execution's StateDelta to durable storage,
// in a single batch so a crash mid-write never leaves a loom with a
// partially-applied call.
func (s *Store) Apply(id types.LoomID, delta map[string]StateDeltaEntry) error {
	batch := s.db.NewBatch()
	for k, entry := range delta {
		if entry.Deleted {
			batch.Delete(loomStateKey(id, []byte(k)))
		} else {
			batch.Set(loomStateKey(id, []byte(k)), entry.New)
		}
	}
	return batch.Write()
}

// Snapshot reads every durable key belonging to id into an in-memory
// SnapshotReader, the starting point the weave re-executes a disputed
// call from. Never backed by a participant's own claim.
func (s *Store) Snapshot(id types.LoomID) (*SnapshotReader, error) {
	prefix := loomStateScanPrefix(id)
	it := s.db.NewIterator(prefix)
	defer it.Release()

	data := make(map[string][]byte)
	for it.Next() {
		k := strings.TrimPrefix(string(it.Key()), string(prefix))
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		data[k] = v
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("loom state snapshot %s: %w", id, err)
	}
	return &SnapshotReader{Data: data}, nil
}

// ComputeStateHash returns the BLAKE3 merkle root over every key's
// current value for id, sorted by key, matching Reexecute's hashing so a
// live state_hash and a disputed re-execution's state_hash are computed
// identically.
func (s *Store) ComputeStateHash(id types.LoomID) (types.Hash, error) {
	snap, err := s.Snapshot(id)
	if err != nil {
		return types.Hash{}, err
	}
	keys := make([]string, 0, len(snap.Data))
	for k := range snap.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	leaves := make([][]byte, 0, len(keys))
	for _, k := range keys {
		e := types.NewEncoder()
		e.WriteString(k)
		e.WriteBytes(snap.Data[k])
		leaves = append(leaves, e.Bytes())
	}
	return crypto.MerkleRoot(leaves), nil
}
