package weave

import (
	"sync"

	"github.com/nornlabs/norn/events"
	"github.com/nornlabs/norn/loom"
	"github.com/nornlabs/norn/types"
)

// ThreadCommitment is the weave's on-chain record of a thread's last
// accepted commitment: the committed version and the state_hash at that
// version. The full knot chain stays off-chain; only this is anchored.
type ThreadCommitment struct {
	Version   uint64
	StateHash types.Hash
	Forked    bool
}

// State is the weave's single shared aggregate: native balances, validator
// bonds, per-thread committed heads, registered looms, and the name
// registry. It is guarded by one sync.RWMutex, mirroring the teacher's
// StateDB/Blockchain locking discipline (RLock for readers — the consensus
// driver while proposing and RPC read handlers — Lock for the single
// applier) rather than introducing a different concurrency primitive.
type State struct {
	mu sync.RWMutex

	balances    map[types.Address]types.Amount
	validators  map[types.Address]*Validator
	threads     map[types.ThreadID]*ThreadCommitment
	threadOwner map[types.ThreadID]types.PublicKey // learned on first commitment
	names       map[string]types.Address
	reverse     map[types.Address]string

	looms *loom.Registry

	baseFee       types.Amount
	feeMultiplier uint64 // scaled by 1000

	height uint64

	emitter *events.Emitter // nil unless SetEmitter is called
}

// SetEmitter wires an events.Emitter into the state so ApplyBlock and the
// staking operations publish domain events as they happen. Nil-safe: a
// State with no emitter set simply never emits.
func (s *State) SetEmitter(e *events.Emitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitter = e
}

func (s *State) emit(ev events.Event) {
	s.mu.RLock()
	e := s.emitter
	s.mu.RUnlock()
	if e != nil {
		e.Emit(ev)
	}
}

// NewState builds an empty weave state with the given genesis fee-market
// parameters.
func NewState(baseFee types.Amount, feeMultiplier uint64) *State {
	return &State{
		balances:      make(map[types.Address]types.Amount),
		validators:    make(map[types.Address]*Validator),
		threads:       make(map[types.ThreadID]*ThreadCommitment),
		threadOwner:   make(map[types.ThreadID]types.PublicKey),
		names:         make(map[string]types.Address),
		reverse:       make(map[types.Address]string),
		looms:         loom.NewRegistry(),
		baseFee:       baseFee,
		feeMultiplier: feeMultiplier,
	}
}

func (s *State) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

func (s *State) setHeight(h uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height = h
}

func (s *State) Balance(addr types.Address) types.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[addr]
}

func (s *State) Credit(addr types.Address, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, err := s.balances[addr].Add(amount)
	if err != nil {
		return err
	}
	s.balances[addr] = sum
	return nil
}

func (s *State) Debit(addr types.Address, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining, err := s.balances[addr].Sub(amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	s.balances[addr] = remaining
	return nil
}

// ThreadCommitted returns the committed (version, state_hash, forked) for
// thread_id, or the zero value with ok=false if the thread has never
// committed.
func (s *State) ThreadCommitted(id types.ThreadID) (ThreadCommitment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.threads[id]
	if !ok {
		return ThreadCommitment{}, false
	}
	return *c, true
}

func (s *State) MarkThreadForked(id types.ThreadID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.threads[id]
	if !ok {
		c = &ThreadCommitment{}
		s.threads[id] = c
	}
	c.Forked = true
}

// ThreadOwnerPubKey returns the pubkey bound to thread_id on its first
// accepted commitment, if any. A thread that has never committed has no
// known owner pubkey from the weave's point of view — it only lives
// off-chain until the first header lands on-chain.
func (s *State) ThreadOwnerPubKey(id types.ThreadID) (types.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pk, ok := s.threadOwner[id]
	return pk, ok
}

func (s *State) bindThreadOwner(id types.ThreadID, pub types.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threadOwner[id]; !ok {
		s.threadOwner[id] = pub
	}
}

func (s *State) advanceThreadCommitment(id types.ThreadID, version uint64, stateHash types.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.threads[id]
	if !ok {
		c = &ThreadCommitment{}
		s.threads[id] = c
	}
	c.Version = version
	c.StateHash = stateHash
}

func (s *State) Looms() *loom.Registry { return s.looms }

// BaseFee and FeeMultiplier return the current fee-market parameters.
func (s *State) BaseFee() types.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseFee
}

func (s *State) FeeMultiplier() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeMultiplier
}

func (s *State) setBaseFee(f types.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseFee = f
}

// ResolveName and ReverseName serve the name registry's read side.
func (s *State) ResolveName(name string) (types.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.names[name]
	return a, ok
}

func (s *State) ReverseName(addr types.Address) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.reverse[addr]
	return n, ok
}

func (s *State) setName(name string, addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.reverse[addr]; ok {
		delete(s.names, old)
	}
	s.names[name] = addr
	s.reverse[addr] = name
}

func (s *State) clearName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr, ok := s.names[name]; ok {
		delete(s.reverse, addr)
	}
	delete(s.names, name)
}
