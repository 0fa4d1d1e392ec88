package consensus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/loom"
	"github.com/nornlabs/norn/log"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

// EngineState names where a height/view's local state machine currently
// sits, the five states spec.md section 4.D's per-view protocol moves
// through.
type EngineState byte

const (
	StateIdle EngineState = iota
	StateProposing
	StatePrepared
	StatePreCommitted
	StateCommitted
)

// Engine drives one height's HotStuff-style three-phase round: a leader
// proposes, 2f+1 validators vote prepare, then pre-commit, then commit, and
// the block finalizes into the weave state. It holds no network
// transport of its own — callers feed it Propose/Vote/ViewChange messages
// received from the wire and broadcast whatever it hands back.
type Engine struct {
	mu sync.Mutex

	state       *weave.State
	registry    *loom.Registry
	mempool     *weave.Mempool
	snapshots   func(types.LoomID) *loom.SnapshotReader
	gasSchedule loom.GasSchedule

	self types.Address
	priv crypto.PrivateKey
	pub  types.PublicKey

	height      uint64
	view        uint64
	engineState EngineState
	parentHash  types.Hash

	proposal             *weave.Block
	proposalFingerprints []types.Hash

	prepareVotes   map[types.Address]types.Signature
	precommitVotes map[types.Address]types.Signature
	commitVotes    map[types.Address]types.Signature

	prepareQuorumReached   bool
	precommitQuorumReached bool
	commitQuorumReached    bool

	highestQC *weave.QC

	log *zap.SugaredLogger
}

// New builds an Engine for the local validator identified by priv, starting
// at the weave state's current height extending parentHash.
func New(
	state *weave.State,
	registry *loom.Registry,
	mempool *weave.Mempool,
	snapshots func(types.LoomID) *loom.SnapshotReader,
	gasSchedule loom.GasSchedule,
	self types.Address,
	priv crypto.PrivateKey,
	parentHash types.Hash,
) *Engine {
	return &Engine{
		state:       state,
		registry:    registry,
		mempool:     mempool,
		snapshots:   snapshots,
		gasSchedule: gasSchedule,
		self:        self,
		priv:        priv,
		pub:         priv.Public(),
		height:      state.Height(),
		parentHash:  parentHash,
		engineState: StateIdle,
		log:         log.For("consensus"),
	}
}

func (e *Engine) resetVotes() {
	e.prepareVotes = make(map[types.Address]types.Signature)
	e.precommitVotes = make(map[types.Address]types.Signature)
	e.commitVotes = make(map[types.Address]types.Signature)
	e.prepareQuorumReached = false
	e.precommitQuorumReached = false
	e.commitQuorumReached = false
}

// Height returns the height this engine is currently trying to produce.
func (e *Engine) Height() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.height + 1
}

// View returns the current view number within the height.
func (e *Engine) View() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Leader returns the validator elected to propose the current height/view.
func (e *Engine) Leader() (types.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaderLocked()
}

func (e *Engine) leaderLocked() (types.Address, error) {
	return SelectLeader(e.state.ActiveValidators(), e.parentHash, e.view)
}

// IsLeader reports whether the local validator is the elected leader for
// the current height/view.
func (e *Engine) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	leader, err := e.leaderLocked()
	return err == nil && leader == e.self
}

// ProposeBlock assembles, signs, and records a proposal built from the
// mempool's highest-priority pending entries. Only valid when the local
// node is the elected leader for the current view.
func (e *Engine) ProposeBlock(limit int, at types.Timestamp) (*weave.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	leader, err := e.leaderLocked()
	if err != nil {
		return nil, err
	}
	if leader != e.self {
		return nil, ErrNotLeader
	}

	entries := e.mempool.Pending(limit)
	block := weave.NewBlock(e.height+1, e.parentHash, e.self, at)
	fingerprints := make([]types.Hash, 0, len(entries))
	for _, entry := range entries {
		switch entry.Kind {
		case weave.ItemCommitment:
			block.Commitments = append(block.Commitments, entry.Commitment)
		case weave.ItemFraudProof:
			block.FraudProofs = append(block.FraudProofs, entry.FraudProof)
		default:
			continue
		}
		fingerprints = append(fingerprints, entry.Fingerprint)
	}
	block.ThreadsRoot = weave.ComputeThreadsRoot(block.Commitments)
	block.Sign(e.priv)

	e.proposal = block
	e.proposalFingerprints = fingerprints
	e.engineState = StateProposing
	e.resetVotes()

	e.log.Infow("proposed block", "height", block.Height, "view", e.view, "commitments", len(block.Commitments))
	return block, nil
}

// OnPropose validates an incoming leader proposal and, if valid, returns
// the local node's signed prepare vote for it.
func (e *Engine) OnPropose(p *Propose) (*Vote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Height != e.height+1 {
		return nil, ErrWrongHeight
	}
	if p.Block.ParentHash != e.parentHash {
		return nil, ErrWrongParent
	}

	expectedLeader, err := e.leaderLocked()
	if err != nil {
		return nil, err
	}
	if p.Block.Proposer != expectedLeader {
		return nil, ErrWrongProposer
	}

	leaderPub, ok := e.validatorPubKey(expectedLeader)
	if !ok {
		return nil, ErrNoValidators
	}
	if err := p.Block.Verify(leaderPub); err != nil {
		return nil, ErrBadProposalSig
	}

	e.view = p.View
	e.proposal = p.Block
	e.engineState = StatePrepared
	e.resetVotes()

	return e.selfVoteLocked(weave.PhasePrepare)
}

// validatorPubKey looks up an active validator's public key by address.
func (e *Engine) validatorPubKey(addr types.Address) (types.PublicKey, bool) {
	for _, v := range e.state.ActiveValidators() {
		if v.Address == addr {
			return v.PubKey, true
		}
	}
	return types.PublicKey{}, false
}

func (e *Engine) selfVoteLocked(phase weave.Phase) (*Vote, error) {
	blockHash := e.proposal.Hash()
	sig := e.priv.Sign(voteSigningBytes(e.height+1, e.view, phase, blockHash))
	v := &Vote{
		Height:    e.height + 1,
		View:      e.view,
		Phase:     phase,
		BlockHash: blockHash,
		Voter:     e.self,
		Sig:       sig,
	}
	e.recordVoteLocked(v)
	return v, nil
}

// RecordVote validates and tallies an incoming vote. When the vote
// completes a 2f+1 quorum for its phase, RecordVote returns the resulting
// QC and the vote the local node should broadcast for the next phase (nil
// once the commit phase's QC finalizes the block — call Finalize instead).
func (e *Engine) RecordVote(v *Vote) (*weave.QC, *Vote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v.Height != e.height+1 {
		return nil, nil, ErrStaleVote
	}
	if e.proposal == nil || v.BlockHash != e.proposal.Hash() {
		return nil, nil, ErrNoActiveProposal
	}

	pub, ok := e.validatorPubKey(v.Voter)
	if !ok {
		return nil, nil, ErrUnknownVoter
	}
	if err := crypto.Verify(pub, voteSigningBytes(v.Height, v.View, v.Phase, v.BlockHash), v.Sig); err != nil {
		return nil, nil, ErrBadVoteSig
	}

	e.recordVoteLocked(v)

	votes := e.votesFor(v.Phase)
	quorum := QuorumSize(len(e.state.ActiveValidators()))
	if len(votes) < quorum {
		return nil, nil, nil
	}

	qc := &weave.QC{
		Height:    v.Height,
		View:      v.View,
		BlockHash: v.BlockHash,
		Phase:     v.Phase,
		Sigs:      cloneSigs(votes),
	}

	switch v.Phase {
	case weave.PhasePrepare:
		if e.prepareQuorumReached {
			return qc, nil, nil
		}
		e.prepareQuorumReached = true
		e.engineState = StatePreCommitted
		e.highestQC = qc
		next, err := e.selfVoteLocked(weave.PhasePreCommit)
		return qc, next, err
	case weave.PhasePreCommit:
		if e.precommitQuorumReached {
			return qc, nil, nil
		}
		e.precommitQuorumReached = true
		e.engineState = StateCommitted
		e.highestQC = qc
		next, err := e.selfVoteLocked(weave.PhaseCommit)
		return qc, next, err
	case weave.PhaseCommit:
		e.commitQuorumReached = true
		e.highestQC = qc
		return qc, nil, nil
	default:
		return qc, nil, nil
	}
}

func (e *Engine) recordVoteLocked(v *Vote) {
	m := e.votesForMutable(v.Phase)
	m[v.Voter] = v.Sig
}

func (e *Engine) votesFor(phase weave.Phase) map[types.Address]types.Signature {
	return e.votesForMutable(phase)
}

func (e *Engine) votesForMutable(phase weave.Phase) map[types.Address]types.Signature {
	switch phase {
	case weave.PhasePrepare:
		return e.prepareVotes
	case weave.PhasePreCommit:
		return e.precommitVotes
	default:
		return e.commitVotes
	}
}

func cloneSigs(m map[types.Address]types.Signature) map[types.Address]types.Signature {
	out := make(map[types.Address]types.Signature, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Finalize applies the committed proposal to the weave state once a commit
// QC has been reached, advances the engine to the next height, and resets
// the view to 0.
func (e *Engine) Finalize() (*weave.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.engineState != StateCommitted || e.proposal == nil {
		return nil, ErrWrongPhase
	}

	block := e.proposal
	block.QuorumCert = e.highestQC
	if err := e.state.ApplyBlock(block, e.registry, e.snapshots, e.gasSchedule); err != nil {
		return nil, err
	}

	fps := e.proposalFingerprints
	if fps == nil {
		// This node didn't propose the block (it was a replica), so it has
		// no record of the original mempool entries' fingerprints; fall
		// back to recomputing them from the commitments and fraud proofs
		// the block actually carries.
		fps = make([]types.Hash, 0, len(block.Commitments)+len(block.FraudProofs))
		for _, c := range block.Commitments {
			fps = append(fps, c.Fingerprint())
		}
		for _, p := range block.FraudProofs {
			fps = append(fps, p.Fingerprint())
		}
	}
	e.mempool.Remove(fps)

	e.height = block.Height
	e.parentHash = block.Hash()
	e.view = 0
	e.engineState = StateIdle
	e.proposal = nil
	e.proposalFingerprints = nil
	e.resetVotes()

	e.log.Infow("finalized block", "height", e.height)
	return block, nil
}

// OnViewChangeTimeout advances the local view after the leader timeout
// elapses without a commit QC, per ViewTimeout's doubling schedule. The
// returned ViewChange message carries the highest QC this node has seen so
// the new leader can safely extend the chain.
func (e *Engine) OnViewChangeTimeout() *ViewChange {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.view++
	e.engineState = StateIdle
	e.proposal = nil
	e.proposalFingerprints = nil
	e.resetVotes()

	vc := &ViewChange{
		Height:    e.height + 1,
		NewView:   e.view,
		HighestQC: e.highestQC,
		Voter:     e.self,
	}
	vc.Sig = e.priv.Sign(viewChangeSigningBytes(vc.Height, vc.NewView, vc.HighestQC))
	e.log.Warnw("view timeout, advancing view", "height", vc.Height, "new_view", vc.NewView)
	return vc
}
