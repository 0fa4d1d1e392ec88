package network

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/nornlabs/norn/loom"
	"github.com/nornlabs/norn/log"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

// GetBlocksRequest asks a peer for blocks starting at FromHeight.
type GetBlocksRequest struct {
	FromHeight uint64 `json:"from_height"`
	Limit      int    `json:"limit"`
}

// BlocksResponse carries a batch of blocks, each in its own canonical
// binary encoding (weave.Block.Encode), base64-carried by the outer JSON
// envelope the same way Message.Payload is.
type BlocksResponse struct {
	Blocks [][]byte `json:"blocks"`
}

// Syncer handles weave block synchronisation between nodes: a node behind
// the chain tip asks a peer for the blocks it's missing, verifies each
// one's quorum certificate and height/parent linkage, and applies it to
// its own weave state.
type Syncer struct {
	node        *Node
	state       *weave.State
	store       *weave.BlockStore
	registry    *loom.Registry
	snapshots   func(types.LoomID) *loom.SnapshotReader
	gasSchedule loom.GasSchedule

	// validatorPubKeys and quorum are read fresh on every synced block so
	// sync stays correct across a validator set change mid-catch-up.
	validatorPubKeys func() map[types.Address]types.PublicKey
	quorum           func() int

	log *zap.SugaredLogger
}

// NewSyncer creates a Syncer that requests missing blocks from peers and
// applies them to state, persisting each into store as it lands.
func NewSyncer(
	node *Node,
	state *weave.State,
	store *weave.BlockStore,
	registry *loom.Registry,
	snapshots func(types.LoomID) *loom.SnapshotReader,
	gasSchedule loom.GasSchedule,
	validatorPubKeys func() map[types.Address]types.PublicKey,
	quorum func() int,
) *Syncer {
	s := &Syncer{
		node:             node,
		state:            state,
		store:            store,
		registry:         registry,
		snapshots:        snapshots,
		gasSchedule:      gasSchedule,
		validatorPubKeys: validatorPubKeys,
		quorum:           quorum,
		log:              log.For("sync"),
	}
	node.Handle(MsgGetBlocks, s.handleGetBlocks)
	node.Handle(MsgBlocks, s.handleBlocks)
	return s
}

// RequestBlocks asks peer for blocks starting at fromHeight.
func (s *Syncer) RequestBlocks(peer *Peer, fromHeight uint64) error {
	req, err := json.Marshal(GetBlocksRequest{FromHeight: fromHeight, Limit: 50})
	if err != nil {
		return err
	}
	return peer.Send(Message{Type: MsgGetBlocks, Payload: req})
}

func (s *Syncer) handleGetBlocks(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		s.log.Warnw("decode get_blocks failed", "peer", peer.ID, "error", err)
		return
	}
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	blocks := make([][]byte, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+uint64(req.Limit); h++ {
		b, err := s.store.GetBlock(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b.Encode())
	}
	data, err := json.Marshal(BlocksResponse{Blocks: blocks})
	if err != nil {
		s.log.Errorw("marshal blocks response failed", "error", err)
		return
	}
	_ = peer.Send(Message{Type: MsgBlocks, Payload: data})
}

func (s *Syncer) handleBlocks(peer *Peer, msg Message) {
	var resp BlocksResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		s.log.Warnw("decode blocks response failed", "peer", peer.ID, "error", err)
		return
	}
	for _, raw := range resp.Blocks {
		block, err := weave.DecodeBlock(raw)
		if err != nil {
			s.log.Warnw("decode synced block failed", "peer", peer.ID, "error", err)
			return
		}
		if err := s.applyOne(block); err != nil {
			s.log.Warnw("reject synced block", "height", block.Height, "error", err)
			return // stop at the first bad block; a later batch can't help until this one is resolved
		}
	}
}

func (s *Syncer) applyOne(block *weave.Block) error {
	if block.Height != s.state.Height()+1 {
		return weave.ErrBadHeight
	}
	if block.QuorumCert == nil || block.QuorumCert.BlockHash != block.Hash() {
		return weave.ErrQuorumNotReached
	}
	if err := weave.VerifyQC(block.QuorumCert, s.validatorPubKeys(), s.quorum()); err != nil {
		return err
	}
	if err := s.state.ApplyBlock(block, s.registry, s.snapshots, s.gasSchedule); err != nil {
		return err
	}
	if err := s.store.PutBlock(block); err != nil {
		return err
	}
	return s.store.SetTipHeight(block.Height)
}
