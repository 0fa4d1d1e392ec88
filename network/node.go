package network

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/log"
	"github.com/nornlabs/norn/spindle"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
	"github.com/nornlabs/norn/weave/consensus"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers and manages outgoing connections. It
// gossips knots, commitments, fraud proofs, and the HotStuff consensus
// messages among the weave's validator and watchtower set.
type Node struct {
	nodeID     string
	listenAddr string
	mempool    *weave.Mempool
	watchtower *spindle.Watchtower
	engine     *consensus.Engine
	blockStore *weave.BlockStore // nil for a node with no engine of its own
	tlsConfig  *tls.Config       // nil → plain TCP
	maxPeers   int

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}

	log *zap.SugaredLogger
}

// NewNode creates a Node that will listen on listenAddr. watchtower and
// engine may be nil for a node that only relays gossip without running
// fraud detection or participating in consensus. blockStore, when
// non-nil, is where this node's own locally-finalized blocks are
// persisted as soon as the engine commits them — separately from the
// Syncer, which persists blocks caught up from a peer. If tlsCfg is
// non-nil the listener and outgoing connections use TLS.
func NewNode(nodeID, listenAddr string, mempool *weave.Mempool, watchtower *spindle.Watchtower, engine *consensus.Engine, blockStore *weave.BlockStore, tlsCfg *tls.Config) *Node {
	n := &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		mempool:    mempool,
		watchtower: watchtower,
		engine:     engine,
		blockStore: blockStore,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
		log:        log.For("network"),
	}
	n.Handle(MsgKnot, n.handleKnot)
	n.Handle(MsgCommitment, n.handleCommitment)
	n.Handle(MsgFraudProof, n.handleFraudProof)
	n.Handle(MsgPropose, n.handlePropose)
	n.Handle(MsgVote, n.handleVote)
	n.Handle(MsgViewChange, n.handleViewChange)
	return n
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Addr returns the address the node is actually listening on, useful when
// Start was called with a ":0" port and the caller needs the assigned one.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr and registers the peer.
func (n *Node) AddPeer(id, addr string) error {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)

	if err := peer.Send(Message{Type: MsgHello, Payload: []byte(n.nodeID)}); err != nil {
		n.log.Warnw("send hello failed", "peer", id, "error", err)
	}
	return nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// Broadcast sends msg to all connected peers.
func (n *Node) Broadcast(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			n.log.Warnw("broadcast failed", "peer", p.ID, "error", err)
		}
	}
}

// BroadcastKnot gossips a newly appended knot to every peer.
func (n *Node) BroadcastKnot(k *thread.Knot) {
	n.Broadcast(Message{Type: MsgKnot, Payload: k.Encode()})
}

// BroadcastCommitment gossips a thread commitment destined for the weave
// mempool to every peer.
func (n *Node) BroadcastCommitment(c *weave.Commitment) {
	n.Broadcast(Message{Type: MsgCommitment, Payload: c.Encode()})
}

// BroadcastFraudProof gossips a fraud proof to every peer.
func (n *Node) BroadcastFraudProof(p *weave.FraudProof) {
	n.Broadcast(Message{Type: MsgFraudProof, Payload: p.Encode()})
}

// BroadcastPropose gossips a leader's block proposal to every peer.
func (n *Node) BroadcastPropose(p *consensus.Propose) {
	n.Broadcast(Message{Type: MsgPropose, Payload: p.Encode()})
}

// BroadcastVote gossips a validator's vote to every peer.
func (n *Node) BroadcastVote(v *consensus.Vote) {
	n.Broadcast(Message{Type: MsgVote, Payload: v.Encode()})
}

// BroadcastViewChange gossips a replica's view-change message to every peer.
func (n *Node) BroadcastViewChange(vc *consensus.ViewChange) {
	n.Broadcast(Message{Type: MsgViewChange, Payload: vc.Encode()})
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.Warnw("accept error", "error", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			n.log.Warnw("max peers reached, rejecting connection", "max_peers", n.maxPeers, "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}
		peer := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Errorw("readLoop panic", "peer", peer.ID, "recovered", r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}

// peerAddressFor derives the types.Address a gossiping peer is identified
// by for rate-limiting purposes. Peers are keyed by their remote socket
// string rather than a validator identity, so the watchtower's limiter
// buckets by a hash of that string.
func peerAddressFor(peer *Peer) types.Address {
	h := crypto.Hash([]byte(peer.ID))
	var addr types.Address
	copy(addr[:], h[:])
	return addr
}

func (n *Node) handleKnot(peer *Peer, msg Message) {
	k, err := thread.DecodeKnot(msg.Payload)
	if err != nil {
		n.log.Warnw("decode knot failed", "peer", peer.ID, "error", err)
		return
	}
	if n.watchtower == nil {
		return
	}
	proof, flagged := n.watchtower.ObserveKnot(peerAddressFor(peer), k)
	if !flagged {
		return
	}
	n.submitFraudProof(proof)
}

func (n *Node) handleCommitment(peer *Peer, msg Message) {
	c, err := weave.DecodeCommitment(msg.Payload)
	if err != nil {
		n.log.Warnw("decode commitment failed", "peer", peer.ID, "error", err)
		return
	}
	if n.watchtower != nil {
		if proof, flagged := n.watchtower.CheckCommitment(c.Header); flagged {
			n.submitFraudProof(proof)
		}
	}
	entry := &weave.MempoolEntry{
		Kind:        weave.ItemCommitment,
		Commitment:  c,
		ReceivedAt:  time.Now().UnixNano(),
		FeeBid:      weave.FeePerCommitment,
		Fingerprint: c.Fingerprint(),
	}
	if err := n.mempool.Insert(entry); err != nil {
		n.log.Debugw("mempool insert commitment", "error", err)
	}
}

func (n *Node) handleFraudProof(peer *Peer, msg Message) {
	p, err := weave.DecodeFraudProof(msg.Payload)
	if err != nil {
		n.log.Warnw("decode fraud proof failed", "peer", peer.ID, "error", err)
		return
	}
	n.submitFraudProof(p)
}

func (n *Node) submitFraudProof(p *weave.FraudProof) {
	entry := &weave.MempoolEntry{
		Kind:        weave.ItemFraudProof,
		FraudProof:  p,
		ReceivedAt:  time.Now().UnixNano(),
		FeeBid:      types.NewAmountFromUint64(0),
		Fingerprint: p.Fingerprint(),
	}
	if err := n.mempool.Insert(entry); err != nil {
		n.log.Debugw("mempool insert fraud proof", "error", err)
	}
}

func (n *Node) handlePropose(peer *Peer, msg Message) {
	if n.engine == nil {
		return
	}
	p, err := consensus.DecodePropose(msg.Payload)
	if err != nil {
		n.log.Warnw("decode propose failed", "peer", peer.ID, "error", err)
		return
	}
	vote, err := n.engine.OnPropose(p)
	if err != nil {
		n.log.Warnw("reject proposal", "height", p.Height, "view", p.View, "error", err)
		return
	}
	n.BroadcastVote(vote)
}

func (n *Node) handleVote(peer *Peer, msg Message) {
	if n.engine == nil {
		return
	}
	v, err := consensus.DecodeVote(msg.Payload)
	if err != nil {
		n.log.Warnw("decode vote failed", "peer", peer.ID, "error", err)
		return
	}
	qc, nextVote, err := n.engine.RecordVote(v)
	if err != nil {
		n.log.Debugw("record vote rejected", "error", err)
		return
	}
	if qc != nil && nextVote != nil {
		n.BroadcastVote(nextVote)
	}
	// Finalize is a no-op error (wrong phase) until the commit QC lands;
	// every vote tries it so the node that observes the final commit vote
	// (leader or replica) finalizes without a separate trigger message.
	block, err := n.engine.Finalize()
	if err != nil {
		return
	}
	if n.blockStore != nil {
		if err := n.blockStore.PutBlock(block); err != nil {
			n.log.Errorw("persist finalized block failed", "height", block.Height, "error", err)
		} else if err := n.blockStore.SetTipHeight(block.Height); err != nil {
			n.log.Errorw("persist tip height failed", "height", block.Height, "error", err)
		}
	}
	n.log.Infow("block finalized", "height", block.Height)
}

// ProposeAndBroadcast builds a block proposal from the mempool, records
// the proposer's own prepare vote locally, and gossips both the
// proposal and that vote to every peer. Call this on the node holding
// the leader's engine once Engine.IsLeader reports true for the round.
func (n *Node) ProposeAndBroadcast(limit int, at types.Timestamp) error {
	if n.engine == nil {
		return fmt.Errorf("node has no consensus engine")
	}
	block, err := n.engine.ProposeBlock(limit, at)
	if err != nil {
		return err
	}
	propose := &consensus.Propose{Height: block.Height, View: n.engine.View(), Block: block}
	n.BroadcastPropose(propose)
	vote, err := n.engine.OnPropose(propose)
	if err != nil {
		return err
	}
	n.BroadcastVote(vote)
	return nil
}

// handleViewChange logs an observed view-change so operators can see a
// stalled round; each replica still advances its own view independently
// on its own ViewTimeout, since the engine has no quorum-of-view-changes
// acceptance path of its own.
func (n *Node) handleViewChange(peer *Peer, msg Message) {
	if n.engine == nil {
		return
	}
	vc, err := consensus.DecodeViewChange(msg.Payload)
	if err != nil {
		n.log.Warnw("decode view change failed", "peer", peer.ID, "error", err)
		return
	}
	n.log.Infow("peer view-changed", "peer", peer.ID, "height", vc.Height, "new_view", vc.NewView, "voter", vc.Voter)
}
