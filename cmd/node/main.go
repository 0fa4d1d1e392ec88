// Command node starts a norn node: it opens local storage, replays or
// seeds the weave, and drives HotStuff-style consensus and P2P gossip
// against its peers.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nornlabs/norn/config"
	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/crypto/certgen"
	"github.com/nornlabs/norn/events"
	"github.com/nornlabs/norn/loom"
	"github.com/nornlabs/norn/names"
	"github.com/nornlabs/norn/network"
	"github.com/nornlabs/norn/nodeapi"
	"github.com/nornlabs/norn/spindle"
	"github.com/nornlabs/norn/storage"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/wallet"
	"github.com/nornlabs/norn/weave"
	"github.com/nornlabs/norn/weave/consensus"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node ID from config)")
	flag.Parse()

	// Read keystore password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("NORN_PASSWORD")
	if password == "" {
		log.Println("WARNING: NORN_PASSWORD not set — keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key: %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- generate certs mode ----
	if *genCerts != "" {
		cfgForCerts, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if err := certgen.GenerateAll(*genCerts, cfgForCerts.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfgForCerts.NodeID)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- load validator key ----
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}
	self := privKey.Public()
	selfAddr := crypto.DeriveAddress(self)

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	blockStore := weave.NewBlockStore(db)

	// ---- initialise weave state ----
	state := weave.NewState(weave.MinFee, 1000)
	emitter := events.NewEmitter()
	state.SetEmitter(emitter)

	looms := loom.NewRegistry()
	loomStore := loom.NewStore(db)
	snapshots := func(id types.LoomID) *loom.SnapshotReader {
		snap, err := loomStore.Snapshot(id)
		if err != nil {
			return &loom.SnapshotReader{Data: map[string][]byte{}}
		}
		return snap
	}

	tip, err := blockStore.TipHeight()
	if err != nil {
		log.Fatalf("read tip height: %v", err)
	}

	parentHash := types.Hash{}
	if tip == 0 {
		if err := config.ApplyGenesis(cfg, state); err != nil {
			log.Fatalf("genesis: %v", err)
		}
		log.Printf("Genesis applied: chain_id=%s validators=%d", cfg.Genesis.ChainID, len(cfg.Genesis.Validators))
	} else {
		for h := uint64(1); h <= tip; h++ {
			block, err := blockStore.GetBlock(h)
			if err != nil {
				log.Fatalf("replay block %d: %v", h, err)
			}
			if err := state.ApplyBlock(block, looms, snapshots, loom.GasScheduleV1); err != nil {
				log.Fatalf("replay block %d: %v", h, err)
			}
			parentHash = block.Hash()
		}
		log.Printf("Replayed chain to height %d", tip)
	}

	// ---- supporting services ----
	nameRegistry := names.New(db, emitter)
	watchtower := spindle.New(selfAddr, spindle.DefaultCacheSize)
	mempool := weave.NewMempool(10000)
	svc := nodeapi.New(state, looms, loomStore, nameRegistry, loom.GasScheduleV1, cfg.Genesis.ChainID)
	_ = svc // reachable over whatever transport wraps nodeapi.Service; none is wired by this binary

	maxBlockTxs := cfg.MaxBlockTxs
	if maxBlockTxs <= 0 {
		maxBlockTxs = 500
	}

	// ---- consensus ----
	engine := consensus.New(state, looms, mempool, snapshots, loom.GasScheduleV1, selfAddr, privKey, parentHash)

	// ---- TLS ----
	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	// ---- network ----
	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(cfg.NodeID, p2pAddr, mempool, watchtower, engine, blockStore, tlsCfg)
	validatorPubKeys := func() map[types.Address]types.PublicKey {
		out := make(map[types.Address]types.PublicKey)
		for _, v := range state.ActiveValidators() {
			out[v.Address] = v.PubKey
		}
		return out
	}
	quorum := func() int { return consensus.QuorumSize(len(state.ActiveValidators())) }
	syncer := network.NewSyncer(node, state, blockStore, looms, snapshots, loom.GasScheduleV1, validatorPubKeys, quorum)

	if err := node.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer node.Stop()
	log.Printf("P2P listening on %s", p2pAddr)

	// ---- connect to seed peers ----
	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.ID, sp.Addr); err != nil {
			log.Printf("seed peer %s (%s): %v", sp.ID, sp.Addr, err)
			continue
		}
		if peer := node.Peer(sp.ID); peer != nil {
			if err := syncer.RequestBlocks(peer, state.Height()+1); err != nil {
				log.Printf("sync request to %s: %v", sp.ID, err)
			}
		}
		log.Printf("Connected to seed peer %s (%s)", sp.ID, sp.Addr)
	}

	// ---- consensus driving loop ----
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runConsensusLoop(node, engine, maxBlockTxs, done)
	}()
	log.Printf("Consensus running (validator: %s)", self.String())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	close(done)
	wg.Wait()
	log.Println("Shutdown complete.")
}

// runConsensusLoop drives the local engine forward: on every tick it
// proposes if the node is the current leader and has not already done so
// for this height/view, and escalates to a view change once the current
// view's timeout has elapsed with no progress.
func runConsensusLoop(node *network.Node, engine *consensus.Engine, maxBlockTxs int, done <-chan struct{}) {
	const tick = 250 * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lastHeight, lastView := engine.Height(), engine.View()
	viewDeadline := time.Now().Add(consensus.ViewTimeout(lastView))
	proposed := false

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			height, view := engine.Height(), engine.View()
			if height != lastHeight || view != lastView {
				lastHeight, lastView = height, view
				viewDeadline = now.Add(consensus.ViewTimeout(view))
				proposed = false
			}

			if engine.IsLeader() && !proposed {
				if err := node.ProposeAndBroadcast(maxBlockTxs, types.Timestamp(now.Unix())); err != nil {
					log.Printf("propose: %v", err)
				} else {
					proposed = true
				}
			}

			if now.After(viewDeadline) {
				vc := engine.OnViewChangeTimeout()
				node.BroadcastViewChange(vc)
				lastView = engine.View()
				viewDeadline = now.Add(consensus.ViewTimeout(lastView))
				proposed = false
			}
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
