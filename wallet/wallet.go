package wallet

import (
	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
)

// Wallet holds a key pair and builds signed knots against a local thread.
type Wallet struct {
	priv   crypto.PrivateKey
	pub    types.PublicKey
	thread *thread.Thread
}

// New creates a Wallet from an existing private key, tracking a fresh
// local Thread rooted at the key's derived ThreadID.
func New(priv crypto.PrivateKey) *Wallet {
	pub := priv.Public()
	return &Wallet{priv: priv, pub: pub, thread: thread.New(pub)}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// FromMnemonic recreates a Wallet deterministically from a BIP-39 phrase.
func FromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	priv, _, err := crypto.KeyPairFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the ed25519 public key.
func (w *Wallet) PubKey() types.PublicKey {
	return w.pub
}

// Address returns the wallet's derived address.
func (w *Wallet) Address() types.Address {
	return crypto.DeriveAddress(w.pub)
}

// ThreadID returns the thread ID this wallet owns.
func (w *Wallet) ThreadID() types.ThreadID {
	return w.thread.ID()
}

// Thread returns the wallet's local thread, so callers can inspect its
// head knot or replay its state tree.
func (w *Wallet) Thread() *thread.Thread {
	return w.thread
}

// AppendKnot builds, signs, and locally appends the next knot carrying
// ops, returning the appended knot for gossip to the network.
func (w *Wallet) AppendKnot(ops []thread.Operation, at types.Timestamp, loomActive func(types.LoomID) bool) (*thread.Knot, error) {
	head := w.thread.Head()
	version := uint64(0)
	var prevHash types.Hash
	if head != nil {
		version = head.Version + 1
		prevHash = head.Hash()
	}
	knot := &thread.Knot{
		ThreadID:   w.thread.ID(),
		Version:    version,
		PrevHash:   prevHash,
		Timestamp:  at,
		Operations: ops,
	}
	knot.Sign(w.priv)
	if err := w.thread.Append(knot, loomActive); err != nil {
		return nil, err
	}
	return knot, nil
}

// Transfer builds a single-operation knot moving amount of tokenID to to.
func (w *Wallet) Transfer(to types.Address, tokenID types.TokenID, amount types.Amount, at types.Timestamp) (*thread.Knot, error) {
	op := thread.Operation{Type: thread.OpTransfer, Transfer: &thread.TransferOp{To: to, TokenID: tokenID, Amount: amount}}
	return w.AppendKnot([]thread.Operation{op}, at, nil)
}

// PublishHeader signs a ThreadHeader committing the thread's state at
// version, ready to be wrapped in a weave.Commitment and broadcast.
func (w *Wallet) PublishHeader(version uint64, at types.Timestamp) (*thread.Header, error) {
	return w.thread.PublishHeader(version, w.priv, at)
}
