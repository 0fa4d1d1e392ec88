package wallet_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/wallet"
)

func TestGenerateAppendKnotNameSet(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	op := thread.Operation{Type: thread.OpNameSet, NameSet: &thread.NameSetOp{Name: "alice"}}
	knot, err := w.AppendKnot([]thread.Operation{op}, types.Timestamp(1), nil)
	if err != nil {
		t.Fatalf("append knot: %v", err)
	}
	if knot.Version != 0 {
		t.Fatalf("expected genesis knot to be version 0, got %d", knot.Version)
	}
	if w.Thread().Head().Hash() != knot.Hash() {
		t.Fatalf("expected thread head to be the appended knot")
	}
}

func TestPublishHeaderMatchesThreadState(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	op := thread.Operation{Type: thread.OpNameSet, NameSet: &thread.NameSetOp{Name: "bob"}}
	if _, err := w.AppendKnot([]thread.Operation{op}, types.Timestamp(1), nil); err != nil {
		t.Fatalf("append knot: %v", err)
	}

	header, err := w.PublishHeader(0, types.Timestamp(2))
	if err != nil {
		t.Fatalf("publish header: %v", err)
	}
	if header.ThreadID != w.ThreadID() || header.Version != 0 {
		t.Fatalf("unexpected header fields")
	}
	if err := header.Verify(w.PubKey()); err != nil {
		t.Fatalf("header signature should verify: %v", err)
	}
}

func TestKeystoreSaveLoadRoundTrip(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := wallet.SaveKey(path, "correct horse battery staple", w.PrivKey()); err != nil {
		t.Fatalf("save key: %v", err)
	}

	loaded, err := wallet.LoadKey(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	if loaded.Public() != w.PubKey() {
		t.Fatalf("loaded key does not match saved key")
	}
}

func TestKeystoreWrongPasswordFails(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := wallet.SaveKey(path, "right-password", w.PrivKey()); err != nil {
		t.Fatalf("save key: %v", err)
	}
	if _, err := wallet.LoadKey(path, "wrong-password"); err == nil {
		t.Fatalf("expected wrong password to fail to decrypt")
	}
}

func TestMnemonicWalletDeterministic(t *testing.T) {
	mnemonic, w1, err := wallet.NewMnemonicWallet()
	if err != nil {
		t.Fatalf("new mnemonic wallet: %v", err)
	}
	w2, err := wallet.FromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("from mnemonic: %v", err)
	}
	if w1.PubKey() != w2.PubKey() {
		t.Fatalf("expected the same mnemonic to rederive the same key")
	}
}

func TestShamirRecoveryRoundTrip(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	shares, err := wallet.SplitRecovery(w.PrivKey(), 3, 5)
	if err != nil {
		t.Fatalf("split recovery: %v", err)
	}
	recovered, err := wallet.CombineRecovery(shares[:3])
	if err != nil {
		t.Fatalf("combine recovery: %v", err)
	}
	if recovered.Public() != w.PubKey() {
		t.Fatalf("recovered key does not match original")
	}
}

func TestKeystoreFilePermissions(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := wallet.SaveKey(path, "pw", w.PrivKey()); err != nil {
		t.Fatalf("save key: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected keystore file mode 0600, got %o", info.Mode().Perm())
	}
}
