package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/types"
)

// PrivateKey wraps a raw 64-byte ed25519 private key (seed || pubkey).
type PrivateKey []byte

// GenerateKeyPair generates a fresh ed25519 key pair.
func GenerateKeyPair() (PrivateKey, types.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, types.PublicKey{}, err
	}
	var tp types.PublicKey
	copy(tp[:], pub)
	return PrivateKey(priv), tp, nil
}

// KeyPairFromSeed deterministically derives an ed25519 key pair from a
// 32-byte seed, used by the mnemonic and Shamir-recovery paths.
func KeyPairFromSeed(seed []byte) (PrivateKey, types.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, types.PublicKey{}, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var tp types.PublicKey
	copy(tp[:], priv.Public().(ed25519.PublicKey))
	return PrivateKey(priv), tp, nil
}

// Public derives the ed25519 public key from the private key.
func (priv PrivateKey) Public() types.PublicKey {
	var tp types.PublicKey
	copy(tp[:], ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
	return tp
}

// Sign signs data, returning a fixed-width Signature.
func (priv PrivateKey) Sign(data []byte) types.Signature {
	sig := ed25519.Sign(ed25519.PrivateKey(priv), data)
	var ts types.Signature
	copy(ts[:], sig)
	return ts
}

// Verify checks sig against data under pub.
func Verify(pub types.PublicKey, data []byte, sig types.Signature) error {
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), data, sig[:]) {
		return fmt.Errorf("%w: signature verification failed", errs.ErrValidation)
	}
	return nil
}

// DeriveAddress computes the account address for a public key: the first
// 20 bytes of BLAKE3(pubkey).
func DeriveAddress(pub types.PublicKey) types.Address {
	h := HashBytes(pub[:])
	var addr types.Address
	copy(addr[:], h[:20])
	return addr
}
