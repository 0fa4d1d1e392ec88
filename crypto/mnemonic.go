package crypto

import (
	"fmt"

	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/types"
	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the BIP-39 entropy size used for new wallets,
// producing a 24-word mnemonic.
const MnemonicEntropyBits = 256

// NewMnemonic generates a fresh BIP-39 mnemonic phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("derive mnemonic: %w", err)
	}
	return mnemonic, nil
}

// KeyPairFromMnemonic derives a single ed25519 account from a BIP-39
// mnemonic and optional passphrase. Ed25519 has no standard BIP-32 HD
// derivation path analogous to secp256k1, so this module supports a
// single account per mnemonic: the BIP-39 seed (PBKDF2-HMAC-SHA512 over
// the mnemonic, as specified by BIP-39 itself) is truncated to the
// ed25519 seed size and fed directly to NewKeyFromSeed.
func KeyPairFromMnemonic(mnemonic, passphrase string) (PrivateKey, types.PublicKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, types.PublicKey{}, fmt.Errorf("%w: invalid mnemonic checksum", errs.ErrValidation)
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return KeyPairFromSeed(seed[:32])
}
