package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/errs"
	"golang.org/x/crypto/pbkdf2"
)

type keystoreFile struct {
	PubKey     string `json:"pub_key"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipher_text"`
}

// SaveKey encrypts priv with password and writes it to path.
// Key derivation: PBKDF2-HMAC-SHA256(password, salt), 210,000 rounds.
func SaveKey(path, password string, priv crypto.PrivateKey) error {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	key := deriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	cipherText := gcm.Seal(nil, nonce, priv, nil)

	pub := priv.Public()
	ks := keystoreFile{
		PubKey:     pub.String(),
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		CipherText: hex.EncodeToString(cipherText),
	}
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadKey decrypts the keystore at path using password.
func LoadKey(path, password string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(ks.Salt)
	if err != nil {
		return nil, err
	}
	nonce, err := hex.DecodeString(ks.Nonce)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(ks.CipherText)
	if err != nil {
		return nil, err
	}

	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	privBytes, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong password or corrupted keystore", errs.ErrAuthentication)
	}
	return crypto.PrivateKey(privBytes), nil
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, 210_000, 32, sha256.New)
}

// NewMnemonicWallet generates a fresh BIP-39 mnemonic and the wallet it
// derives, so a caller can persist the words as the sole recovery path
// instead of (or alongside) an encrypted keystore file.
func NewMnemonicWallet() (mnemonic string, w *Wallet, err error) {
	mnemonic, err = crypto.NewMnemonic()
	if err != nil {
		return "", nil, err
	}
	w, err = FromMnemonic(mnemonic, "")
	if err != nil {
		return "", nil, err
	}
	return mnemonic, w, nil
}

// SplitRecovery shards priv into n Shamir shares such that any k reconstruct
// it, for distributing cold-storage backups across separate custodians.
func SplitRecovery(priv crypto.PrivateKey, k, n int) ([]crypto.ShamirShare, error) {
	return crypto.ShamirSplit(priv, k, n)
}

// CombineRecovery reconstructs a private key from k or more Shamir shares
// produced by SplitRecovery.
func CombineRecovery(shares []crypto.ShamirShare) (crypto.PrivateKey, error) {
	raw, err := crypto.ShamirCombine(shares)
	if err != nil {
		return nil, err
	}
	return crypto.PrivateKey(raw), nil
}
