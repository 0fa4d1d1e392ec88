// Package types defines the fixed-width primitive types shared across the
// thread, loom, weave, and spindle packages: addresses, public keys,
// signatures, content hashes, and the 128-bit Amount used for balances and
// fee arithmetic.
package types

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Address is the 20-byte account identifier: the first 20 bytes of
// BLAKE3(pubkey).
type Address [20]byte

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == Address{} }

// AddressFromHex decodes a 40-char hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address hex: %w", err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("address must be %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// PublicKey is a raw 32-byte Ed25519 public key.
type PublicKey [32]byte

func (p PublicKey) String() string { return hex.EncodeToString(p[:]) }

func (p PublicKey) IsZero() bool { return p == PublicKey{} }

func PublicKeyFromHex(s string) (PublicKey, error) {
	var p PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(b) != len(p) {
		return p, fmt.Errorf("pubkey must be %d bytes, got %d", len(p), len(b))
	}
	copy(p[:], b)
	return p, nil
}

// Signature is a raw 64-byte Ed25519 signature.
type Signature [64]byte

func (s Signature) String() string { return hex.EncodeToString(s[:]) }

func (s Signature) IsZero() bool { return s == Signature{} }

func SignatureFromHex(h string) (Signature, error) {
	var s Signature
	b, err := hex.DecodeString(h)
	if err != nil {
		return s, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(b) != len(s) {
		return s, fmt.Errorf("signature must be %d bytes, got %d", len(s), len(b))
	}
	copy(s[:], b)
	return s, nil
}

// Hash is a 32-byte BLAKE3 digest, used for block hashes, state roots, and
// merkle tree nodes.
type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ThreadID identifies a thread. It equals the owning address's derivation
// hash, i.e. ThreadID(addr) == Hash(addr-deriving pubkey).
type ThreadID = Hash

// LoomID identifies a deployed loom program: BLAKE3 of its canonical
// bytecode plus deployer address and a nonce, assigned at JoinLoom /
// deployment time.
type LoomID = Hash

// TokenID identifies a fungible asset tracked inside thread state trees.
// TokenID{} (all-zero) is the reserved native token.
type TokenID = Hash

// NativeTokenID is the reserved all-zero TokenID for the chain's native
// asset.
var NativeTokenID = TokenID{}

// Timestamp is a Unix time in whole seconds.
type Timestamp uint64

// Amount is a 128-bit unsigned integer used for balances, fees, and stake.
// It is backed by uint256.Int (the only fixed-width big-integer type found
// in the example pack) but every operation here enforces a 128-bit ceiling:
// values that would not round-trip through the 16-byte canonical encoding
// are rejected rather than silently wrapped.
type Amount struct {
	i uint256.Int
}

var amountCeiling = func() uint256.Int {
	var max128 uint256.Int
	max128.SetAllOne()
	max128.Rsh(&max128, 128)
	max128.Not(&max128)
	return max128
}()

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{}

// NewAmountFromUint64 builds an Amount from a uint64.
func NewAmountFromUint64(v uint64) Amount {
	var a Amount
	a.i.SetUint64(v)
	return a
}

// NewAmountFromDecimal parses a base-10 string into an Amount, rejecting values
// that exceed the 128-bit ceiling.
func NewAmountFromDecimal(s string) (Amount, error) {
	var a Amount
	if _, ok := a.i.SetString(s); !ok {
		return a, fmt.Errorf("%w: invalid decimal amount %q", errInvalidAmount, s)
	}
	if a.i.Gt(&amountCeiling) {
		return Amount{}, fmt.Errorf("%w: amount %q exceeds 128-bit range", errInvalidAmount, s)
	}
	return a, nil
}

var errInvalidAmount = fmt.Errorf("invalid amount")

func (a Amount) String() string { return a.i.Dec() }

func (a Amount) IsZero() bool { return a.i.IsZero() }

func (a Amount) Cmp(b Amount) int { return a.i.Cmp(&b.i) }

func (a Amount) Uint64() uint64 { return a.i.Uint64() }

// ToBig returns a's value as a math/big.Int, for consumers (such as the
// consensus package's stake-weighted leader draw) that need arbitrary
// modular arithmetic uint256 doesn't expose directly.
func (a Amount) ToBig() *big.Int { return a.i.ToBig() }

// Add returns a+b, erroring on overflow past the 128-bit ceiling.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	overflowed := out.i.AddOverflow(&a.i, &b.i)
	if overflowed || out.i.Gt(&amountCeiling) {
		return Amount{}, fmt.Errorf("%w: amount addition overflow", errInvalidAmount)
	}
	return out, nil
}

// Sub returns a-b, erroring if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.i.Lt(&b.i) {
		return Amount{}, fmt.Errorf("%w: amount underflow", errInvalidAmount)
	}
	var out Amount
	out.i.Sub(&a.i, &b.i)
	return out, nil
}

// MulDiv computes floor(a*num/den), used for fee-market and slashing
// percentage arithmetic, without intermediate overflow.
func (a Amount) MulDiv(num, den uint64) (Amount, error) {
	if den == 0 {
		return Amount{}, fmt.Errorf("%w: division by zero", errInvalidAmount)
	}
	var wide, n, d uint256.Int
	n.SetUint64(num)
	d.SetUint64(den)
	if wide.MulOverflow(&a.i, &n) {
		return Amount{}, fmt.Errorf("%w: mul-div overflow", errInvalidAmount)
	}
	wide.Div(&wide, &d)
	if wide.Gt(&amountCeiling) {
		return Amount{}, fmt.Errorf("%w: mul-div result exceeds 128-bit range", errInvalidAmount)
	}
	return Amount{i: wide}, nil
}

// Bytes16 returns the canonical 16-byte little-endian encoding used in
// knot and block serialization.
func (a Amount) Bytes16() [16]byte {
	var out [16]byte
	b32 := a.i.Bytes32()
	// uint256.Bytes32 is big-endian; the low 16 bytes hold our 128-bit value.
	for i := 0; i < 16; i++ {
		out[i] = b32[31-i]
	}
	return out
}

// AmountFromBytes16 decodes the canonical little-endian 16-byte encoding.
func AmountFromBytes16(b [16]byte) Amount {
	var a Amount
	var be [32]byte
	for i := 0; i < 16; i++ {
		be[31-i] = b[i]
	}
	a.i.SetBytes(be[:])
	return a
}
