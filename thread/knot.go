package thread

import (
	"fmt"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/types"
)

// Knot is one versioned, signed state transition within a thread.
type Knot struct {
	ThreadID   types.ThreadID
	Version    uint64
	PrevHash   types.Hash
	Timestamp  types.Timestamp
	Operations []Operation
	Signature  types.Signature
}

// CanonicalBytes returns the deterministic encoding of every field except
// Signature — the message that Sign/Verify operate over.
func (k *Knot) CanonicalBytes() []byte {
	e := types.NewEncoder()
	e.WriteHash(k.ThreadID)
	e.WriteUint64(k.Version)
	e.WriteHash(k.PrevHash)
	e.WriteUint64(uint64(k.Timestamp))
	e.WriteUint64(uint64(len(k.Operations)))
	for _, op := range k.Operations {
		op.encode(e)
	}
	return e.Bytes()
}

// Hash returns the knot's content hash over CanonicalBytes || Signature,
// i.e. the identity used as the next knot's PrevHash.
func (k *Knot) Hash() types.Hash {
	return crypto.HashConcat(k.CanonicalBytes(), k.Signature[:])
}

// Sign computes and sets Signature. The message signed is
// BLAKE3(CanonicalBytes()) per the crypto primitives contract (sign first
// hashes to 32 bytes, then ed25519-signs the digest).
func (k *Knot) Sign(priv crypto.PrivateKey) {
	digest := crypto.Hash(k.CanonicalBytes())
	k.Signature = priv.Sign(digest[:])
}

// Verify checks the knot's signature against ownerPubkey.
func (k *Knot) Verify(ownerPubkey types.PublicKey) error {
	digest := crypto.Hash(k.CanonicalBytes())
	return crypto.Verify(ownerPubkey, digest[:], k.Signature)
}

// Encode writes the full knot, including Signature, in canonical form.
func (k *Knot) Encode() []byte {
	e := types.NewEncoder()
	e.WriteFixed(k.CanonicalBytes())
	e.WriteSignature(k.Signature)
	return e.Bytes()
}

// DecodeKnot parses a knot produced by Encode, rejecting trailing bytes.
func DecodeKnot(b []byte) (*Knot, error) {
	d := types.NewDecoder(b)
	k := &Knot{}
	var err error
	if k.ThreadID, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if k.Version, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if k.PrevHash, err = d.ReadHash(); err != nil {
		return nil, err
	}
	var ts uint64
	if ts, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	k.Timestamp = types.Timestamp(ts)
	opCount, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	k.Operations = make([]Operation, 0, opCount)
	for i := uint64(0); i < opCount; i++ {
		op, err := decodeOperation(d)
		if err != nil {
			return nil, err
		}
		k.Operations = append(k.Operations, op)
	}
	if k.Signature, err = d.ReadSignature(); err != nil {
		return nil, err
	}
	if err := d.Done(); err != nil {
		return nil, err
	}
	return k, nil
}

// ValidateAgainst checks k against the thread's current head: version
// must be exactly head+1 (or 0 for an empty thread), PrevHash must equal
// the head knot's hash (or zero for genesis), the signature must verify
// against ownerPubkey, and every operation must pass its registered
// validator.
func (k *Knot) ValidateAgainst(head *Knot, ownerPubkey types.PublicKey, loomActive func(types.LoomID) bool) error {
	wantVersion := uint64(0)
	wantPrevHash := types.Hash{}
	if head != nil {
		wantVersion = head.Version + 1
		wantPrevHash = head.Hash()
	}
	if k.Version != wantVersion {
		return fmt.Errorf("%w: knot version %d, expected %d", ErrBadVersion, k.Version, wantVersion)
	}
	if k.PrevHash != wantPrevHash {
		return fmt.Errorf("%w: knot prev_hash mismatch at version %d", ErrBadPrevHash, k.Version)
	}
	if err := k.Verify(ownerPubkey); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	for i, op := range k.Operations {
		if err := validateOperation(op, loomActive); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return nil
}

// Sentinel errors for Thread.Append, wrapping errs.ErrValidation so
// callers can classify the category while also pattern-matching the
// specific rejection reason the spec names.
var (
	ErrBadVersion   = fmt.Errorf("%w: bad version", errs.ErrValidation)
	ErrBadPrevHash  = fmt.Errorf("%w: bad prev_hash", errs.ErrValidation)
	ErrBadSignature = fmt.Errorf("%w: bad signature", errs.ErrValidation)
)
