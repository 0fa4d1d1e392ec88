package thread

import (
	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/types"
)

// Header is a ThreadHeader: the signed checkpoint of a thread's state at
// a version, the only thing ever committed into the weave.
type Header struct {
	ThreadID  types.ThreadID
	Version   uint64
	StateHash types.Hash
	Timestamp types.Timestamp
	Signature types.Signature
}

func (h *Header) canonicalBytes() []byte {
	e := types.NewEncoder()
	e.WriteHash(h.ThreadID)
	e.WriteUint64(h.Version)
	e.WriteHash(h.StateHash)
	e.WriteUint64(uint64(h.Timestamp))
	return e.Bytes()
}

// Sign computes and sets Signature over the header's canonical fields.
func (h *Header) Sign(priv crypto.PrivateKey) {
	digest := crypto.Hash(h.canonicalBytes())
	h.Signature = priv.Sign(digest[:])
}

// Verify checks the header's signature against ownerPubkey.
func (h *Header) Verify(ownerPubkey types.PublicKey) error {
	digest := crypto.Hash(h.canonicalBytes())
	return crypto.Verify(ownerPubkey, digest[:], h.Signature)
}

// Encode serializes the header, including Signature, canonically.
func (h *Header) Encode() []byte {
	e := types.NewEncoder()
	e.WriteFixed(h.canonicalBytes())
	e.WriteSignature(h.Signature)
	return e.Bytes()
}

// DecodeHeader parses a header produced by Encode, rejecting trailing bytes.
func DecodeHeader(b []byte) (*Header, error) {
	d := types.NewDecoder(b)
	h := &Header{}
	var err error
	if h.ThreadID, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if h.Version, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if h.StateHash, err = d.ReadHash(); err != nil {
		return nil, err
	}
	var ts uint64
	if ts, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	h.Timestamp = types.Timestamp(ts)
	if h.Signature, err = d.ReadSignature(); err != nil {
		return nil, err
	}
	if err := d.Done(); err != nil {
		return nil, err
	}
	return h, nil
}
