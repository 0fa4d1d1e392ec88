package weave

import (
	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
)

// Encode serializes a commitment canonically for gossip: the thread header
// plus an optional owner pubkey (all-zero when omitted, which is only ever
// valid after a thread's first commitment: on the first one
// ApplyCommitment requires it to be present and nonzero).
func (c *Commitment) Encode() []byte {
	e := types.NewEncoder()
	e.WriteBytes(c.Header.Encode())
	e.WritePublicKey(c.OwnerPubKey)
	return e.Bytes()
}

// DecodeCommitment parses a Commitment produced by Encode.
func DecodeCommitment(b []byte) (*Commitment, error) {
	d := types.NewDecoder(b)
	headerBytes, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	header, err := thread.DecodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	owner, err := d.ReadPublicKey()
	if err != nil {
		return nil, err
	}
	if err := d.Done(); err != nil {
		return nil, err
	}
	return &Commitment{Header: header, OwnerPubKey: owner}, nil
}

// Encode serializes the QC's vote tally: height, view, block hash, phase, and
// every (voter, signature) pair in a deterministic address-sorted order so
// two nodes holding the same vote set produce identical bytes.
func (qc *QC) Encode() []byte {
	e := types.NewEncoder()
	e.WriteUint64(qc.Height)
	e.WriteUint64(qc.View)
	e.WriteHash(qc.BlockHash)
	e.WriteByte(byte(qc.Phase))
	addrs := sortedAddresses(qc.Sigs)
	e.WriteUint64(uint64(len(addrs)))
	for _, a := range addrs {
		e.WriteAddress(a)
		e.WriteSignature(qc.Sigs[a])
	}
	return e.Bytes()
}

func DecodeQC(b []byte) (*QC, error) {
	d := types.NewDecoder(b)
	qc := &QC{Sigs: make(map[types.Address]types.Signature)}
	var err error
	if qc.Height, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if qc.View, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if qc.BlockHash, err = d.ReadHash(); err != nil {
		return nil, err
	}
	phase, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	qc.Phase = Phase(phase)
	n, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		addr, err := d.ReadAddress()
		if err != nil {
			return nil, err
		}
		sig, err := d.ReadSignature()
		if err != nil {
			return nil, err
		}
		qc.Sigs[addr] = sig
	}
	if err := d.Done(); err != nil {
		return nil, err
	}
	return qc, nil
}

func sortedAddresses(m map[types.Address]types.Signature) []types.Address {
	out := make([]types.Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && lessAddressBytes(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func lessAddressBytes(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Encode serializes a full block body for network gossip.
func (b *Block) Encode() []byte {
	e := types.NewEncoder()
	e.WriteFixed(b.headerBytes())
	e.WriteSignature(b.Signature)

	e.WriteUint64(uint64(len(b.Commitments)))
	for _, c := range b.Commitments {
		e.WriteBytes(c.Encode())
	}
	e.WriteUint64(uint64(len(b.FraudProofs)))
	for _, p := range b.FraudProofs {
		e.WriteBytes(p.Encode())
	}
	e.WriteUint64(uint64(len(b.LoomRegs)))
	for _, r := range b.LoomRegs {
		e.WriteHash(r.LoomID)
		e.WriteAddress(r.Operator)
	}
	e.WriteUint64(uint64(len(b.NameOps)))
	for _, op := range b.NameOps {
		e.WriteByte(byte(op.Kind))
		e.WriteString(op.Name)
		e.WriteAddress(op.Addr)
	}

	if b.QuorumCert != nil {
		e.WriteByte(1)
		e.WriteBytes(b.QuorumCert.Encode())
	} else {
		e.WriteByte(0)
	}
	return e.Bytes()
}

// DecodeBlock parses a Block produced by Encode.
func DecodeBlock(raw []byte) (*Block, error) {
	d := types.NewDecoder(raw)
	blk := &Block{}
	var err error
	if blk.Height, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if blk.ParentHash, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if blk.StateRoot, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if blk.ThreadsRoot, err = d.ReadHash(); err != nil {
		return nil, err
	}
	ts, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	blk.Timestamp = types.Timestamp(ts)
	if blk.Proposer, err = d.ReadAddress(); err != nil {
		return nil, err
	}
	if blk.Signature, err = d.ReadSignature(); err != nil {
		return nil, err
	}

	numCommits, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numCommits; i++ {
		raw, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		c, err := DecodeCommitment(raw)
		if err != nil {
			return nil, err
		}
		blk.Commitments = append(blk.Commitments, c)
	}

	numProofs, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numProofs; i++ {
		raw, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		p, err := DecodeFraudProof(raw)
		if err != nil {
			return nil, err
		}
		blk.FraudProofs = append(blk.FraudProofs, p)
	}

	numRegs, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numRegs; i++ {
		reg := &LoomRegistrationTx{}
		if reg.LoomID, err = d.ReadHash(); err != nil {
			return nil, err
		}
		if reg.Operator, err = d.ReadAddress(); err != nil {
			return nil, err
		}
		blk.LoomRegs = append(blk.LoomRegs, reg)
	}

	numOps, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numOps; i++ {
		kindByte, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		addr, err := d.ReadAddress()
		if err != nil {
			return nil, err
		}
		blk.NameOps = append(blk.NameOps, &NameOpTx{Kind: NameOpKind(kindByte), Name: name, Addr: addr})
	}

	hasQC, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	if hasQC == 1 {
		qcBytes, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		qc, err := DecodeQC(qcBytes)
		if err != nil {
			return nil, err
		}
		blk.QuorumCert = qc
	}

	if err := d.Done(); err != nil {
		return nil, err
	}
	return blk, nil
}
