package consensus

import (
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

// Encode serializes a Propose message for gossip.
func (p *Propose) Encode() []byte {
	e := types.NewEncoder()
	e.WriteUint64(p.Height)
	e.WriteUint64(p.View)
	e.WriteBytes(p.Block.Encode())
	return e.Bytes()
}

// DecodePropose parses a Propose produced by Encode.
func DecodePropose(b []byte) (*Propose, error) {
	d := types.NewDecoder(b)
	p := &Propose{}
	var err error
	if p.Height, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if p.View, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	blockBytes, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	if p.Block, err = weave.DecodeBlock(blockBytes); err != nil {
		return nil, err
	}
	if err := d.Done(); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode serializes a Vote message for gossip.
func (v *Vote) Encode() []byte {
	e := types.NewEncoder()
	e.WriteUint64(v.Height)
	e.WriteUint64(v.View)
	e.WriteByte(byte(v.Phase))
	e.WriteHash(v.BlockHash)
	e.WriteAddress(v.Voter)
	e.WriteSignature(v.Sig)
	return e.Bytes()
}

// DecodeVote parses a Vote produced by Encode.
func DecodeVote(b []byte) (*Vote, error) {
	d := types.NewDecoder(b)
	v := &Vote{}
	var err error
	if v.Height, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if v.View, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	phase, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	v.Phase = weave.Phase(phase)
	if v.BlockHash, err = d.ReadHash(); err != nil {
		return nil, err
	}
	if v.Voter, err = d.ReadAddress(); err != nil {
		return nil, err
	}
	if v.Sig, err = d.ReadSignature(); err != nil {
		return nil, err
	}
	if err := d.Done(); err != nil {
		return nil, err
	}
	return v, nil
}

// Encode serializes a ViewChange message for gossip.
func (vc *ViewChange) Encode() []byte {
	e := types.NewEncoder()
	e.WriteUint64(vc.Height)
	e.WriteUint64(vc.NewView)
	if vc.HighestQC != nil {
		e.WriteByte(1)
		e.WriteBytes(vc.HighestQC.Encode())
	} else {
		e.WriteByte(0)
	}
	e.WriteAddress(vc.Voter)
	e.WriteSignature(vc.Sig)
	return e.Bytes()
}

// DecodeViewChange parses a ViewChange produced by Encode.
func DecodeViewChange(b []byte) (*ViewChange, error) {
	d := types.NewDecoder(b)
	vc := &ViewChange{}
	var err error
	if vc.Height, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if vc.NewView, err = d.ReadUint64(); err != nil {
		return nil, err
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
		if vc.HighestQC, err = weave.DecodeQC(qcBytes); err != nil {
			return nil, err
		}
	}
	if vc.Voter, err = d.ReadAddress(); err != nil {
		return nil, err
	}
	if vc.Sig, err = d.ReadSignature(); err != nil {
		return nil, err
	}
	if err := d.Done(); err != nil {
		return nil, err
	}
	return vc, nil
}
