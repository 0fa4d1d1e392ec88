package weave

import (
	"fmt"

	"github.com/nornlabs/norn/thread"
	"github.com/nornlabs/norn/types"
)

// Encode serializes a FraudProof for network gossip. Only the variant
// named by Kind is written; the others are always nil on a well-formed
// proof.
func (p *FraudProof) Encode() []byte {
	e := types.NewEncoder()
	e.WriteByte(byte(p.Kind))
	e.WriteAddress(p.Submitter)

	switch p.Kind {
	case FraudDoubleKnot:
		d := p.DoubleKnot
		e.WriteHash(d.ThreadID)
		e.WriteBytes(d.KnotA.Encode())
		e.WriteBytes(d.KnotB.Encode())
	case FraudStaleCommit:
		s := p.StaleCommit
		e.WriteHash(s.ThreadID)
		e.WriteBytes(s.Commitment.Encode())
		e.WriteUint64(uint64(len(s.MissingKnots)))
		for _, k := range s.MissingKnots {
			e.WriteBytes(k.Encode())
		}
	case FraudInvalidLoomTransition:
		t := p.InvalidTransition
		e.WriteHash(t.LoomID)
		e.WriteBytes(t.Knot.Encode())
		e.WriteBytes(t.Input)
		e.WriteAddress(t.Sender)
		e.WriteUint64(t.GasLimit)
		e.WriteBytes(t.ClaimedOutput)
		e.WriteHash(t.ClaimedStateHash)
		e.WriteString(t.Reason)
	}
	return e.Bytes()
}

// DecodeFraudProof parses a FraudProof produced by Encode.
func DecodeFraudProof(b []byte) (*FraudProof, error) {
	d := types.NewDecoder(b)
	kindByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	p := &FraudProof{Kind: FraudProofKind(kindByte)}
	if p.Submitter, err = d.ReadAddress(); err != nil {
		return nil, err
	}

	switch p.Kind {
	case FraudDoubleKnot:
		dk := &DoubleKnotProof{}
		if dk.ThreadID, err = d.ReadHash(); err != nil {
			return nil, err
		}
		aBytes, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		if dk.KnotA, err = thread.DecodeKnot(aBytes); err != nil {
			return nil, err
		}
		bBytes, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		if dk.KnotB, err = thread.DecodeKnot(bBytes); err != nil {
			return nil, err
		}
		p.DoubleKnot = dk
	case FraudStaleCommit:
		sc := &StaleCommitProof{}
		if sc.ThreadID, err = d.ReadHash(); err != nil {
			return nil, err
		}
		hdrBytes, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		if sc.Commitment, err = thread.DecodeHeader(hdrBytes); err != nil {
			return nil, err
		}
		n, err := d.ReadUint64()
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < n; i++ {
			kb, err := d.ReadBytes()
			if err != nil {
				return nil, err
			}
			k, err := thread.DecodeKnot(kb)
			if err != nil {
				return nil, err
			}
			sc.MissingKnots = append(sc.MissingKnots, k)
		}
		p.StaleCommit = sc
	case FraudInvalidLoomTransition:
		it := &InvalidLoomTransitionProof{}
		if it.LoomID, err = d.ReadHash(); err != nil {
			return nil, err
		}
		kb, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		if it.Knot, err = thread.DecodeKnot(kb); err != nil {
			return nil, err
		}
		if it.Input, err = d.ReadBytes(); err != nil {
			return nil, err
		}
		if it.Sender, err = d.ReadAddress(); err != nil {
			return nil, err
		}
		if it.GasLimit, err = d.ReadUint64(); err != nil {
			return nil, err
		}
		if it.ClaimedOutput, err = d.ReadBytes(); err != nil {
			return nil, err
		}
		if it.ClaimedStateHash, err = d.ReadHash(); err != nil {
			return nil, err
		}
		if it.Reason, err = d.ReadString(); err != nil {
			return nil, err
		}
		p.InvalidTransition = it
	default:
		return nil, fmt.Errorf("%w: unknown fraud proof kind %d", types.ErrCodec, kindByte)
	}

	if err := d.Done(); err != nil {
		return nil, err
	}
	return p, nil
}
