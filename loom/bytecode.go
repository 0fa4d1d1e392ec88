package loom

import (
	"fmt"

	"github.com/nornlabs/norn/types"
)

// Op is one bytecode instruction opcode. The instruction set is
// deliberately small and has no floating-point, wall-clock, or random
// instructions, so that execution is reproducible given only
// (bytecode, input, sender, block_height, block_timestamp) — the
// determinism contract spec.md §4.C requires for dispute re-execution.
type Op byte

const (
	OpPushI64 Op = iota + 1
	OpPop
	OpDup
	OpAdd
	OpSub
	OpMul
	OpEq
	OpLt
	OpGt
	OpJump
	OpJumpI
	OpPushBytes  // imm indexes into Program.Constants
	OpWordToBytes
	OpBytesToWord
	OpBytesLen
	OpStateGet
	OpStateSet
	OpStateDelete
	OpLog
	OpSender
	OpBlockHeight
	OpBlockTimestamp
	OpLoomCall
	OpSetOutput
	OpHalt
	OpDupBytes
	OpTrap
)

// Instruction is one decoded bytecode operation. Imm is used by
// OpPushI64 (literal value), OpJump/OpJumpI (target instruction index),
// and OpPushBytes (constant-pool index).
type Instruction struct {
	Op  Op
	Imm uint64
}

// Program is a loom's deserialized bytecode: a flat instruction list plus
// a constant pool of byte strings referenced by OpPushBytes.
type Program struct {
	Instructions []Instruction
	Constants    [][]byte
}

// Encode serializes the program canonically.
func (p *Program) Encode() []byte {
	e := types.NewEncoder()
	e.WriteUint64(uint64(len(p.Instructions)))
	for _, ins := range p.Instructions {
		e.WriteByte(byte(ins.Op))
		e.WriteUint64(ins.Imm)
	}
	e.WriteUint64(uint64(len(p.Constants)))
	for _, c := range p.Constants {
		e.WriteBytes(c)
	}
	return e.Bytes()
}

// DecodeProgram parses a Program produced by Encode, rejecting trailing
// bytes and out-of-range jump/constant-pool references.
func DecodeProgram(b []byte) (*Program, error) {
	d := types.NewDecoder(b)
	n, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	p := &Program{Instructions: make([]Instruction, 0, n)}
	for i := uint64(0); i < n; i++ {
		opByte, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		imm, err := d.ReadUint64()
		if err != nil {
			return nil, err
		}
		p.Instructions = append(p.Instructions, Instruction{Op: Op(opByte), Imm: imm})
	}
	cn, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	p.Constants = make([][]byte, 0, cn)
	for i := uint64(0); i < cn; i++ {
		c, err := d.ReadBytes()
		if err != nil {
			return nil, err
		}
		p.Constants = append(p.Constants, c)
	}
	if err := d.Done(); err != nil {
		return nil, err
	}
	if err := p.validateReferences(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Program) validateReferences() error {
	for i, ins := range p.Instructions {
		switch ins.Op {
		case OpJump, OpJumpI:
			if ins.Imm >= uint64(len(p.Instructions)) {
				return fmt.Errorf("%w: instruction %d jumps out of bounds", types.ErrCodec, i)
			}
		case OpPushBytes:
			if ins.Imm >= uint64(len(p.Constants)) {
				return fmt.Errorf("%w: instruction %d references out-of-range constant", types.ErrCodec, i)
			}
		}
	}
	return nil
}
