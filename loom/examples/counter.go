// Package examples holds reference loom bytecode programs, built with the
// loom package's instruction set, demonstrating the host ABI end to end.
// These are fixtures for documentation and tests, not deployed contracts.
package examples

import "github.com/nornlabs/norn/loom"

// Counter builds a program that increments a single "count" state key by
// one on every call and returns the new count as an 8-byte little-endian
// value. It is the reference program used by spec.md §8 scenario 4
// (deterministic re-execution / InvalidLoomTransition dispute).
func Counter() *loom.Program {
	const (
		iPushCount0 = 0
		iStateGet0  = 1
		iBytesLen   = 2
		iPush0a     = 3
		iEq         = 4
		iJumpIZero  = 5
		iPushCount1 = 6
		iStateGet1  = 7
		iBytesToWrd = 8
		iJumpMerge  = 9
		iZeroWord   = 10
		iOneWord    = 11
		iAdd        = 12
		iDup        = 13
		iPushCount2 = 14
		iWordToByte1 = 15
		iStateSet   = 16
		iWordToByte2 = 17
		iSetOutput  = 18
		iHalt       = 19
	)

	ins := make([]loom.Instruction, 20)
	ins[iPushCount0] = loom.Instruction{Op: loom.OpPushBytes, Imm: 0}
	ins[iStateGet0] = loom.Instruction{Op: loom.OpStateGet}
	ins[iBytesLen] = loom.Instruction{Op: loom.OpBytesLen}
	ins[iPush0a] = loom.Instruction{Op: loom.OpPushI64, Imm: 0}
	ins[iEq] = loom.Instruction{Op: loom.OpEq}
	ins[iJumpIZero] = loom.Instruction{Op: loom.OpJumpI, Imm: iZeroWord}
	ins[iPushCount1] = loom.Instruction{Op: loom.OpPushBytes, Imm: 0}
	ins[iStateGet1] = loom.Instruction{Op: loom.OpStateGet}
	ins[iBytesToWrd] = loom.Instruction{Op: loom.OpBytesToWord}
	ins[iJumpMerge] = loom.Instruction{Op: loom.OpJump, Imm: iOneWord}
	ins[iZeroWord] = loom.Instruction{Op: loom.OpPushI64, Imm: 0}
	ins[iOneWord] = loom.Instruction{Op: loom.OpPushI64, Imm: 1}
	ins[iAdd] = loom.Instruction{Op: loom.OpAdd}
	ins[iDup] = loom.Instruction{Op: loom.OpDup}
	ins[iPushCount2] = loom.Instruction{Op: loom.OpPushBytes, Imm: 0}
	ins[iWordToByte1] = loom.Instruction{Op: loom.OpWordToBytes}
	ins[iStateSet] = loom.Instruction{Op: loom.OpStateSet}
	ins[iWordToByte2] = loom.Instruction{Op: loom.OpWordToBytes}
	ins[iSetOutput] = loom.Instruction{Op: loom.OpSetOutput}
	ins[iHalt] = loom.Instruction{Op: loom.OpHalt}

	return &loom.Program{
		Instructions: ins,
		Constants:    [][]byte{[]byte("count")},
	}
}
