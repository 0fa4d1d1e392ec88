package examples

import "github.com/nornlabs/norn/loom"

// TokenLedger builds a program that transfers one unit of an internal
// balance ledger from the caller to the address given as call input. It
// re-expresses the transfer semantics of a typical token module as loom
// bytecode: debit sender, credit recipient, trap on insufficient funds.
// Balances are keyed directly by the 20-byte address.
func TokenLedger() *loom.Program {
	const (
		iSender0      = 0
		iStateGet0    = 1
		iBytesLen0    = 2
		iPush0a       = 3
		iEq0          = 4
		iJumpISZero   = 5
		iSender1      = 6
		iStateGet1    = 7
		iBytesToWrd0  = 8
		iJumpSMerge   = 9
		iSZero        = 10
		iSMerge_Dup   = 11 // dup sender balance word
		iPush1a       = 12
		iLt           = 13
		iJumpITrap    = 14
		iPush1b       = 15
		iSub          = 16
		iDupNewBal    = 17
		iSenderKey    = 18
		iWordToByte1  = 19
		iStateSetSndr = 20
		iDupInput0    = 21
		iStateGet2    = 22
		iBytesLen1    = 23
		iPush0b       = 24
		iEq1          = 25
		iJumpIRZero   = 26
		iDupInput1    = 27
		iStateGet3    = 28
		iBytesToWrd1  = 29
		iJumpRMerge   = 30
		iRZero        = 31
		iPush1c       = 32
		iAddRecipient = 33
		iWordToByte2  = 34
		iStateSetRcpt = 35
		iWordToByte3  = 36
		iSetOutput    = 37
		iHalt         = 38
		iTrap         = 39
	)

	ins := make([]loom.Instruction, 40)
	ins[iSender0] = loom.Instruction{Op: loom.OpSender}
	ins[iStateGet0] = loom.Instruction{Op: loom.OpStateGet}
	ins[iBytesLen0] = loom.Instruction{Op: loom.OpBytesLen}
	ins[iPush0a] = loom.Instruction{Op: loom.OpPushI64, Imm: 0}
	ins[iEq0] = loom.Instruction{Op: loom.OpEq}
	ins[iJumpISZero] = loom.Instruction{Op: loom.OpJumpI, Imm: iSZero}
	ins[iSender1] = loom.Instruction{Op: loom.OpSender}
	ins[iStateGet1] = loom.Instruction{Op: loom.OpStateGet}
	ins[iBytesToWrd0] = loom.Instruction{Op: loom.OpBytesToWord}
	ins[iJumpSMerge] = loom.Instruction{Op: loom.OpJump, Imm: iSMerge_Dup}
	ins[iSZero] = loom.Instruction{Op: loom.OpPushI64, Imm: 0}
	ins[iSMerge_Dup] = loom.Instruction{Op: loom.OpDup}
	ins[iPush1a] = loom.Instruction{Op: loom.OpPushI64, Imm: 1}
	ins[iLt] = loom.Instruction{Op: loom.OpLt}
	ins[iJumpITrap] = loom.Instruction{Op: loom.OpJumpI, Imm: iTrap}
	ins[iPush1b] = loom.Instruction{Op: loom.OpPushI64, Imm: 1}
	ins[iSub] = loom.Instruction{Op: loom.OpSub}
	ins[iDupNewBal] = loom.Instruction{Op: loom.OpDup}
	ins[iSenderKey] = loom.Instruction{Op: loom.OpSender}
	ins[iWordToByte1] = loom.Instruction{Op: loom.OpWordToBytes}
	ins[iStateSetSndr] = loom.Instruction{Op: loom.OpStateSet}
	ins[iDupInput0] = loom.Instruction{Op: loom.OpDupBytes}
	ins[iStateGet2] = loom.Instruction{Op: loom.OpStateGet}
	ins[iBytesLen1] = loom.Instruction{Op: loom.OpBytesLen}
	ins[iPush0b] = loom.Instruction{Op: loom.OpPushI64, Imm: 0}
	ins[iEq1] = loom.Instruction{Op: loom.OpEq}
	ins[iJumpIRZero] = loom.Instruction{Op: loom.OpJumpI, Imm: iRZero}
	ins[iDupInput1] = loom.Instruction{Op: loom.OpDupBytes}
	ins[iStateGet3] = loom.Instruction{Op: loom.OpStateGet}
	ins[iBytesToWrd1] = loom.Instruction{Op: loom.OpBytesToWord}
	ins[iJumpRMerge] = loom.Instruction{Op: loom.OpJump, Imm: iPush1c}
	ins[iRZero] = loom.Instruction{Op: loom.OpPushI64, Imm: 0}
	ins[iPush1c] = loom.Instruction{Op: loom.OpPushI64, Imm: 1}
	ins[iAddRecipient] = loom.Instruction{Op: loom.OpAdd}
	ins[iWordToByte2] = loom.Instruction{Op: loom.OpWordToBytes}
	ins[iStateSetRcpt] = loom.Instruction{Op: loom.OpStateSet}
	ins[iWordToByte3] = loom.Instruction{Op: loom.OpWordToBytes}
	ins[iSetOutput] = loom.Instruction{Op: loom.OpSetOutput}
	ins[iHalt] = loom.Instruction{Op: loom.OpHalt}
	ins[iTrap] = loom.Instruction{Op: loom.OpTrap}

	return &loom.Program{Instructions: ins}
}
