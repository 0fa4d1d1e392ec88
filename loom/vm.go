package loom

import (
	"encoding/binary"
	"fmt"

	"github.com/nornlabs/norn/errs"
)

// machine is one interpreter run. It is never reused across calls: a
// fresh machine is constructed per Execute/Query invocation so state is
// never accidentally shared between independent executions.
type machine struct {
	program *Program
	gas     GasSchedule
	limit   uint64
	used    uint64

	words []uint64
	bytes [][]byte

	logs   [][]byte
	output []byte

	delta map[string]StateDeltaEntry
	read  map[string][]byte // memoized reads, so state_get is consistent within one run

	ctx ExecContext
}

func newMachine(p *Program, gas GasSchedule, limit uint64, ctx ExecContext) *machine {
	return &machine{
		program: p,
		gas:     gas,
		limit:   limit,
		delta:   make(map[string]StateDeltaEntry),
		read:    make(map[string][]byte),
		ctx:     ctx,
	}
}

func (m *machine) chargeGas(n uint64) error {
	m.used += n
	if m.used > m.limit {
		return &GasExhausted{Used: m.used, Limit: m.limit}
	}
	return nil
}

func (m *machine) popWord() (uint64, error) {
	if len(m.words) == 0 {
		return 0, fmt.Errorf("%w: word stack underflow", ErrTrap)
	}
	v := m.words[len(m.words)-1]
	m.words = m.words[:len(m.words)-1]
	return v, nil
}

func (m *machine) pushWord(v uint64) { m.words = append(m.words, v) }

func (m *machine) popBytes() ([]byte, error) {
	if len(m.bytes) == 0 {
		return nil, fmt.Errorf("%w: bytes stack underflow", ErrTrap)
	}
	v := m.bytes[len(m.bytes)-1]
	m.bytes = m.bytes[:len(m.bytes)-1]
	return v, nil
}

func (m *machine) pushBytes(v []byte) { m.bytes = append(m.bytes, v) }

// run executes the program against input (pushed as the first bytes-stack
// entry) until OpHalt, OpSetOutput-then-fallthrough-to-end, or an error.
func (m *machine) run(input []byte) error {
	m.pushBytes(input)

	pc := 0
	for pc < len(m.program.Instructions) {
		ins := m.program.Instructions[pc]
		if err := m.chargeGas(m.gas.BaseInstruction); err != nil {
			return err
		}

		next := pc + 1
		switch ins.Op {
		case OpPushI64:
			m.pushWord(ins.Imm)
		case OpPop:
			if _, err := m.popWord(); err != nil {
				return err
			}
		case OpDup:
			if len(m.words) == 0 {
				return fmt.Errorf("%w: dup on empty word stack", ErrTrap)
			}
			m.pushWord(m.words[len(m.words)-1])
		case OpAdd, OpSub, OpMul, OpEq, OpLt, OpGt:
			b, err := m.popWord()
			if err != nil {
				return err
			}
			a, err := m.popWord()
			if err != nil {
				return err
			}
			m.pushWord(applyArith(ins.Op, a, b))
		case OpJump:
			next = int(ins.Imm)
		case OpJumpI:
			cond, err := m.popWord()
			if err != nil {
				return err
			}
			if cond != 0 {
				next = int(ins.Imm)
			}
		case OpPushBytes:
			m.pushBytes(m.program.Constants[ins.Imm])
		case OpWordToBytes:
			w, err := m.popWord()
			if err != nil {
				return err
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], w)
			m.pushBytes(b[:])
		case OpBytesToWord:
			b, err := m.popBytes()
			if err != nil {
				return err
			}
			if len(b) != 8 {
				return fmt.Errorf("%w: bytes_to_word requires an 8-byte value", ErrTrap)
			}
			m.pushWord(binary.LittleEndian.Uint64(b))
		case OpBytesLen:
			b, err := m.popBytes()
			if err != nil {
				return err
			}
			m.pushWord(uint64(len(b)))
		case OpStateGet:
			if err := m.hostStateGet(); err != nil {
				return err
			}
		case OpStateSet:
			if err := m.hostStateSet(); err != nil {
				return err
			}
		case OpStateDelete:
			if err := m.hostStateDelete(); err != nil {
				return err
			}
		case OpLog:
			msg, err := m.popBytes()
			if err != nil {
				return err
			}
			if err := m.chargeGas(uint64(len(msg)) * m.gas.PerByteLog); err != nil {
				return err
			}
			m.logs = append(m.logs, msg)
		case OpSender:
			m.pushBytes(append([]byte(nil), m.ctx.Sender[:]...))
		case OpBlockHeight:
			m.pushWord(m.ctx.BlockHeight)
		case OpBlockTimestamp:
			m.pushWord(m.ctx.BlockTimestamp)
		case OpLoomCall:
			if err := m.hostLoomCall(); err != nil {
				return err
			}
		case OpSetOutput:
			out, err := m.popBytes()
			if err != nil {
				return err
			}
			m.output = out
		case OpHalt:
			return nil
		case OpDupBytes:
			if len(m.bytes) == 0 {
				return fmt.Errorf("%w: dup_bytes on empty bytes stack", ErrTrap)
			}
			m.pushBytes(m.bytes[len(m.bytes)-1])
		case OpTrap:
			return fmt.Errorf("%w: explicit trap instruction", ErrTrap)
		default:
			return fmt.Errorf("%w: unknown opcode %d", ErrTrap, ins.Op)
		}
		pc = next
	}
	return nil
}

func applyArith(op Op, a, b uint64) uint64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpEq:
		return boolWord(a == b)
	case OpLt:
		return boolWord(a < b)
	case OpGt:
		return boolWord(a > b)
	default:
		return 0
	}
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (m *machine) hostStateGet() error {
	key, err := m.popBytes()
	if err != nil {
		return err
	}
	if err := m.chargeGas(uint64(len(key)) * m.gas.PerByteState); err != nil {
		return err
	}
	k := string(key)
	if v, ok := m.delta[k]; ok {
		if v.Deleted {
			m.pushBytes(nil)
		} else {
			m.pushBytes(v.New)
		}
		return nil
	}
	if v, ok := m.read[k]; ok {
		m.pushBytes(v)
		return nil
	}
	var v []byte
	if m.ctx.State != nil {
		v, _ = m.ctx.State.Get(m.ctx.LoomID, key)
	}
	m.read[k] = v
	m.pushBytes(v)
	return nil
}

func (m *machine) hostStateSet() error {
	value, err := m.popBytes()
	if err != nil {
		return err
	}
	key, err := m.popBytes()
	if err != nil {
		return err
	}
	if err := m.chargeGas(uint64(len(key)+len(value)) * m.gas.PerByteState); err != nil {
		return err
	}
	k := string(key)
	old, hadOld := m.priorValue(k)
	m.delta[k] = StateDeltaEntry{Old: old, New: value, HadOld: hadOld}
	return nil
}

func (m *machine) hostStateDelete() error {
	key, err := m.popBytes()
	if err != nil {
		return err
	}
	if err := m.chargeGas(uint64(len(key)) * m.gas.PerByteState); err != nil {
		return err
	}
	k := string(key)
	old, hadOld := m.priorValue(k)
	m.delta[k] = StateDeltaEntry{Old: old, Deleted: true, HadOld: hadOld}
	return nil
}

func (m *machine) priorValue(k string) ([]byte, bool) {
	if v, ok := m.delta[k]; ok {
		return v.Old, v.HadOld
	}
	if v, ok := m.read[k]; ok {
		return v, v != nil
	}
	var v []byte
	var ok bool
	if m.ctx.State != nil {
		v, ok = m.ctx.State.Get(m.ctx.LoomID, []byte(k))
	}
	m.read[k] = v
	return v, ok
}

func (m *machine) hostLoomCall() error {
	gasWord, err := m.popWord()
	if err != nil {
		return err
	}
	input, err := m.popBytes()
	if err != nil {
		return err
	}
	targetBytes, err := m.popBytes()
	if err != nil {
		return err
	}
	if len(targetBytes) != 32 {
		return fmt.Errorf("%w: loom_call target must be a 32-byte loom id", ErrTrap)
	}
	var target [32]byte
	copy(target[:], targetBytes)

	if len(m.ctx.CallStack) >= MaxCallDepth {
		return ErrCallDepthExceeded
	}
	for _, id := range m.ctx.CallStack {
		if id == target {
			return ErrReentrancy
		}
	}
	if err := m.chargeGas(m.gas.LoomCallBase); err != nil {
		return err
	}
	if m.ctx.Invoker == nil {
		return fmt.Errorf("%w: no invoker configured for nested loom_call", errs.ErrValidation)
	}
	output, gasUsed, err := m.ctx.Invoker.Invoke(target, input, m.ctx.Sender, gasWord)
	if err := m.chargeGas(gasUsed); err != nil {
		return err
	}
	if err != nil {
		return fmt.Errorf("nested loom_call failed: %w", err)
	}
	m.pushBytes(output)
	return nil
}
