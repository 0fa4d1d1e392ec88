// Package thread implements the per-owner append-only knot chain: knot
// validation and append, the per-thread state tree, and thread-header
// publication for commitment into the weave.
package thread

import (
	"fmt"
	"sync"

	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/types"
)

// OpType tags the kind of effect a knot operation carries.
type OpType byte

const (
	OpTransfer OpType = iota + 1
	OpLoomCall
	OpNameSet
	OpNameClear
)

func (t OpType) String() string {
	switch t {
	case OpTransfer:
		return "transfer"
	case OpLoomCall:
		return "loom_call"
	case OpNameSet:
		return "name_set"
	case OpNameClear:
		return "name_clear"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Operation is one typed effect inside a knot.
type Operation struct {
	Type     OpType
	Transfer *TransferOp
	LoomCall *LoomCallOp
	NameSet  *NameSetOp
	NameClear *NameClearOp
}

// TransferOp moves Amount of TokenID from the thread owner to To.
type TransferOp struct {
	To      types.Address
	TokenID types.TokenID
	Amount  types.Amount
}

// LoomCallOp invokes a loom on behalf of the thread owner.
type LoomCallOp struct {
	LoomID   types.LoomID
	Input    []byte
	GasLimit uint64
}

// NameSetOp binds a human-readable name to the thread owner's address.
type NameSetOp struct {
	Name string
}

// NameClearOp releases a previously bound name.
type NameClearOp struct {
	Name string
}

func (op Operation) encode(e *types.Encoder) {
	e.WriteByte(byte(op.Type))
	switch op.Type {
	case OpTransfer:
		e.WriteAddress(op.Transfer.To)
		e.WriteHash(op.Transfer.TokenID)
		e.WriteAmount(op.Transfer.Amount)
	case OpLoomCall:
		e.WriteHash(op.LoomCall.LoomID)
		e.WriteBytes(op.LoomCall.Input)
		e.WriteUint64(op.LoomCall.GasLimit)
	case OpNameSet:
		e.WriteString(op.NameSet.Name)
	case OpNameClear:
		e.WriteString(op.NameClear.Name)
	}
}

func decodeOperation(d *types.Decoder) (Operation, error) {
	b, err := d.ReadByte()
	if err != nil {
		return Operation{}, err
	}
	op := Operation{Type: OpType(b)}
	switch op.Type {
	case OpTransfer:
		to, err := d.ReadAddress()
		if err != nil {
			return Operation{}, err
		}
		tok, err := d.ReadHash()
		if err != nil {
			return Operation{}, err
		}
		amt, err := d.ReadAmount()
		if err != nil {
			return Operation{}, err
		}
		op.Transfer = &TransferOp{To: to, TokenID: tok, Amount: amt}
	case OpLoomCall:
		loomID, err := d.ReadHash()
		if err != nil {
			return Operation{}, err
		}
		input, err := d.ReadBytes()
		if err != nil {
			return Operation{}, err
		}
		gas, err := d.ReadUint64()
		if err != nil {
			return Operation{}, err
		}
		op.LoomCall = &LoomCallOp{LoomID: loomID, Input: input, GasLimit: gas}
	case OpNameSet:
		name, err := d.ReadString()
		if err != nil {
			return Operation{}, err
		}
		op.NameSet = &NameSetOp{Name: name}
	case OpNameClear:
		name, err := d.ReadString()
		if err != nil {
			return Operation{}, err
		}
		op.NameClear = &NameClearOp{Name: name}
	default:
		return Operation{}, fmt.Errorf("%w: unknown operation type %d", types.ErrCodec, b)
	}
	return op, nil
}

// Validator checks an operation against read-only thread state before it
// is admitted to a knot. loomActive reports whether a LoomID currently
// accepts calls; it is supplied by the caller so this package has no
// dependency on the loom package.
type Validator func(op Operation, loomActive func(types.LoomID) bool) error

var (
	validatorsMu sync.RWMutex
	validators   = map[OpType]Validator{}
)

// RegisterValidator installs the validation rule for typ. Panics on
// duplicate registration, matching the dispatch-registry convention used
// throughout this codebase.
func RegisterValidator(typ OpType, v Validator) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	if _, exists := validators[typ]; exists {
		panic(fmt.Sprintf("thread: validator already registered for OpType %d", typ))
	}
	validators[typ] = v
}

func validateOperation(op Operation, loomActive func(types.LoomID) bool) error {
	validatorsMu.RLock()
	v, ok := validators[op.Type]
	validatorsMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no validator registered for operation %s", errs.ErrValidation, op.Type)
	}
	return v(op, loomActive)
}

func init() {
	RegisterValidator(OpTransfer, func(op Operation, _ func(types.LoomID) bool) error {
		if op.Transfer == nil {
			return fmt.Errorf("%w: transfer operation missing body", errs.ErrValidation)
		}
		if op.Transfer.Amount.IsZero() {
			return fmt.Errorf("%w: transfer amount must be positive", errs.ErrValidation)
		}
		if op.Transfer.To.IsZero() {
			return fmt.Errorf("%w: transfer target address cannot be zero", errs.ErrValidation)
		}
		return nil
	})
	RegisterValidator(OpLoomCall, func(op Operation, loomActive func(types.LoomID) bool) error {
		if op.LoomCall == nil {
			return fmt.Errorf("%w: loom-call operation missing body", errs.ErrValidation)
		}
		if loomActive != nil && !loomActive(op.LoomCall.LoomID) {
			return fmt.Errorf("%w: loom %s is not active", errs.ErrValidation, op.LoomCall.LoomID)
		}
		if op.LoomCall.GasLimit == 0 {
			return fmt.Errorf("%w: loom-call gas limit must be positive", errs.ErrValidation)
		}
		return nil
	})
	RegisterValidator(OpNameSet, func(op Operation, _ func(types.LoomID) bool) error {
		if op.NameSet == nil {
			return fmt.Errorf("%w: name-set operation missing body", errs.ErrValidation)
		}
		return types.ValidateName(op.NameSet.Name)
	})
	RegisterValidator(OpNameClear, func(op Operation, _ func(types.LoomID) bool) error {
		if op.NameClear == nil {
			return fmt.Errorf("%w: name-clear operation missing body", errs.ErrValidation)
		}
		return types.ValidateName(op.NameClear.Name)
	})
}
