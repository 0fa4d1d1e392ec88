package loom

import (
	"fmt"

	"github.com/nornlabs/norn/errs"
)

var (
	ErrParticipantLimitExceeded = fmt.Errorf("%w: participant limit of %d exceeded", errs.ErrValidation, MaxParticipants)
	ErrNotActive                = fmt.Errorf("%w: loom is not active", errs.ErrValidation)
	ErrNotOperator              = fmt.Errorf("%w: only the operator may perform this action", errs.ErrAuthentication)
	ErrUnknownLoom              = fmt.Errorf("%w: unknown loom id", errs.ErrStorage)

	ErrCallDepthExceeded = fmt.Errorf("%w: loom_call depth exceeds %d", errs.ErrResource, MaxCallDepth)
	ErrReentrancy        = fmt.Errorf("%w: reentrant call into the same loom is forbidden", errs.ErrValidation)
	ErrTrap              = fmt.Errorf("%w: bytecode trap", errs.ErrValidation)
)

// GasExhausted reports that execution stopped because gas_limit was hit.
// The state delta collected so far is discarded atomically by the caller.
type GasExhausted struct {
	Used  uint64
	Limit uint64
}

func (e *GasExhausted) Error() string {
	return fmt.Sprintf("gas exhausted: used %d, limit %d", e.Used, e.Limit)
}

func (e *GasExhausted) Unwrap() error { return errs.ErrResource }
