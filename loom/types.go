// Package loom implements the off-chain deterministic sandboxed bytecode
// execution environment: a custom stack-based interpreter with gas
// metering, a host-function ABI for keyed state I/O, and the deterministic
// re-execution entry point used by the weave's InvalidLoomTransition
// dispute path.
package loom

import (
	"github.com/nornlabs/norn/types"
)

// Status is a loom's lifecycle state.
type Status byte

const (
	StatusPending Status = iota
	StatusActive
	StatusPaused
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MaxParticipants bounds a loom's accepted-participant set at 1000, per
// spec.md §3 and the 1000/1001 boundary test in §8.
const MaxParticipants = 1000

// MaxCallDepth bounds nested loom_call chains.
const MaxCallDepth = 8

// Loom is a deployed bytecode program and its registration metadata.
type Loom struct {
	ID             types.LoomID
	Operator       types.Address
	BytecodeHash   types.Hash
	Participants   map[types.Address]bool
	AcceptedTokens map[types.TokenID]bool
	StateHash      types.Hash
	Version        uint64
	Status         Status
	LastUpdated    types.Timestamp
}

// NewLoom registers a loom in Pending status with no bytecode uploaded.
func NewLoom(id types.LoomID, operator types.Address, at types.Timestamp) *Loom {
	return &Loom{
		ID:             id,
		Operator:       operator,
		Participants:   make(map[types.Address]bool),
		AcceptedTokens: make(map[types.TokenID]bool),
		Status:         StatusPending,
		LastUpdated:    at,
	}
}

// AddParticipant admits addr, enforcing the MaxParticipants ceiling.
func (l *Loom) AddParticipant(addr types.Address) error {
	if l.Participants[addr] {
		return nil
	}
	if len(l.Participants) >= MaxParticipants {
		return ErrParticipantLimitExceeded
	}
	l.Participants[addr] = true
	return nil
}

func (l *Loom) RemoveParticipant(addr types.Address) {
	delete(l.Participants, addr)
}

func (l *Loom) IsActive() bool { return l.Status == StatusActive }

// Activate records the uploaded bytecode's hash and the update time, and
// transitions a pending loom to active. The status change is a no-op past
// Pending, so a second upload never resets a paused or terminated loom
// back to active; the bytecode hash is still replaced.
func (l *Loom) Activate(bytecodeHash types.Hash, at types.Timestamp) {
	l.BytecodeHash = bytecodeHash
	l.LastUpdated = at
	if l.Status == StatusPending {
		l.Status = StatusActive
	}
}

// Pause and Terminate move an active loom out of service. Both are
// operator-gated at the call site, not here.
func (l *Loom) Pause(at types.Timestamp) {
	if l.Status == StatusActive {
		l.Status = StatusPaused
		l.LastUpdated = at
	}
}

func (l *Loom) Terminate(at types.Timestamp) {
	l.Status = StatusTerminated
	l.LastUpdated = at
}
