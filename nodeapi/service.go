// Package nodeapi is the node's method-contract facade: every operation a
// remote caller would reach over RPC, expressed as plain Go methods on
// Service with no HTTP listener, auth-token check, or wire codec attached.
// Transport is an external collaborator's concern; this package only
// needs to agree with it on method names and argument/result shapes.
package nodeapi

import (
	"fmt"
	"time"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/loom"
	"github.com/nornlabs/norn/log"
	"github.com/nornlabs/norn/names"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

var svcLog = log.For("nodeapi")

// Service exposes the node's externally reachable operations against a
// weave.State, a loom.Registry/loom.Store, and a names.Registry. A single
// Service is safe for concurrent use by multiple callers; every method
// delegates its locking to the package it wraps.
type Service struct {
	state       *weave.State
	looms       *loom.Registry
	loomStore   *loom.Store
	names       *names.Registry
	gasSchedule loom.GasSchedule
	chainID     string
	startedAt   time.Time
}

// New builds a Service over the given components. gasSchedule bounds every
// ExecuteLoom/QueryLoom call this Service makes.
func New(state *weave.State, looms *loom.Registry, loomStore *loom.Store, nameRegistry *names.Registry, gasSchedule loom.GasSchedule, chainID string) *Service {
	return &Service{
		state:       state,
		looms:       looms,
		loomStore:   loomStore,
		names:       nameRegistry,
		gasSchedule: gasSchedule,
		chainID:     chainID,
		startedAt:   time.Now(),
	}
}

// HealthStatus is the result of Health.
type HealthStatus struct {
	ChainID string
	Height  uint64
	Uptime  time.Duration
}

// Health reports whether the node is up and what it has committed so far.
func (s *Service) Health() HealthStatus {
	return HealthStatus{
		ChainID: s.chainID,
		Height:  s.state.Height(),
		Uptime:  time.Since(s.startedAt),
	}
}

// WeaveStateSummary is a read-only snapshot of the weave's aggregate
// state relevant to a caller deciding whether/what to submit next.
type WeaveStateSummary struct {
	Height           uint64
	BaseFee          types.Amount
	FeePerCommitment types.Amount
	ActiveValidators int
}

// GetWeaveState returns a summary of the weave's current aggregate state.
func (s *Service) GetWeaveState() WeaveStateSummary {
	return WeaveStateSummary{
		Height:           s.state.Height(),
		BaseFee:          s.state.BaseFee(),
		FeePerCommitment: weave.FeePerCommitment,
		ActiveValidators: len(s.state.ActiveValidators()),
	}
}

// GetFeeEstimate returns the total fee a commitment landing in the next
// block would pay: the current base_fee plus the fixed per-commitment
// surcharge.
func (s *Service) GetFeeEstimate() (types.Amount, error) {
	return s.state.BaseFee().Add(weave.FeePerCommitment)
}

// ListLooms returns up to limit registered looms starting at offset.
func (s *Service) ListLooms(limit, offset int) []*loom.Loom {
	return s.looms.List(limit, offset)
}

// GetLoomInfo returns the registration record for id.
func (s *Service) GetLoomInfo(id types.LoomID) (*loom.Loom, error) {
	l, ok := s.looms.Get(id)
	if !ok {
		return nil, loom.ErrUnknownLoom
	}
	return l, nil
}

// UploadLoomBytecode decodes raw, stores it as id's program, and
// activates the loom (the status change is a no-op once it has left
// Pending; the bytecode hash is recorded either way). Only the registered
// operator may upload.
func (s *Service) UploadLoomBytecode(id types.LoomID, caller types.Address, raw []byte, at types.Timestamp) error {
	l, ok := s.looms.Get(id)
	if !ok {
		return loom.ErrUnknownLoom
	}
	if l.Operator != caller {
		return loom.ErrNotOperator
	}
	program, err := loom.DecodeProgram(raw)
	if err != nil {
		return fmt.Errorf("decode bytecode: %w", err)
	}
	s.looms.SetProgram(id, program)
	l.Activate(crypto.Hash(raw), at)
	svcLog.Infow("loom bytecode uploaded", "loom_id", id.String(), "operator", caller.String())
	return nil
}

// JoinLoom admits participant into loom id.
func (s *Service) JoinLoom(id types.LoomID, participant types.Address) error {
	l, ok := s.looms.Get(id)
	if !ok {
		return loom.ErrUnknownLoom
	}
	if !l.IsActive() {
		return loom.ErrNotActive
	}
	return l.AddParticipant(participant)
}

// LeaveLoom removes participant from loom id. Leaving an already-absent
// or unknown loom is not an error; the end state is what the caller wants.
func (s *Service) LeaveLoom(id types.LoomID, participant types.Address) error {
	l, ok := s.looms.Get(id)
	if !ok {
		return nil
	}
	l.RemoveParticipant(participant)
	return nil
}

// ExecuteLoom runs id's program against input and, on success, commits
// the resulting state delta durably and advances the loom's recorded
// state_hash and version. The caller is responsible for wrapping this in
// a signed thread knot (OpLoomCall) before it is ever anchored on-chain;
// this method only performs the off-chain execution and its own
// durable-state bookkeeping.
func (s *Service) ExecuteLoom(id types.LoomID, sender types.Address, input []byte, gasLimit uint64, blockHeight uint64, blockTimestamp uint64) (*loom.Result, error) {
	l, ok := s.looms.Get(id)
	if !ok {
		return nil, loom.ErrUnknownLoom
	}
	if !l.IsActive() {
		return nil, loom.ErrNotActive
	}
	program, ok := s.looms.Program(id)
	if !ok {
		return nil, fmt.Errorf("%w: loom %s has no uploaded bytecode", errs.ErrValidation, id)
	}

	ctx := loom.ExecContext{
		LoomID:         id,
		Sender:         sender,
		BlockHeight:    blockHeight,
		BlockTimestamp: blockTimestamp,
		State:          s.loomStore,
	}
	result := loom.Execute(program, input, ctx, gasLimit, s.gasSchedule)
	if !result.Success {
		return result, nil
	}

	if err := s.loomStore.Apply(id, result.StateDelta); err != nil {
		return nil, fmt.Errorf("persist loom state: %w", err)
	}
	stateHash, err := s.loomStore.ComputeStateHash(id)
	if err != nil {
		return nil, fmt.Errorf("compute loom state hash: %w", err)
	}
	l.StateHash = stateHash
	l.Version++
	l.LastUpdated = types.Timestamp(blockTimestamp)

	svcLog.Debugw("loom executed", "loom_id", id.String(), "sender", sender.String(), "gas_used", result.GasUsed)
	return result, nil
}

// QueryLoom runs id's program identically to ExecuteLoom but never
// commits the resulting state delta, for callers that only want to read
// the would-be output.
func (s *Service) QueryLoom(id types.LoomID, sender types.Address, input []byte, gasLimit uint64, blockHeight uint64, blockTimestamp uint64) (*loom.Result, error) {
	l, ok := s.looms.Get(id)
	if !ok {
		return nil, loom.ErrUnknownLoom
	}
	if !l.IsActive() {
		return nil, loom.ErrNotActive
	}
	program, ok := s.looms.Program(id)
	if !ok {
		return nil, fmt.Errorf("%w: loom %s has no uploaded bytecode", errs.ErrValidation, id)
	}

	ctx := loom.ExecContext{
		LoomID:         id,
		Sender:         sender,
		BlockHeight:    blockHeight,
		BlockTimestamp: blockTimestamp,
		State:          s.loomStore,
	}
	return loom.Query(program, input, ctx, gasLimit, s.gasSchedule), nil
}

// ResolveName returns the address currently bound to name.
func (s *Service) ResolveName(name string) (types.Address, error) {
	rec, err := s.names.Resolve(name)
	if err != nil {
		return types.Address{}, err
	}
	return rec.Target, nil
}

// ReverseName returns the name currently bound to addr, if any.
func (s *Service) ReverseName(addr types.Address) (string, error) {
	return s.names.Reverse(addr)
}

// ListNames returns every currently-bound name record.
func (s *Service) ListNames() ([]*names.NameRecord, error) {
	return s.names.List()
}

// GetNameRecords returns the name records owned by owner.
func (s *Service) GetNameRecords(owner types.Address) ([]*names.NameRecord, error) {
	all, err := s.names.List()
	if err != nil {
		return nil, err
	}
	var out []*names.NameRecord
	for _, rec := range all {
		if rec.Owner == owner {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Faucet credits addr with amount. Intended for development/test
// networks only; a production chain_id should have its caller gate this
// off before it is ever reachable.
func (s *Service) Faucet(addr types.Address, amount types.Amount) error {
	return s.state.Credit(addr, amount)
}

// GetStakingInfo returns every currently-active validator.
func (s *Service) GetStakingInfo() []*weave.Validator {
	return s.state.ActiveValidators()
}
