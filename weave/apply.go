package weave

import (
	"errors"

	"github.com/nornlabs/norn/events"
	"github.com/nornlabs/norn/loom"
	"github.com/nornlabs/norn/log"
	"github.com/nornlabs/norn/metrics"
	"github.com/nornlabs/norn/types"
)

var applyLog = log.For("weave")

// ApplyBlock applies every section of b's body to s, in the block's
// declared order (spec.md section 8 invariant 2: commitments applied in
// list order). Commitments and fraud proofs fail independently per entry —
// a bad one is dropped, never failing the whole block (spec.md section
// 4.D step 5) — but a block whose height is not the state's height + 1 is
// rejected outright. ApplyBlock does not check the block's parent hash:
// State keeps no record of the tip block's hash.
func (s *State) ApplyBlock(b *Block, registry *loom.Registry, snapshots func(types.LoomID) *loom.SnapshotReader, gasSchedule loom.GasSchedule) error {
	if b.Height != s.Height()+1 {
		return ErrBadHeight
	}

	applied := 0
	for _, c := range b.Commitments {
		if err := s.ApplyCommitment(c, b.Proposer); err != nil {
			metrics.CommitmentsRejectedTotal.WithLabelValues(commitmentRejectReason(err)).Inc()
			applyLog.Debugw("commitment dropped", "thread_id", c.Header.ThreadID, "error", err)
			continue
		}
		applied++
		metrics.CommitmentsAppliedTotal.Inc()
		s.emit(events.Event{Type: events.EventCommitmentApplied, Height: b.Height, Data: map[string]any{
			"thread_id": c.Header.ThreadID.String(),
			"version":   c.Header.Version,
		}})
	}

	for _, reg := range b.LoomRegs {
		registry.Put(loom.NewLoom(reg.LoomID, reg.Operator, b.Timestamp))
	}

	for _, op := range b.NameOps {
		switch op.Kind {
		case NameOpSet:
			s.setName(op.Name, op.Addr)
			s.emit(events.Event{Type: events.EventNameRegistered, Height: b.Height, Data: map[string]any{
				"name":          op.Name,
				"address":       op.Addr.String(),
				"registered_at": uint64(b.Timestamp),
			}})
		case NameOpClear:
			s.clearName(op.Name)
			s.emit(events.Event{Type: events.EventNameCleared, Height: b.Height, Data: map[string]any{
				"name": op.Name,
			}})
		}
	}

	for _, p := range b.FraudProofs {
		var snap *loom.SnapshotReader
		if p.Kind == FraudInvalidLoomTransition && p.InvalidTransition != nil && snapshots != nil {
			snap = snapshots(p.InvalidTransition.LoomID)
		}
		offender, slashed, err := s.VerifyFraudProof(p, s.ThreadOwnerPubKey, registry, snap, gasSchedule)
		if err != nil {
			applyLog.Debugw("fraud proof rejected", "kind", p.Kind, "error", err)
			continue
		}
		metrics.FraudProofsAcceptedTotal.WithLabelValues(fraudKindLabel(p.Kind)).Inc()
		metrics.SlashedAmountTotal.Add(float64(slashed.Uint64()))
		applyLog.Infow("fraud proof accepted", "offender", offender, "slashed", slashed.String())
		s.emit(events.Event{Type: events.EventFraudAccepted, Height: b.Height, Data: map[string]any{
			"kind":     fraudKindLabel(p.Kind),
			"offender": offender.String(),
			"slashed":  slashed.String(),
		}})
	}

	if err := s.ApplyFeeMarket(applied); err != nil {
		return err
	}

	s.setHeight(b.Height)
	metrics.BlocksCommittedTotal.Inc()
	metrics.ConsensusHeight.Set(float64(b.Height))
	s.emit(events.Event{Type: events.EventBlockFinalized, Height: b.Height, Data: map[string]any{
		"proposer":    b.Proposer.String(),
		"num_commits": applied,
	}})
	return nil
}

func commitmentRejectReason(err error) string {
	switch {
	case errors.Is(err, ErrThreadForked):
		return "thread_forked"
	case errors.Is(err, ErrVersionNotAdvancing):
		return "version_not_advancing"
	case errors.Is(err, ErrBadCommitmentSig):
		return "bad_signature"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrUnknownThread):
		return "unknown_thread"
	default:
		return "other"
	}
}

func fraudKindLabel(k FraudProofKind) string {
	switch k {
	case FraudDoubleKnot:
		return "double_knot"
	case FraudStaleCommit:
		return "stale_commit"
	case FraudInvalidLoomTransition:
		return "invalid_loom_transition"
	default:
		return "unknown"
	}
}
