package consensus

import (
	"fmt"

	"github.com/nornlabs/norn/errs"
)

var (
	ErrNoValidators    = fmt.Errorf("%w: no active validators to draw a leader from", errs.ErrConsensus)
	ErrNotLeader       = fmt.Errorf("%w: local node is not the leader for this view", errs.ErrConsensus)
	ErrWrongHeight     = fmt.Errorf("%w: proposal height does not match the expected next height", errs.ErrConsensus)
	ErrWrongParent     = fmt.Errorf("%w: proposal parent hash does not match the local tip", errs.ErrConsensus)
	ErrWrongProposer   = fmt.Errorf("%w: proposal signed by a key other than the elected leader", errs.ErrConsensus)
	ErrBadProposalSig  = fmt.Errorf("%w: proposal signature does not verify", errs.ErrConsensus)
	ErrUnknownVoter    = fmt.Errorf("%w: vote signed by an address outside the active validator set", errs.ErrConsensus)
	ErrBadVoteSig      = fmt.Errorf("%w: vote signature does not verify", errs.ErrConsensus)
	ErrStaleVote       = fmt.Errorf("%w: vote references a height/view this node has already moved past", errs.ErrConsensus)
	ErrNoActiveProposal = fmt.Errorf("%w: no proposal outstanding for the current view", errs.ErrConsensus)
	ErrWrongPhase      = fmt.Errorf("%w: message phase does not match the engine's current phase", errs.ErrConsensus)
)
