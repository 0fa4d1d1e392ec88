package weave

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nornlabs/norn/errs"
)

// Sentinel errors supplementing spec.md's prose taxonomy with the
// finer-grained cases the original design carried (distinct
// InvalidCommitment / InsufficientStake / UnknownValidator /
// AlreadyBonded conditions rather than one generic validation error).
var (
	ErrUnknownThread       = fmt.Errorf("%w: unknown thread", errs.ErrStorage)
	ErrVersionNotAdvancing = fmt.Errorf("%w: commitment does not advance committed version", errs.ErrValidation)
	ErrBadCommitmentSig    = fmt.Errorf("%w: commitment signature invalid", errs.ErrValidation)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance to pay commitment fee", errs.ErrValidation)
	ErrThreadForked        = fmt.Errorf("%w: thread is forked, commitments rejected", errs.ErrValidation)

	ErrUnknownValidator    = fmt.Errorf("%w: unknown validator", errs.ErrStorage)
	ErrAlreadyBonded       = fmt.Errorf("%w: validator already bonded", errs.ErrValidation)
	ErrInsufficientStake   = fmt.Errorf("%w: stake below MIN_STAKE", errs.ErrValidation)
	ErrNotBonded           = fmt.Errorf("%w: validator is not bonded", errs.ErrValidation)
	ErrStillBonding        = fmt.Errorf("%w: validator bonding period has not elapsed", errs.ErrValidation)

	ErrMempoolFull      = fmt.Errorf("%w: mempool is full", errs.ErrResource)
	ErrDuplicateEntry   = fmt.Errorf("%w: duplicate mempool fingerprint", errs.ErrValidation)

	ErrNoLeader            = fmt.Errorf("%w: no leader for this view", errs.ErrConsensus)
	ErrInsufficientQuorum  = fmt.Errorf("%w: insufficient quorum", errs.ErrConsensus)
	ErrViewChangeRequired  = fmt.Errorf("%w: view change required", errs.ErrConsensus)
	ErrEquivocation        = fmt.Errorf("%w: validator equivocated at the same height/view", errs.ErrConsensus)

	ErrBadParentHash  = fmt.Errorf("%w: parent_hash does not match the known tip", errs.ErrValidation)
	ErrBadHeight      = fmt.Errorf("%w: height is not parent.height + 1", errs.ErrValidation)
	ErrInvalidCommitment = fmt.Errorf("%w: commitment failed independent verification", errs.ErrValidation)

	ErrFraudProofRejected = fmt.Errorf("%w: fraud proof did not independently verify", errs.ErrValidation)

	ErrQuorumNotReached = fmt.Errorf("%w: quorum certificate has fewer than quorum signatures", errs.ErrConsensus)
	ErrUnknownQCSigner  = fmt.Errorf("%w: quorum certificate signed by a non-validator address", errs.ErrConsensus)
	ErrBadQCSignature   = fmt.Errorf("%w: quorum certificate signature invalid", errs.ErrConsensus)
)

// WrapStorage annotates a low-level storage failure with a call-site stack
// trace via pkg/errors, for the commitment pipeline and fraud-proof verifier
// where operators need to tell "validation rejected" apart from "storage
// broke" several call levels down.
func WrapStorage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "%s: %s", msg, errs.ErrStorage.Error())
}
