package weave

import (
	"github.com/nornlabs/norn/metrics"
	"github.com/nornlabs/norn/types"
)

// BlockSizeTarget is the target number of commitments per block the
// EIP-1559-style fee market adjusts base_fee against.
const BlockSizeTarget = 4

// MinFee and MaxFee clamp base_fee's range.
var (
	MinFee = types.NewAmountFromUint64(1)
	MaxFee = types.NewAmountFromUint64(1_000_000)
)

// AdjustBaseFee computes the next block's base_fee from the previous
// base_fee and the number of commitments actually included, per spec.md's
// formula: base_fee_next = base_fee * (1 + delta/8), delta = (actual -
// target) / target, clamped to [MinFee, MaxFee].
//
// The division is done in integer eighths to avoid floating point:
//
//	base_fee_next = base_fee + base_fee * (actual - target) / (target * 8)
func AdjustBaseFee(baseFee types.Amount, actualCommitments int) (types.Amount, error) {
	target := int64(BlockSizeTarget)
	actual := int64(actualCommitments)
	delta := actual - target

	adjustment, err := baseFee.MulDiv(uint64(abs(delta)), uint64(target*8))
	if err != nil {
		return types.Amount{}, err
	}

	var next types.Amount
	if delta >= 0 {
		next, err = baseFee.Add(adjustment)
	} else {
		next, err = baseFee.Sub(adjustment)
		if err != nil {
			// Underflow past zero clamps to MinFee rather than erroring:
			// the formula is advisory, the clamp is the hard bound.
			next = types.ZeroAmount
			err = nil
		}
	}
	if err != nil {
		return types.Amount{}, err
	}

	if next.Cmp(MinFee) < 0 {
		next = MinFee
	}
	if next.Cmp(MaxFee) > 0 {
		next = MaxFee
	}
	return next, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ApplyFeeMarket recomputes and stores the next base_fee after a block with
// actualCommitments commitments has been applied.
func (s *State) ApplyFeeMarket(actualCommitments int) error {
	next, err := AdjustBaseFee(s.BaseFee(), actualCommitments)
	if err != nil {
		return err
	}
	s.setBaseFee(next)
	metrics.FeeMarketBaseFee.Set(float64(next.Uint64()))
	return nil
}
