package weave

import (
	"github.com/nornlabs/norn/events"
	"github.com/nornlabs/norn/types"
)

// MinStake is the minimum bonded stake a validator must hold to be
// considered for the active set. Left unspecified by spec.md section 4.D's
// prose; frozen here as a protocol constant rather than a per-node setting.
var MinStake = types.NewAmountFromUint64(1_000_000)

// BondingPeriod is the number of blocks an unbonding validator's stake
// remains locked before it can be withdrawn.
const BondingPeriod = 100

// SlashFractionPerMille is the fraction of an offending validator's stake
// burned on an accepted fraud proof, expressed in parts per thousand (5%).
const SlashFractionPerMille = 50

// BountyFractionPerMille is the fraction of the offender's stake (the same
// base the slash is taken from) awarded to the fraud proof submitter,
// expressed in parts per thousand (0.5%).
const BountyFractionPerMille = 5

// Validator is a staking participant's bonded record.
type Validator struct {
	Address     types.Address
	PubKey      types.PublicKey
	Stake       types.Amount
	Active      bool
	BondedUntil uint64 // height at which unbonding funds release; 0 while bonded
}

// Bond creates or tops up a validator's stake. The validator becomes
// eligible for the active set only once Stake >= MinStake.
func (s *State) Bond(addr types.Address, pub types.PublicKey, amount types.Amount) error {
	s.mu.Lock()
	v, ok := s.validators[addr]
	if !ok {
		v = &Validator{Address: addr, PubKey: pub}
		s.validators[addr] = v
	}
	sum, err := v.Stake.Add(amount)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	v.Stake = sum
	if v.Stake.Cmp(MinStake) >= 0 {
		v.Active = true
	}
	s.mu.Unlock()

	s.emit(events.Event{Type: events.EventValidatorBonded, Height: s.Height(), Data: map[string]any{
		"address": addr.String(),
		"stake":   sum.String(),
	}})
	return nil
}

// BeginUnbond marks a validator inactive and schedules its stake release
// BondingPeriod blocks after currentHeight.
func (s *State) BeginUnbond(addr types.Address, currentHeight uint64) error {
	s.mu.Lock()

	v, ok := s.validators[addr]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownValidator
	}
	if !v.Active {
		s.mu.Unlock()
		return ErrNotBonded
	}
	v.Active = false
	v.BondedUntil = currentHeight + BondingPeriod
	bondedUntil := v.BondedUntil
	s.mu.Unlock()

	s.emit(events.Event{Type: events.EventValidatorUnbonded, Height: s.Height(), Data: map[string]any{
		"address":      addr.String(),
		"bonded_until": bondedUntil,
	}})
	return nil
}

// WithdrawUnbonded releases a validator's stake once its bonding period has
// elapsed, zeroing its record.
func (s *State) WithdrawUnbonded(addr types.Address, currentHeight uint64) (types.Amount, error) {
	s.mu.Lock()

	v, ok := s.validators[addr]
	if !ok {
		s.mu.Unlock()
		return types.Amount{}, ErrUnknownValidator
	}
	if v.Active || v.BondedUntil == 0 {
		s.mu.Unlock()
		return types.Amount{}, ErrStillBonding
	}
	if currentHeight < v.BondedUntil {
		s.mu.Unlock()
		return types.Amount{}, ErrStillBonding
	}
	released := v.Stake
	delete(s.validators, addr)
	s.mu.Unlock()

	s.emit(events.Event{Type: events.EventValidatorWithdrawn, Height: s.Height(), Data: map[string]any{
		"address":  addr.String(),
		"released": released.String(),
	}})
	return released, nil
}

// ActiveValidators returns every currently-active validator record,
// snapshotted under the read lock.
func (s *State) ActiveValidators() []*Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Validator, 0, len(s.validators))
	for _, v := range s.validators {
		if v.Active {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out
}

// Slash burns SlashFractionPerMille of offender's stake and credits
// BountyFractionPerMille of the same base to submitter's native balance.
// The offender leaves the active set when removeFromActiveSet is true
// (VerifyFraudProof passes true for a double-knot) or when the remaining
// stake falls below MinStake. Earlier offences are not counted, so a
// repeated offence is not itself a reason for removal.
func (s *State) Slash(offender types.Address, submitter types.Address, removeFromActiveSet bool) (types.Amount, error) {
	s.mu.Lock()

	v, ok := s.validators[offender]
	if !ok {
		s.mu.Unlock()
		return types.Amount{}, ErrUnknownValidator
	}

	slashed, err := v.Stake.MulDiv(SlashFractionPerMille, 1000)
	if err != nil {
		s.mu.Unlock()
		return types.Amount{}, err
	}
	bounty, err := v.Stake.MulDiv(BountyFractionPerMille, 1000)
	if err != nil {
		s.mu.Unlock()
		return types.Amount{}, err
	}
	newStake, err := v.Stake.Sub(slashed)
	if err != nil {
		s.mu.Unlock()
		return types.Amount{}, err
	}
	v.Stake = newStake
	if removeFromActiveSet || v.Stake.Cmp(MinStake) < 0 {
		v.Active = false
	}

	bal := s.balances[submitter]
	credited, err := bal.Add(bounty)
	if err != nil {
		s.mu.Unlock()
		return types.Amount{}, err
	}
	s.balances[submitter] = credited
	s.mu.Unlock()

	s.emit(events.Event{Type: events.EventValidatorSlashed, Height: s.Height(), Data: map[string]any{
		"offender":  offender.String(),
		"submitter": submitter.String(),
		"slashed":   slashed.String(),
	}})
	return slashed, nil
}
