// Package consensus implements the weave's HotStuff-style three-phase BFT
// block production: leader election, the prepare/pre-commit/commit vote
// protocol, and view-change on leader timeout.
package consensus

import (
	"math/big"
	"sort"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

// SelectLeader deterministically draws a leader from the active validator
// set weighted by stake, seeded by the parent block hash and view number —
// every honest validator computes the same answer without communication.
func SelectLeader(validators []*weave.Validator, parentHash types.Hash, view uint64) (types.Address, error) {
	if len(validators) == 0 {
		return types.Address{}, ErrNoValidators
	}

	sorted := make([]*weave.Validator, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool {
		return lessAddress(sorted[i].Address, sorted[j].Address)
	})

	total := new(big.Int)
	for _, v := range sorted {
		total.Add(total, v.Stake.ToBig())
	}
	if total.Sign() == 0 {
		return types.Address{}, ErrNoValidators
	}

	seed := seedFor(parentHash, view)
	draw := new(big.Int).SetBytes(seed[:])
	draw.Mod(draw, total)

	cursor := new(big.Int)
	for _, v := range sorted {
		cursor.Add(cursor, v.Stake.ToBig())
		if draw.Cmp(cursor) < 0 {
			return v.Address, nil
		}
	}
	return sorted[len(sorted)-1].Address, nil
}

func seedFor(parentHash types.Hash, view uint64) types.Hash {
	var viewBytes [8]byte
	for i := 0; i < 8; i++ {
		viewBytes[i] = byte(view >> (8 * i))
	}
	return crypto.HashConcat(parentHash[:], viewBytes[:])
}

func lessAddress(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// QuorumSize returns 2f+1 for n active validators, the BFT threshold spec.md
// section 4.D requires at every consensus phase.
func QuorumSize(n int) int {
	f := (n - 1) / 3
	return 2*f + 1
}
