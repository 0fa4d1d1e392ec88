package config

import (
	"fmt"

	"github.com/nornlabs/norn/crypto"
	"github.com/nornlabs/norn/types"
	"github.com/nornlabs/norn/weave"
)

// ApplyGenesis credits every allocated address with its configured balance
// and bonds every configured validator, against a freshly constructed
// weave.State at height 0. It is the node's height-0 equivalent of applying
// a block: there is no proposer, no signature, no quorum certificate, only
// the config author's word for the starting allocation.
func ApplyGenesis(cfg *Config, state *weave.State) error {
	for addrHex, balance := range cfg.Genesis.Alloc {
		addr, err := types.AddressFromHex(addrHex)
		if err != nil {
			return fmt.Errorf("genesis alloc address %q: %w", addrHex, err)
		}
		if err := state.Credit(addr, types.NewAmountFromUint64(balance)); err != nil {
			return fmt.Errorf("genesis alloc credit %q: %w", addrHex, err)
		}
	}

	for _, v := range cfg.Genesis.Validators {
		pub, err := types.PublicKeyFromHex(v.PubKey)
		if err != nil {
			return fmt.Errorf("genesis validator pubkey %q: %w", v.PubKey, err)
		}
		addr := crypto.DeriveAddress(pub)
		if err := state.Bond(addr, pub, types.NewAmountFromUint64(v.Stake)); err != nil {
			return fmt.Errorf("genesis validator bond %q: %w", v.PubKey, err)
		}
	}
	return nil
}
