package crypto

import (
	"github.com/nornlabs/norn/types"
	"lukechampine.com/blake3"
)

// Hash returns the BLAKE3-256 digest of data.
func Hash(data []byte) types.Hash {
	return types.Hash(blake3.Sum256(data))
}

// HashBytes returns the raw BLAKE3-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := blake3.Sum256(data)
	return h[:]
}

// HashConcat hashes the concatenation of several byte slices without an
// intermediate allocation-heavy append chain.
func HashConcat(parts ...[]byte) types.Hash {
	h := blake3.New(32, nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
