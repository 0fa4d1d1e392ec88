package crypto

import (
	"errors"

	"github.com/nornlabs/norn/types"
)

// Domain-separation prefixes for the merkle tree, preventing a leaf hash
// from ever colliding with an interior node hash.
const (
	merkleLeafPrefix byte = 0x00
	merkleNodePrefix byte = 0x01
)

// MerkleRoot computes the root of a domain-separated binary merkle tree
// over leaves. An odd-sized level duplicates its last element rather than
// promoting it unhashed, so tree shape is independent of rebalancing
// strategy. MerkleRoot of zero leaves is the zero hash.
func MerkleRoot(leaves [][]byte) types.Hash {
	if len(leaves) == 0 {
		return types.Hash{}
	}
	level := make([]types.Hash, len(leaves))
	for i, leaf := range leaves {
		level[i] = HashConcat([]byte{merkleLeafPrefix}, leaf)
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			l, r := level[2*i], level[2*i+1]
			next[i] = HashConcat([]byte{merkleNodePrefix}, l[:], r[:])
		}
		level = next
	}
	return level[0]
}

// MerkleProof is an inclusion proof for one leaf against a MerkleRoot.
type MerkleProof struct {
	LeafIndex int
	Siblings  []types.Hash // bottom to top
}

// BuildMerkleProof returns the inclusion proof for leaves[index].
func BuildMerkleProof(leaves [][]byte, index int) (MerkleProof, error) {
	if index < 0 || index >= len(leaves) {
		return MerkleProof{}, errIndexOutOfRange
	}
	level := make([]types.Hash, len(leaves))
	for i, leaf := range leaves {
		level[i] = HashConcat([]byte{merkleLeafPrefix}, leaf)
	}
	proof := MerkleProof{LeafIndex: index}
	idx := index
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		var sibling types.Hash
		if idx%2 == 0 {
			sibling = level[idx+1]
		} else {
			sibling = level[idx-1]
		}
		proof.Siblings = append(proof.Siblings, sibling)

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			l, r := level[2*i], level[2*i+1]
			next[i] = HashConcat([]byte{merkleNodePrefix}, l[:], r[:])
		}
		level = next
		idx /= 2
	}
	return proof, nil
}

// VerifyMerkleProof recomputes the root from leaf and proof, and reports
// whether it matches root.
func VerifyMerkleProof(leaf []byte, proof MerkleProof, root types.Hash) bool {
	cur := HashConcat([]byte{merkleLeafPrefix}, leaf)
	idx := proof.LeafIndex
	for _, sibling := range proof.Siblings {
		if idx%2 == 0 {
			cur = HashConcat([]byte{merkleNodePrefix}, cur[:], sibling[:])
		} else {
			cur = HashConcat([]byte{merkleNodePrefix}, sibling[:], cur[:])
		}
		idx /= 2
	}
	return cur == root
}

var errIndexOutOfRange = errors.New("merkle leaf index out of range")
