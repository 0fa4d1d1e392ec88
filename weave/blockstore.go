package weave

import (
	"encoding/binary"
	"fmt"

	"github.com/nornlabs/norn/errs"
	"github.com/nornlabs/norn/storage"
)

// ErrBlockNotFound is returned when a requested height has no committed
// block yet.
var ErrBlockNotFound = fmt.Errorf("%w: block not found", errs.ErrStorage)

// BlockStore persists finalized blocks keyed by height, so a node can
// answer a peer's sync request or replay its own chain on restart.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore wraps db as a height-indexed block store.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

func heightKey(height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return append([]byte("block:"), b[:]...)
}

// PutBlock persists block under its own height, overwriting any block
// previously stored at that height.
func (s *BlockStore) PutBlock(block *Block) error {
	return s.db.Set(heightKey(block.Height), block.Encode())
}

// GetBlock returns the block committed at height.
func (s *BlockStore) GetBlock(height uint64) (*Block, error) {
	data, err := s.db.Get(heightKey(height))
	if err != nil {
		return nil, ErrBlockNotFound
	}
	return DecodeBlock(data)
}

var tipKey = []byte("chain:tip_height")

// SetTipHeight records the highest height known to be persisted.
func (s *BlockStore) SetTipHeight(height uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return s.db.Set(tipKey, b[:])
}

// TipHeight returns the highest persisted height, or 0 if none yet.
func (s *BlockStore) TipHeight() (uint64, error) {
	data, err := s.db.Get(tipKey)
	if err != nil {
		return 0, nil
	}
	return binary.BigEndian.Uint64(data), nil
}
