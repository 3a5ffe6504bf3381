package ledger

import (
	"fmt"

	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/rfc6962"
)

// tree maintains the append-only merkle tree over finalized transactions as
// an in-memory compact range, hydrated from the stored leaf hashes at
// startup. The engine is its only writer.
type tree struct {
	rf  *compact.RangeFactory
	rng *compact.Range
}

func newTree() *tree {
	rf := &compact.RangeFactory{Hash: rfc6962.DefaultHasher.HashChildren}
	return &tree{rf: rf, rng: rf.NewEmptyRange(0)}
}

// hydrate rebuilds the range from previously finalized leaf hashes.
func (t *tree) hydrate(leafHashes [][]byte) error {
	rng := t.rf.NewEmptyRange(0)
	for i, h := range leafHashes {
		if err := rng.Append(h, nil); err != nil {
			return fmt.Errorf("replay leaf %d: %w", i, err)
		}
	}
	t.rng = rng
	return nil
}

// leafHash hashes canonical transaction bytes into a tree leaf.
func leafHash(data []byte) []byte {
	return rfc6962.DefaultHasher.HashLeaf(data)
}

func (t *tree) append(hash []byte) error {
	return t.rng.Append(hash, nil)
}

func (t *tree) size() uint64 {
	return t.rng.End()
}

func (t *tree) root() ([]byte, error) {
	if t.rng.End() == 0 {
		return rfc6962.DefaultHasher.EmptyRoot(), nil
	}
	root, err := t.rng.GetRootHash(nil)
	if err != nil {
		return nil, fmt.Errorf("calculate root hash: %w", err)
	}
	return root, nil
}
