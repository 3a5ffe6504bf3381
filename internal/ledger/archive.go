package ledger

import (
	"context"
	"fmt"

	"github.com/ipfs/boxo/blockservice"
	"github.com/ipfs/boxo/exchange/offline"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"

	"github.com/relves/landreg/pkg/registry"
)

// Archive keeps the canonical bytes of every finalized transaction,
// content-addressed by receipt CID. Reads go through an offline block
// service over the same store.
type Archive struct {
	bs    blockstore.Blockstore
	bserv blockservice.BlockService
}

// NewArchive creates an in-memory archive.
func NewArchive() *Archive {
	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	bs := blockstore.NewBlockstore(ds)
	return &Archive{
		bs:    bs,
		bserv: blockservice.New(bs, offline.Exchange(bs)),
	}
}

// Put archives canonical transaction bytes under their receipt.
func (a *Archive) Put(ctx context.Context, r registry.Receipt, data []byte) error {
	blk, err := blocks.NewBlockWithCid(data, r.CID())
	if err != nil {
		return fmt.Errorf("build archive block: %w", err)
	}
	if err := a.bs.Put(ctx, blk); err != nil {
		return fmt.Errorf("archive transaction: %w", err)
	}
	return nil
}

// Get returns the archived canonical bytes for a receipt, or
// storage-level not-found from the underlying blockstore.
func (a *Archive) Get(ctx context.Context, r registry.Receipt) ([]byte, error) {
	blk, err := a.bserv.GetBlock(ctx, r.CID())
	if err != nil {
		return nil, err
	}
	return blk.RawData(), nil
}

// Has reports whether a receipt's transaction is archived.
func (a *Archive) Has(ctx context.Context, r registry.Receipt) (bool, error) {
	return a.bs.Has(ctx, r.CID())
}

func (a *Archive) Close() error {
	return a.bserv.Close()
}
