package storage

import (
	"context"
	"errors"

	"github.com/relves/landreg/pkg/registry"
)

// ErrNotFound is returned by lookups addressing an id or receipt the store
// has no row for.
var ErrNotFound = errors.New("not found")

// StateStore abstracts the ledger's finalized state: the registry read
// surface plus the bookkeeping the finalization engine writes. All methods
// are safe for concurrent use; the engine is the only writer.
type StateStore interface {
	// Registry reads
	Owners(ctx context.Context) ([]registry.Owner, error)
	Owner(ctx context.Context, id uint64) (*registry.Owner, error)
	Objects(ctx context.Context) ([]registry.Object, error)
	Object(ctx context.Context, id uint64) (*registry.Object, error)

	// Execution results, keyed by receipt hex
	Result(ctx context.Context, txHash string) (*registry.ExecutionResult, error)
	HasResult(ctx context.Context, txHash string) (bool, error)
	PutResult(ctx context.Context, res *registry.ExecutionResult) error

	// Engine writes
	InsertParticipant(ctx context.Context, publicKey []byte, name string) error
	InsertOwner(ctx context.Context, firstname, lastname string, publicKey []byte) (uint64, error)
	OwnerExists(ctx context.Context, id uint64) (bool, error)
	InsertObject(ctx context.Context, title string, boundary []registry.GeoPoint, ownerID uint64) (uint64, error)
	SetObjectOwner(ctx context.Context, objectID, ownerID uint64) error
	SetObjectDeleted(ctx context.Context, objectID uint64, deleted bool) error

	// Ledger tree state
	AppendLeaves(ctx context.Context, from uint64, hashes [][]byte) error
	LeafHashes(ctx context.Context, from, to uint64) ([][]byte, error)
	GetTreeState(ctx context.Context) (size uint64, root []byte, err error)
	SetTreeState(ctx context.Context, size uint64, root, checkpoint []byte) error
}
