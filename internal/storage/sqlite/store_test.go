package sqlite_test

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relves/landreg/internal/storage"
	"github.com/relves/landreg/internal/storage/sqlite"
	"github.com/relves/landreg/pkg/registry"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := sqlite.Open(tmpDir)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(filepath.Join(tmpDir, "registry.db"))
	assert.NoError(t, err, "database file should exist")
}

func TestOwners_InsertAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	pub := make([]byte, 32)
	id, err := store.InsertOwner(ctx, "Ada", "Lovelace", pub)
	require.NoError(t, err)
	require.NotZero(t, id)

	owner, err := store.Owner(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ada", owner.Firstname)
	assert.Equal(t, "Lovelace", owner.Lastname)
	assert.Equal(t, registry.HexBytes(pub), owner.PublicKey)

	owners, err := store.Owners(ctx)
	require.NoError(t, err)
	assert.Len(t, owners, 1)

	exists, err := store.OwnerExists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.Owner(ctx, id+100)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestObjects_Lifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	ownerID, err := store.InsertOwner(ctx, "A", "B", make([]byte, 32))
	require.NoError(t, err)

	boundary := []registry.GeoPoint{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	objID, err := store.InsertObject(ctx, "Plot1", boundary, ownerID)
	require.NoError(t, err)

	obj, err := store.Object(ctx, objID)
	require.NoError(t, err)
	assert.Equal(t, "Plot1", obj.Title)
	assert.Equal(t, boundary, obj.Boundary)
	assert.Equal(t, ownerID, obj.OwnerID)
	assert.False(t, obj.Deleted)

	// Soft delete and restore
	require.NoError(t, store.SetObjectDeleted(ctx, objID, true))
	obj, err = store.Object(ctx, objID)
	require.NoError(t, err)
	assert.True(t, obj.Deleted)

	require.NoError(t, store.SetObjectDeleted(ctx, objID, false))
	obj, err = store.Object(ctx, objID)
	require.NoError(t, err)
	assert.False(t, obj.Deleted)

	// Transfer
	owner2, err := store.InsertOwner(ctx, "C", "D", make([]byte, 32))
	require.NoError(t, err)
	require.NoError(t, store.SetObjectOwner(ctx, objID, owner2))
	obj, err = store.Object(ctx, objID)
	require.NoError(t, err)
	assert.Equal(t, owner2, obj.OwnerID)
	assert.Equal(t, boundary, obj.Boundary, "transfer leaves the boundary untouched")
	assert.False(t, obj.Deleted, "transfer leaves the deleted flag untouched")

	// Unknown object
	assert.ErrorIs(t, store.SetObjectOwner(ctx, objID+50, owner2), storage.ErrNotFound)
	assert.ErrorIs(t, store.SetObjectDeleted(ctx, objID+50, true), storage.ErrNotFound)
}

func TestInsertObject_UnknownOwnerFails(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.InsertObject(ctx, "Plot1", []registry.GeoPoint{{X: 0, Y: 0}}, 42)
	assert.Error(t, err, "foreign key on owner_id rejects unknown owners")
}

func TestResults_PutAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	ownerID := uint64(7)
	res := &registry.ExecutionResult{
		TxHash:      "ab12",
		Kind:        registry.TxCreateOwner,
		Status:      registry.StatusOK,
		OwnerID:     &ownerID,
		BlockHeight: 3,
		FinalizedAt: time.Now().UTC(),
	}
	require.NoError(t, store.PutResult(ctx, res))

	got, err := store.Result(ctx, "ab12")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusOK, got.Status)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, ownerID, *got.OwnerID)
	assert.Equal(t, uint64(3), got.BlockHeight)

	has, err := store.HasResult(ctx, "ab12")
	require.NoError(t, err)
	assert.True(t, has)

	// First write wins; a duplicate receipt does not overwrite.
	dup := *res
	dup.Status = registry.StatusError
	require.NoError(t, store.PutResult(ctx, &dup))
	got, err = store.Result(ctx, "ab12")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusOK, got.Status)

	_, err = store.Result(ctx, "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTreeState_RoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	size, root, err := store.GetTreeState(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Nil(t, root)

	h1 := sha256.Sum256([]byte("leaf-1"))
	h2 := sha256.Sum256([]byte("leaf-2"))
	require.NoError(t, store.AppendLeaves(ctx, 0, [][]byte{h1[:], h2[:]}))

	leaves, err := store.LeafHashes(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	assert.Equal(t, h1[:], leaves[0])

	rootHash := sha256.Sum256([]byte("root"))
	require.NoError(t, store.SetTreeState(ctx, 2, rootHash[:], []byte("signed")))

	size, root, err = store.GetTreeState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), size)
	assert.Equal(t, rootHash[:], root)

	cp, err := store.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("signed"), cp)
}
