package ledger_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relves/landreg/internal/ledger"
	"github.com/relves/landreg/internal/storage/sqlite"
	"github.com/relves/landreg/pkg/registry"
)

type testNode struct {
	node   *ledger.Node
	store  *sqlite.Store
	cancel context.CancelFunc
}

func startNode(t *testing.T) *testNode {
	t.Helper()

	store, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ledger.NewCheckpointSigner(priv, "registry.test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	node, err := ledger.Open(ctx, store, signer, ledger.Options{
		BatchMaxAge:  10 * time.Millisecond,
		BatchMaxSize: 8,
	})
	require.NoError(t, err)

	go node.Run(ctx)
	t.Cleanup(func() {
		cancel()
		node.Close()
	})

	return &testNode{node: node, store: store, cancel: cancel}
}

func keypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func awaitResult(t *testing.T, tn *testNode, r registry.Receipt) *registry.ExecutionResult {
	t.Helper()
	var res *registry.ExecutionResult
	require.Eventually(t, func() bool {
		got, err := tn.store.Result(context.Background(), r.String())
		if err != nil {
			return false
		}
		res = got
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return res
}

func TestNode_OwnerLifecycle(t *testing.T) {
	tn := startNode(t)
	pub, priv := keypair(t)

	tx, err := registry.NewCreateOwner(pub, priv, "Marie", "Curie", registry.Timestamp())
	require.NoError(t, err)

	receipt, err := tn.node.Submit(context.Background(), tx)
	require.NoError(t, err)

	res := awaitResult(t, tn, receipt)
	assert.Equal(t, registry.StatusOK, res.Status)
	assert.Equal(t, registry.TxCreateOwner, res.Kind)
	require.NotNil(t, res.OwnerID)
	assert.Equal(t, uint64(1), res.BlockHeight)

	owner, err := tn.store.Owner(context.Background(), *res.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, "Marie", owner.Firstname)
	assert.Equal(t, "Curie", owner.Lastname)
	assert.Equal(t, registry.HexBytes(pub), owner.PublicKey)
}

func TestNode_ObjectLifecycle(t *testing.T) {
	tn := startNode(t)
	pub, priv := keypair(t)
	ctx := context.Background()

	ownerTx, err := registry.NewCreateOwner(pub, priv, "Ada", "Lovelace", registry.Timestamp())
	require.NoError(t, err)
	ownerReceipt, err := tn.node.Submit(context.Background(), ownerTx)
	require.NoError(t, err)
	ownerRes := awaitResult(t, tn, ownerReceipt)
	require.NotNil(t, ownerRes.OwnerID)

	boundary := []registry.GeoPoint{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	objTx, err := registry.NewCreateObject(pub, priv, "Plot 7", boundary, *ownerRes.OwnerID, registry.Timestamp())
	require.NoError(t, err)
	objReceipt, err := tn.node.Submit(context.Background(), objTx)
	require.NoError(t, err)
	objRes := awaitResult(t, tn, objReceipt)
	require.Equal(t, registry.StatusOK, objRes.Status)
	require.NotNil(t, objRes.ObjectID)

	rmTx, err := registry.NewRemoveObject(pub, priv, *objRes.ObjectID, registry.Timestamp())
	require.NoError(t, err)
	rmReceipt, err := tn.node.Submit(context.Background(), rmTx)
	require.NoError(t, err)
	rmRes := awaitResult(t, tn, rmReceipt)
	assert.Equal(t, registry.StatusOK, rmRes.Status)

	obj, err := tn.store.Object(ctx, *objRes.ObjectID)
	require.NoError(t, err)
	assert.True(t, obj.Deleted)
	assert.Equal(t, boundary, obj.Boundary)

	rsTx, err := registry.NewRestoreObject(pub, priv, *objRes.ObjectID, registry.Timestamp())
	require.NoError(t, err)
	rsReceipt, err := tn.node.Submit(context.Background(), rsTx)
	require.NoError(t, err)
	awaitResult(t, tn, rsReceipt)

	obj, err = tn.store.Object(ctx, *objRes.ObjectID)
	require.NoError(t, err)
	assert.False(t, obj.Deleted)
}

func TestNode_TransferObject(t *testing.T) {
	tn := startNode(t)
	pub, priv := keypair(t)
	ctx := context.Background()

	first, err := registry.NewCreateOwner(pub, priv, "First", "Holder", registry.Timestamp())
	require.NoError(t, err)
	firstReceipt, err := tn.node.Submit(context.Background(), first)
	require.NoError(t, err)
	firstRes := awaitResult(t, tn, firstReceipt)

	second, err := registry.NewCreateOwner(pub, priv, "Second", "Holder", registry.Timestamp())
	require.NoError(t, err)
	secondReceipt, err := tn.node.Submit(context.Background(), second)
	require.NoError(t, err)
	secondRes := awaitResult(t, tn, secondReceipt)

	objTx, err := registry.NewCreateObject(pub, priv, "Plot 1", []registry.GeoPoint{{X: 1, Y: 2}}, *firstRes.OwnerID, registry.Timestamp())
	require.NoError(t, err)
	objReceipt, err := tn.node.Submit(context.Background(), objTx)
	require.NoError(t, err)
	objRes := awaitResult(t, tn, objReceipt)
	require.NotNil(t, objRes.ObjectID)

	transfer, err := registry.NewTransferObject(pub, priv, *objRes.ObjectID, *secondRes.OwnerID, registry.Timestamp())
	require.NoError(t, err)
	transferReceipt, err := tn.node.Submit(context.Background(), transfer)
	require.NoError(t, err)
	transferRes := awaitResult(t, tn, transferReceipt)
	assert.Equal(t, registry.StatusOK, transferRes.Status)

	obj, err := tn.store.Object(ctx, *objRes.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, *secondRes.OwnerID, obj.OwnerID)
}

func TestNode_UnknownOwnerRecordsErrorResult(t *testing.T) {
	tn := startNode(t)
	pub, priv := keypair(t)

	tx, err := registry.NewCreateObject(pub, priv, "Orphan", []registry.GeoPoint{{X: 0, Y: 0}}, 999, registry.Timestamp())
	require.NoError(t, err)

	receipt, err := tn.node.Submit(context.Background(), tx)
	require.NoError(t, err)

	res := awaitResult(t, tn, receipt)
	assert.Equal(t, registry.StatusError, res.Status)
	assert.Contains(t, res.Description, "owner 999")
	assert.Nil(t, res.ObjectID)
}

func TestNode_DuplicateSubmissionKeepsFirstResult(t *testing.T) {
	tn := startNode(t)
	pub, priv := keypair(t)

	tx, err := registry.NewCreateOwner(pub, priv, "Only", "Once", registry.Timestamp())
	require.NoError(t, err)

	receipt, err := tn.node.Submit(context.Background(), tx)
	require.NoError(t, err)
	first := awaitResult(t, tn, receipt)

	again, err := tn.node.Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, receipt, again)

	// Give the engine a chance to process the duplicate, then confirm the
	// result and the state did not change.
	time.Sleep(50 * time.Millisecond)
	res := awaitResult(t, tn, receipt)
	assert.Equal(t, first.OwnerID, res.OwnerID)
	assert.Equal(t, first.BlockHeight, res.BlockHeight)

	owners, err := tn.store.Owners(context.Background())
	require.NoError(t, err)
	assert.Len(t, owners, 1)
}

func TestNode_SubmitRejectsBadSignature(t *testing.T) {
	tn := startNode(t)
	pub, priv := keypair(t)

	tx, err := registry.NewRegister(pub, priv, "wallet", registry.Timestamp())
	require.NoError(t, err)
	tx.Signature[0] ^= 0xff

	_, err = tn.node.Submit(context.Background(), tx)
	require.Error(t, err)
	assert.Equal(t, registry.KindValidation, registry.KindOf(err))
}

func TestNode_CheckpointVerifies(t *testing.T) {
	tn := startNode(t)
	pub, priv := keypair(t)
	ctx := context.Background()

	tx, err := registry.NewRegister(pub, priv, "wallet", registry.Timestamp())
	require.NoError(t, err)
	receipt, err := tn.node.Submit(context.Background(), tx)
	require.NoError(t, err)
	awaitResult(t, tn, receipt)

	// The checkpoint is written at the end of the seal, just after the
	// result becomes visible.
	var note []byte
	require.Eventually(t, func() bool {
		note, err = tn.store.Checkpoint(ctx)
		return err == nil && note != nil
	}, 2*time.Second, 5*time.Millisecond)

	size, root, err := ledger.VerifyCheckpoint(note, tn.node.Signer().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), size)
	assert.Len(t, root, 32)

	ok, err := tn.node.Archive().Has(ctx, receipt)
	require.NoError(t, err)
	assert.True(t, ok)

	raw, err := tn.node.Archive().Get(ctx, receipt)
	require.NoError(t, err)
	decoded, err := registry.DecodeTransaction(raw)
	require.NoError(t, err)
	assert.Equal(t, registry.TxRegister, decoded.Kind)
}

func TestNode_HydratesFromPersistedState(t *testing.T) {
	dir := t.TempDir()
	store, err := sqlite.Open(dir)
	require.NoError(t, err)

	_, nodePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ledger.NewCheckpointSigner(nodePriv, "registry.test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	node, err := ledger.Open(ctx, store, signer, ledger.Options{
		BatchMaxAge:  10 * time.Millisecond,
		BatchMaxSize: 8,
	})
	require.NoError(t, err)
	go node.Run(ctx)

	tn := &testNode{node: node, store: store, cancel: cancel}
	pub, priv := keypair(t)
	tx, err := registry.NewRegister(pub, priv, "persisted", registry.Timestamp())
	require.NoError(t, err)
	receipt, err := node.Submit(ctx, tx)
	require.NoError(t, err)
	awaitResult(t, tn, receipt)
	require.Eventually(t, func() bool {
		note, err := store.Checkpoint(context.Background())
		return err == nil && note != nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	node.Close()
	require.NoError(t, store.Close())

	// Reopen over the same files; the tree must rebuild to the stored root.
	store, err = sqlite.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	reopened, err := ledger.Open(context.Background(), store, signer, ledger.Options{})
	require.NoError(t, err)
	defer reopened.Close()

	note, err := store.Checkpoint(context.Background())
	require.NoError(t, err)
	size, _, err := ledger.VerifyCheckpoint(note, signer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), size)
}

func TestNode_SealsPendingAtShutdown(t *testing.T) {
	store, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ledger.NewCheckpointSigner(priv, "registry.test")
	require.NoError(t, err)

	// A batch age of an hour keeps the submission queued until shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	node, err := ledger.Open(ctx, store, signer, ledger.Options{
		BatchMaxAge:  time.Hour,
		BatchMaxSize: 64,
	})
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })

	done := make(chan error, 1)
	go func() { done <- node.Run(ctx) }()

	pub, sec := keypair(t)
	tx, err := registry.NewCreateOwner(pub, sec, "Grace", "Hopper", registry.Timestamp())
	require.NoError(t, err)
	receipt, err := node.Submit(context.Background(), tx)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// The client already holds a receipt for this submission, so it must
	// resolve to a result even though the node stopped before the batch aged.
	res, err := store.Result(context.Background(), receipt.String())
	require.NoError(t, err)
	assert.Equal(t, registry.StatusOK, res.Status)
}
