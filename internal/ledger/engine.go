package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relves/landreg/internal/storage"
	"github.com/relves/landreg/pkg/registry"
)

// engine finalizes batches of submissions: it executes each transaction
// against the state store, records its execution result, archives its bytes,
// and seals the batch into the merkle tree with a signed checkpoint.
type engine struct {
	store   storage.StateStore
	archive *Archive
	tree    *tree
	signer  *CheckpointSigner
	logger  *slog.Logger
}

// seal finalizes one batch, returning the statuses of the transactions it
// applied. The engine is the only writer to the store and the tree, so no
// locking is needed here.
func (e *engine) seal(ctx context.Context, batch []submission) ([]registry.ResultStatus, error) {
	from := e.tree.size()
	var leaves [][]byte
	var statuses []registry.ResultStatus

	for _, sub := range batch {
		status, applied, err := e.apply(ctx, sub, from+uint64(len(leaves))+1)
		if err != nil {
			return nil, fmt.Errorf("finalize %s: %w", sub.receipt, err)
		}
		if !applied {
			// Duplicate receipt: the first result stands and the
			// transaction is not re-applied or re-sealed.
			continue
		}
		statuses = append(statuses, status)
		leaves = append(leaves, leafHash(sub.raw))
	}

	if len(leaves) == 0 {
		return statuses, nil
	}

	if err := e.store.AppendLeaves(ctx, from, leaves); err != nil {
		return nil, fmt.Errorf("persist leaves: %w", err)
	}
	for _, h := range leaves {
		if err := e.tree.append(h); err != nil {
			return nil, fmt.Errorf("append leaf: %w", err)
		}
	}
	root, err := e.tree.root()
	if err != nil {
		return nil, err
	}
	size := e.tree.size()
	checkpoint := e.signer.Checkpoint(size, root)
	if err := e.store.SetTreeState(ctx, size, root, checkpoint); err != nil {
		return nil, fmt.Errorf("persist tree state: %w", err)
	}

	e.logger.Info("sealed batch", "size", size, "batch", len(leaves), "root", fmt.Sprintf("%x", root[:8]))
	return statuses, nil
}

// apply executes one transaction. Returns applied=false when the receipt
// already has a result (duplicate submission). Execution failures are
// recorded as error results, not returned: only infrastructure failures
// surface as errors.
func (e *engine) apply(ctx context.Context, sub submission, height uint64) (registry.ResultStatus, bool, error) {
	txHash := sub.receipt.String()

	seen, err := e.store.HasResult(ctx, txHash)
	if err != nil {
		return "", false, err
	}
	if seen {
		return "", false, nil
	}

	res := &registry.ExecutionResult{
		TxHash:      txHash,
		Kind:        sub.tx.Kind,
		Status:      registry.StatusOK,
		BlockHeight: height,
		FinalizedAt: time.Now().UTC(),
	}

	if err := e.execute(ctx, sub.tx, res); err != nil {
		if isExecutionError(err) {
			res.Status = registry.StatusError
			res.Description = err.Error()
			e.logger.Warn("transaction rejected", "tx", txHash, "kind", sub.tx.Kind, "reason", err)
		} else {
			return "", false, err
		}
	}

	if err := e.store.PutResult(ctx, res); err != nil {
		return "", false, err
	}
	if err := e.archive.Put(ctx, sub.receipt, sub.raw); err != nil {
		return "", false, err
	}
	return res.Status, true, nil
}

func (e *engine) execute(ctx context.Context, tx *registry.Transaction, res *registry.ExecutionResult) error {
	if err := tx.Verify(); err != nil {
		return execError("signature does not verify")
	}

	switch tx.Kind {
	case registry.TxRegister:
		var body registry.RegisterBody
		if err := tx.DecodeBody(&body); err != nil {
			return execError("malformed register body")
		}
		return e.store.InsertParticipant(ctx, tx.Signer, body.Name)

	case registry.TxCreateOwner:
		var body registry.CreateOwnerBody
		if err := tx.DecodeBody(&body); err != nil {
			return execError("malformed create_owner body")
		}
		id, err := e.store.InsertOwner(ctx, body.Firstname, body.Lastname, tx.Signer)
		if err != nil {
			return err
		}
		res.OwnerID = &id
		return nil

	case registry.TxCreateObject:
		var body registry.CreateObjectBody
		if err := tx.DecodeBody(&body); err != nil {
			return execError("malformed create_object body")
		}
		exists, err := e.store.OwnerExists(ctx, body.OwnerID)
		if err != nil {
			return err
		}
		if !exists {
			return execError(fmt.Sprintf("owner %d does not exist", body.OwnerID))
		}
		id, err := e.store.InsertObject(ctx, body.Title, body.Points, body.OwnerID)
		if err != nil {
			return err
		}
		res.ObjectID = &id
		return nil

	case registry.TxTransferObject:
		var body registry.TransferObjectBody
		if err := tx.DecodeBody(&body); err != nil {
			return execError("malformed transfer_object body")
		}
		exists, err := e.store.OwnerExists(ctx, body.OwnerID)
		if err != nil {
			return err
		}
		if !exists {
			return execError(fmt.Sprintf("owner %d does not exist", body.OwnerID))
		}
		if err := e.store.SetObjectOwner(ctx, body.ObjectID, body.OwnerID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return execError(fmt.Sprintf("object %d does not exist", body.ObjectID))
			}
			return err
		}
		res.ObjectID = &body.ObjectID
		return nil

	case registry.TxRemoveObject:
		return e.setDeleted(ctx, tx, res, true)

	case registry.TxRestoreObject:
		return e.setDeleted(ctx, tx, res, false)

	default:
		return execError(fmt.Sprintf("unknown transaction kind %q", tx.Kind))
	}
}

// setDeleted applies remove/restore. Applying remove to an already-deleted
// parcel (or restore to an active one) is an idempotent no-op that still
// succeeds; see DESIGN.md.
func (e *engine) setDeleted(ctx context.Context, tx *registry.Transaction, res *registry.ExecutionResult, deleted bool) error {
	kind := "remove_object"
	var body registry.RemoveObjectBody
	if !deleted {
		kind = "restore_object"
		var rb registry.RestoreObjectBody
		if err := tx.DecodeBody(&rb); err != nil {
			return execError("malformed " + kind + " body")
		}
		body.ObjectID = rb.ObjectID
	} else if err := tx.DecodeBody(&body); err != nil {
		return execError("malformed " + kind + " body")
	}

	if err := e.store.SetObjectDeleted(ctx, body.ObjectID, deleted); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return execError(fmt.Sprintf("object %d does not exist", body.ObjectID))
		}
		return err
	}
	res.ObjectID = &body.ObjectID
	return nil
}

// executionError marks a transaction-level rejection recorded in the result,
// as opposed to an infrastructure failure that aborts the seal.
type executionError struct{ msg string }

func (e executionError) Error() string { return e.msg }

func execError(msg string) error { return executionError{msg: msg} }

func isExecutionError(err error) bool {
	var e executionError
	return errors.As(err, &e)
}
