package registry

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"math"
)

// Constructors for the six transaction kinds. Each validates its own field
// set before signing and fails with a Validation-kind error that never
// reaches the ledger.

// NewRegister builds a signed register transaction announcing a new session
// identity under the given display name.
func NewRegister(pub ed25519.PublicKey, sec ed25519.PrivateKey, name string, ts int64) (*Transaction, error) {
	if name == "" {
		return nil, NewError(KindValidation, "name must not be empty")
	}
	return build(pub, sec, TxRegister, RegisterBody{Name: name}, ts)
}

// NewCreateOwner builds a signed owner-creation transaction.
func NewCreateOwner(pub ed25519.PublicKey, sec ed25519.PrivateKey, firstname, lastname string, ts int64) (*Transaction, error) {
	if firstname == "" {
		return nil, NewError(KindValidation, "firstname must not be empty")
	}
	if lastname == "" {
		return nil, NewError(KindValidation, "lastname must not be empty")
	}
	return build(pub, sec, TxCreateOwner, CreateOwnerBody{Firstname: firstname, Lastname: lastname}, ts)
}

// NewCreateObject builds a signed parcel-creation transaction. The boundary
// must carry at least one point and every coordinate must be finite.
func NewCreateObject(pub ed25519.PublicKey, sec ed25519.PrivateKey, title string, points []GeoPoint, ownerID uint64, ts int64) (*Transaction, error) {
	if title == "" {
		return nil, NewError(KindValidation, "title must not be empty")
	}
	if len(points) == 0 {
		return nil, NewError(KindValidation, "boundary must have at least one point")
	}
	for i, p := range points {
		if !finite(p.X) || !finite(p.Y) {
			return nil, NewError(KindValidation, fmt.Sprintf("boundary point %d is not finite", i))
		}
	}
	return build(pub, sec, TxCreateObject, CreateObjectBody{Title: title, Points: points, OwnerID: ownerID}, ts)
}

// NewTransferObject builds a signed ownership-transfer transaction.
func NewTransferObject(pub ed25519.PublicKey, sec ed25519.PrivateKey, objectID, ownerID uint64, ts int64) (*Transaction, error) {
	return build(pub, sec, TxTransferObject, TransferObjectBody{ObjectID: objectID, OwnerID: ownerID}, ts)
}

// NewRemoveObject builds a signed soft-delete transaction.
func NewRemoveObject(pub ed25519.PublicKey, sec ed25519.PrivateKey, objectID uint64, ts int64) (*Transaction, error) {
	return build(pub, sec, TxRemoveObject, RemoveObjectBody{ObjectID: objectID}, ts)
}

// NewRestoreObject builds a signed restore transaction.
func NewRestoreObject(pub ed25519.PublicKey, sec ed25519.PrivateKey, objectID uint64, ts int64) (*Transaction, error) {
	return build(pub, sec, TxRestoreObject, RestoreObjectBody{ObjectID: objectID}, ts)
}

func build(pub ed25519.PublicKey, sec ed25519.PrivateKey, kind TxKind, body any, ts int64) (*Transaction, error) {
	if len(pub) != ed25519.PublicKeySize || len(sec) != ed25519.PrivateKeySize {
		return nil, NewError(KindAuth, "session keypair has wrong length")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, WrapError(KindInternal, "encode transaction body", err)
	}
	tx := &Transaction{
		Kind:      kind,
		Signer:    HexBytes(pub),
		Timestamp: ts,
		Body:      raw,
	}
	payload, err := tx.SigningBytes()
	if err != nil {
		return nil, err
	}
	tx.Signature = ed25519.Sign(sec, payload)
	return tx, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
