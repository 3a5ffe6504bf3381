package registry

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
)

// TxKind tags the transaction union.
type TxKind string

const (
	TxRegister       TxKind = "register"
	TxCreateOwner    TxKind = "create_owner"
	TxCreateObject   TxKind = "create_object"
	TxTransferObject TxKind = "transfer_object"
	TxRemoveObject   TxKind = "remove_object"
	TxRestoreObject  TxKind = "restore_object"
)

// Kind-specific transaction bodies. The body is serialized once at
// construction time and carried verbatim, so the canonical bytes of a
// transaction never change after signing.

type RegisterBody struct {
	Name string `json:"name"`
}

type CreateOwnerBody struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

type CreateObjectBody struct {
	Title   string     `json:"title"`
	Points  []GeoPoint `json:"points"`
	OwnerID uint64     `json:"owner_id"`
}

type TransferObjectBody struct {
	ObjectID uint64 `json:"object_id"`
	OwnerID  uint64 `json:"owner_id"`
}

type RemoveObjectBody struct {
	ObjectID uint64 `json:"object_id"`
}

type RestoreObjectBody struct {
	ObjectID uint64 `json:"object_id"`
}

// Transaction is a signed state-change request. Kind, Signer, Timestamp and
// Body are covered by Signature; the receipt is derived from the whole
// envelope including the signature.
type Transaction struct {
	Kind      TxKind          `json:"kind"`
	Signer    HexBytes        `json:"signer"`
	Timestamp int64           `json:"timestamp"`
	Body      json.RawMessage `json:"body"`
	Signature HexBytes        `json:"signature"`
}

// signingEnvelope is Transaction minus the signature; its JSON form is the
// canonical payload the signature covers.
type signingEnvelope struct {
	Kind      TxKind          `json:"kind"`
	Signer    HexBytes        `json:"signer"`
	Timestamp int64           `json:"timestamp"`
	Body      json.RawMessage `json:"body"`
}

// SigningBytes returns the canonical payload bytes covered by the signature.
func (t *Transaction) SigningBytes() ([]byte, error) {
	data, err := json.Marshal(signingEnvelope{
		Kind:      t.Kind,
		Signer:    t.Signer,
		Timestamp: t.Timestamp,
		Body:      t.Body,
	})
	if err != nil {
		return nil, WrapError(KindInternal, "encode transaction payload", err)
	}
	return data, nil
}

// CanonicalBytes returns the full signed envelope in its canonical encoding.
// These are the bytes the receipt is derived from and the bytes the ledger
// archives.
func (t *Transaction) CanonicalBytes() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, WrapError(KindInternal, "encode transaction", err)
	}
	return data, nil
}

// Receipt derives the content-derived identifier of the signed transaction.
func (t *Transaction) Receipt() (Receipt, error) {
	data, err := t.CanonicalBytes()
	if err != nil {
		return Receipt{}, err
	}
	return computeReceipt(data)
}

// Verify checks the signature against the signer key carried by the
// transaction.
func (t *Transaction) Verify() error {
	if len(t.Signer) != ed25519.PublicKeySize {
		return NewError(KindValidation, fmt.Sprintf("signer key must be %d bytes", ed25519.PublicKeySize))
	}
	payload, err := t.SigningBytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(t.Signer), payload, t.Signature) {
		return NewError(KindValidation, "transaction signature does not verify")
	}
	return nil
}

// DecodeTransaction parses canonical transaction bytes back into a
// Transaction, as archived by the ledger.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, WrapError(KindDecode, "decode transaction", err)
	}
	return &t, nil
}

// DecodeBody unmarshals the kind-specific body into out.
func (t *Transaction) DecodeBody(out any) error {
	if err := json.Unmarshal(t.Body, out); err != nil {
		return WrapError(KindDecode, fmt.Sprintf("decode %s body", t.Kind), err)
	}
	return nil
}
