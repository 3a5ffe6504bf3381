package registry

import (
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"
)

// ReceiptSize is the digest length of a receipt in bytes.
const ReceiptSize = 32

// Receipt is the content-derived identifier of a submitted transaction: the
// SHA2-256 digest of its canonical signed bytes. The same transaction bytes
// always yield the same receipt, on the gateway and on any party re-deriving
// it.
type Receipt [ReceiptSize]byte

// String renders the receipt as lowercase hex, the form used in URLs and in
// the tx_hash response field.
func (r Receipt) String() string {
	return hex.EncodeToString(r[:])
}

// CID returns the receipt as a CIDv1 with raw codec, the key under which the
// ledger archives the transaction bytes.
func (r Receipt) CID() cid.Cid {
	sum, err := mh.Encode(r[:], mh.SHA2_256)
	if err != nil {
		// 32-byte sha2-256 digests always encode
		panic(err)
	}
	return cid.NewCidV1(uint64(multicodec.Raw), sum)
}

// ParseReceipt decodes a hex receipt as found in result/{tx} URLs.
func ParseReceipt(s string) (Receipt, error) {
	var r Receipt
	b, err := hex.DecodeString(s)
	if err != nil {
		return r, WrapError(KindDecode, "unable to decode transaction hash", err)
	}
	if len(b) != ReceiptSize {
		return r, NewError(KindDecode, fmt.Sprintf("transaction hash must be %d bytes, got %d", ReceiptSize, len(b)))
	}
	copy(r[:], b)
	return r, nil
}

// computeReceipt derives the receipt for canonical signed transaction bytes.
func computeReceipt(data []byte) (Receipt, error) {
	var r Receipt
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return r, WrapError(KindInternal, "hash transaction", err)
	}
	dec, err := mh.Decode(sum)
	if err != nil {
		return r, WrapError(KindInternal, "decode multihash", err)
	}
	copy(r[:], dec.Digest)
	return r, nil
}
