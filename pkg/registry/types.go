package registry

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// HexBytes is a byte slice rendered as lowercase hex in JSON, matching the
// wire encoding used for keys and signatures throughout the API.
type HexBytes []byte

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	*h = b
	return nil
}

// GeoPoint is a plane coordinate on a parcel boundary. Coordinates carry no
// range semantics beyond being finite numbers.
type GeoPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Owner is a registered title holder. Owned by the ledger; the gateway only
// reads it.
type Owner struct {
	ID        uint64   `json:"id"`
	Firstname string   `json:"firstname"`
	Lastname  string   `json:"lastname"`
	PublicKey HexBytes `json:"public_key"`
}

// Object is a land parcel. OwnerID changes only through transfer
// transactions; Deleted toggles only through remove/restore.
type Object struct {
	ID       uint64     `json:"id"`
	Title    string     `json:"title"`
	Boundary []GeoPoint `json:"boundary"`
	OwnerID  uint64     `json:"owner_id"`
	Deleted  bool       `json:"deleted"`
}

// ResultStatus reports whether a finalized transaction applied cleanly.
type ResultStatus string

const (
	StatusOK    ResultStatus = "ok"
	StatusError ResultStatus = "error"
)

// ExecutionResult is the finalized outcome of a submitted transaction,
// resolved by receipt through the query service. Results are immutable once
// recorded.
type ExecutionResult struct {
	TxHash      string       `json:"tx_hash"`
	Kind        TxKind       `json:"kind"`
	Status      ResultStatus `json:"status"`
	Description string       `json:"description,omitempty"`
	OwnerID     *uint64      `json:"owner_id,omitempty"`
	ObjectID    *uint64      `json:"object_id,omitempty"`
	BlockHeight uint64       `json:"block_height"`
	FinalizedAt time.Time    `json:"finalized_at"`
}

// Timestamp returns the caller-side construction time carried by every
// transaction. Used only for backend bookkeeping, never for gateway logic.
func Timestamp() int64 {
	return time.Now().UnixNano()
}
