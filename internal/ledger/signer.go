package ledger

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// CheckpointSigner signs sealed tree states with the node's ed25519 key so
// external parties can verify what this node claims to have finalized.
type CheckpointSigner struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	name       string
}

// NewCheckpointSigner creates a signer for ledger checkpoints.
func NewCheckpointSigner(privateKey ed25519.PrivateKey, name string) (*CheckpointSigner, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d, want %d", len(privateKey), ed25519.PrivateKeySize)
	}

	publicKey := privateKey.Public().(ed25519.PublicKey)

	if name == "" {
		// Default name format: node-<first-8-hex-chars-of-pubkey>
		name = fmt.Sprintf("node-%x", publicKey[:4])
	}

	return &CheckpointSigner{
		privateKey: privateKey,
		publicKey:  publicKey,
		name:       name,
	}, nil
}

// Name returns the signer's name (first line of the checkpoint body).
func (s *CheckpointSigner) Name() string {
	return s.name
}

// KeyHash returns the key ID per the signed note format (c2sp.org/signed-note).
// The key ID is SHA256(name + "\n" + encoded_key)[:4] where encoded_key is
// the type byte (0x01 for Ed25519) followed by the public key bytes.
func (s *CheckpointSigner) KeyHash() uint32 {
	encoded := append([]byte{0x01}, s.publicKey...)
	h := sha256.Sum256([]byte(s.name + "\n" + string(encoded)))
	return binary.BigEndian.Uint32(h[:4])
}

// PublicKey returns the node's public key.
func (s *CheckpointSigner) PublicKey() ed25519.PublicKey {
	return s.publicKey
}

// Checkpoint produces a signed note over the sealed tree state:
//
//	<name>
//	<size>
//	<root as base64>
//
//	— <name> <base64(keyhash || signature)>
func (s *CheckpointSigner) Checkpoint(size uint64, root []byte) []byte {
	body := fmt.Sprintf("%s\n%d\n%s\n", s.name, size, base64.StdEncoding.EncodeToString(root))
	sig := ed25519.Sign(s.privateKey, []byte(body))

	var keyed bytes.Buffer
	keyed.Grow(4 + len(sig))
	var kh [4]byte
	binary.BigEndian.PutUint32(kh[:], s.KeyHash())
	keyed.Write(kh[:])
	keyed.Write(sig)

	return []byte(fmt.Sprintf("%s\n— %s %s\n", body, s.name, base64.StdEncoding.EncodeToString(keyed.Bytes())))
}

// VerifyCheckpoint checks a checkpoint note against a public key. Returns the
// claimed size and root on success.
func VerifyCheckpoint(note []byte, pub ed25519.PublicKey) (size uint64, root []byte, err error) {
	parts := bytes.SplitN(note, []byte("\n\n— "), 2)
	if len(parts) != 2 {
		return 0, nil, fmt.Errorf("malformed checkpoint note")
	}
	body := append(append([]byte(nil), parts[0]...), '\n')

	var name string
	var rootB64 string
	if _, err := fmt.Sscanf(string(body), "%s\n%d\n%s\n", &name, &size, &rootB64); err != nil {
		return 0, nil, fmt.Errorf("parse checkpoint body: %w", err)
	}
	root, err = base64.StdEncoding.DecodeString(rootB64)
	if err != nil {
		return 0, nil, fmt.Errorf("decode checkpoint root: %w", err)
	}

	trailer := bytes.TrimSuffix(parts[1], []byte("\n"))
	fields := bytes.SplitN(trailer, []byte(" "), 2)
	if len(fields) != 2 {
		return 0, nil, fmt.Errorf("malformed checkpoint signature line")
	}
	keyed, err := base64.StdEncoding.DecodeString(string(fields[1]))
	if err != nil {
		return 0, nil, fmt.Errorf("decode checkpoint signature: %w", err)
	}
	if len(keyed) != 4+ed25519.SignatureSize {
		return 0, nil, fmt.Errorf("checkpoint signature has wrong length")
	}
	if !ed25519.Verify(pub, body, keyed[4:]) {
		return 0, nil, fmt.Errorf("checkpoint signature does not verify")
	}
	return size, root, nil
}
