package ledger_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relves/landreg/internal/ledger"
)

func newSigner(t *testing.T, name string) (*ledger.CheckpointSigner, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	s, err := ledger.NewCheckpointSigner(priv, name)
	require.NoError(t, err)
	return s, pub
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	s, pub := newSigner(t, "registry.test")

	root := sha256.Sum256([]byte("root"))
	note := s.Checkpoint(42, root[:])

	size, gotRoot, err := ledger.VerifyCheckpoint(note, pub)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), size)
	assert.Equal(t, root[:], gotRoot)
}

func TestCheckpoint_WrongKeyRejected(t *testing.T) {
	s, _ := newSigner(t, "registry.test")
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	root := sha256.Sum256([]byte("root"))
	note := s.Checkpoint(1, root[:])

	_, _, err = ledger.VerifyCheckpoint(note, otherPub)
	assert.Error(t, err)
}

func TestCheckpoint_TamperedSizeRejected(t *testing.T) {
	s, pub := newSigner(t, "reg")

	root := sha256.Sum256([]byte("root"))
	note := s.Checkpoint(7, root[:])

	tampered := []byte("reg\n8" + string(note[len("reg\n7"):]))
	_, _, err := ledger.VerifyCheckpoint(tampered, pub)
	assert.Error(t, err)
}

func TestCheckpoint_MalformedNote(t *testing.T) {
	_, pub := newSigner(t, "reg")

	_, _, err := ledger.VerifyCheckpoint([]byte("not a checkpoint"), pub)
	assert.Error(t, err)
}

func TestNewCheckpointSigner_DefaultsName(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s, err := ledger.NewCheckpointSigner(priv, "")
	require.NoError(t, err)
	assert.Contains(t, s.Name(), "node-")
}

func TestNewCheckpointSigner_RejectsShortKey(t *testing.T) {
	_, err := ledger.NewCheckpointSigner([]byte{1, 2, 3}, "reg")
	assert.Error(t, err)
}
