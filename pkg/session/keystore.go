// Package session manages a client's cryptographic identity. The keypair is
// held entirely on the client in two permanent cookies; the gateway keeps no
// session table and reloads the identity from the request on every write.
package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/relves/landreg/pkg/registry"
)

const (
	// CookiePublicKey and CookieSecretKey are the cookie names carrying the
	// hex-encoded session keypair.
	CookiePublicKey = "public_key"
	CookieSecretKey = "secret_key"

	cookieMaxAge = 10 * 365 * 24 * time.Hour
)

// Identity is a client-held ed25519 session keypair. The secret key never
// leaves the pair it was generated with.
type Identity struct {
	Public ed25519.PublicKey
	Secret ed25519.PrivateKey
}

// NewIdentity generates a fresh keypair with cryptographically secure
// randomness. It has no side effect until persisted with Save.
func NewIdentity() (Identity, error) {
	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, registry.WrapError(registry.KindInternal, "generate session keypair", err)
	}
	return Identity{Public: pub, Secret: sec}, nil
}

// Save writes both key halves, hex-encoded, as permanent cookies scoped to
// the whole application path.
func Save(w http.ResponseWriter, id Identity) {
	expires := time.Now().Add(cookieMaxAge)
	http.SetCookie(w, &http.Cookie{
		Name:    CookiePublicKey,
		Value:   hex.EncodeToString(id.Public),
		Path:    "/",
		Expires: expires,
	})
	http.SetCookie(w, &http.Cookie{
		Name:    CookieSecretKey,
		Value:   hex.EncodeToString(id.Secret),
		Path:    "/",
		Expires: expires,
	})
}

// Load reads the identity back from the request cookies. It fails with an
// Auth-kind error when either cookie is absent or not valid hex of the
// expected length. No caching: every call re-reads the request.
func Load(r *http.Request) (Identity, error) {
	pub, err := loadHexCookie(r, CookiePublicKey, ed25519.PublicKeySize)
	if err != nil {
		return Identity{}, err
	}
	sec, err := loadHexCookie(r, CookieSecretKey, ed25519.PrivateKeySize)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Public: pub, Secret: sec}, nil
}

func loadHexCookie(r *http.Request, name string, wantLen int) ([]byte, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return nil, registry.NewError(registry.KindAuth, fmt.Sprintf("unable to find value with given key %s", name))
	}
	b, err := hex.DecodeString(c.Value)
	if err != nil {
		return nil, registry.WrapError(registry.KindAuth, fmt.Sprintf("cookie %s is not valid hex", name), err)
	}
	if len(b) != wantLen {
		return nil, registry.NewError(registry.KindAuth, fmt.Sprintf("cookie %s must decode to %d bytes", name, wantLen))
	}
	return b, nil
}
