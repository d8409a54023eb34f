package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const IndexSeedSize = 32

// NewIndexSeed generates the random seed the deterministic-index key is
// derived from. Generated once per deployment, at first setup.
func NewIndexSeed() ([]byte, error) {
	seed := make([]byte, IndexSeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// DeriveIndexKey expands the stored seed into the HMAC key used for
// equality lookups. The key is distinct from the DEK and from every KEK;
// it must be computable before authentication, since login itself looks a
// user up by index token.
func DeriveIndexKey(seed []byte) ([]byte, error) {
	stream := hkdf.New(sha256.New, seed, nil, []byte("vault/identity-index/v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(stream, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Normalize maps a user-supplied identifier to its canonical lookup form.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// DeterministicIndex computes the keyed one-way index token for a value.
// Same normalized input always yields the same token; the token reveals
// nothing about the plaintext on its own.
func DeterministicIndex(indexKey []byte, value string) []byte {
	mac := hmac.New(sha256.New, indexKey)
	mac.Write([]byte(Normalize(value)))
	return mac.Sum(nil)
}
