package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
)

// KDFParams are the Argon2id cost parameters plus the per-user salt.
// Salts are generated fresh for every derivation target and never reused.
type KDFParams struct {
	M    uint32 // memory in KiB
	T    uint32 // iterations
	P    uint8  // lanes
	Salt []byte
}

const kdfSaltSize = 32

// DefaultKDF returns server-tuned parameters: a single derivation should
// cost tens of milliseconds on commodity hardware, which is the only
// defense against offline brute force of a stolen wrapped key.
func DefaultKDF() KDFParams {
	salt := make([]byte, kdfSaltSize)
	_, _ = rand.Read(salt)
	return KDFParams{M: 64 * 1024, T: 3, P: 2, Salt: salt}
}

// DeriveKEK turns a password into a 32-byte key-encryption key.
// Deterministic for a given (password, salt) pair.
func DeriveKEK(password []byte, p KDFParams) (kek [32]byte) {
	key := argon2.IDKey(password, p.Salt, p.T, p.M, p.P, 32)
	copy(kek[:], key)
	Zero(key)
	return
}
