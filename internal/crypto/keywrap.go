package crypto

import "crypto/rand"

// Associated-data labels bind each ciphertext to its purpose so a wrapped
// DEK can never be fed back in as a field ciphertext or vice versa.
var (
	aadKeyWrap   = []byte("vault/dek-wrap/v1")
	aadInviteKey = []byte("vault/invite-stage/v1")
)

const DEKSize = 32

// NewDEK generates a fresh tenant data-encryption key.
func NewDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, err
	}
	return dek, nil
}

// WrapKey seals the DEK under a password-derived KEK.
func WrapKey(dek []byte, kek [32]byte) ([]byte, error) {
	return SealX(kek[:], dek, aadKeyWrap)
}

// UnwrapKey recovers the DEK. Succeeding is the sole proof that the KEK,
// and thus the password behind it, is correct.
func UnwrapKey(wrapped []byte, kek [32]byte) ([]byte, error) {
	return OpenX(kek[:], wrapped, aadKeyWrap)
}

// StageKey seals the DEK under a KEK derived from an invite code, for the
// window between invite creation and redemption.
func StageKey(dek []byte, kek [32]byte) ([]byte, error) {
	return SealX(kek[:], dek, aadInviteKey)
}

// UnstageKey recovers a DEK staged by StageKey.
func UnstageKey(staged []byte, kek [32]byte) ([]byte, error) {
	return OpenX(kek[:], staged, aadInviteKey)
}
