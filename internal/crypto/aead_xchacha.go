package crypto

import (
	"crypto/rand"
	"errors"

	xchacha "golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrOpenFailed         = errors.New("crypto: message authentication failed")
)

// SealX encrypts plaintext with XChaCha20-Poly1305 under key. A fresh
// random 24-byte nonce is generated per call and prefixed to the output:
// [nonce||ciphertext||tag].
func SealX(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, xchacha.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// OpenX decrypts data produced by SealX. It fails closed: a wrong key or
// any mutation of nonce, body, tag, or AAD yields ErrOpenFailed, never
// garbage plaintext.
func OpenX(key, ciphertext, aad []byte) ([]byte, error) {
	aead, err := xchacha.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < xchacha.NonceSizeX+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce := ciphertext[:xchacha.NonceSizeX]
	body := ciphertext[xchacha.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, body, aad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return pt, nil
}
