package crypto

var aadField = []byte("vault/field/v1")

// EncryptField seals a single PII field under the DEK with its own random
// nonce; no nonce is ever shared across fields or rows.
func EncryptField(dek, plaintext []byte) ([]byte, error) {
	return SealX(dek, plaintext, aadField)
}

// DecryptField opens a field ciphertext. A tag mismatch here means the
// stored row was corrupted or tampered with, not that a credential was
// wrong; callers surface that distinction.
func DecryptField(dek, ciphertext []byte) ([]byte, error) {
	return OpenX(dek, ciphertext, aadField)
}
