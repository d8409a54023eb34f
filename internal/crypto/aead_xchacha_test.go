package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	xchacha "golang.org/x/crypto/chacha20poly1305"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := randBytes(t, 32)
	pt := randBytes(t, 4096)
	aad := []byte("context")
	ct, err := SealX(key, pt, aad)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	out, err := OpenX(key, ct, aad)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(pt, out) {
		t.Fatal("plaintext mismatch")
	}
}

func TestOpenWrongKeyFailsClosed(t *testing.T) {
	key := randBytes(t, 32)
	other := randBytes(t, 32)
	ct, err := SealX(key, []byte("secret-data"), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	pt, err := OpenX(other, ct, nil)
	if !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed, got %v", err)
	}
	if pt != nil {
		t.Fatal("wrong key must never yield plaintext")
	}
}

func TestOpenAADMismatch(t *testing.T) {
	key := randBytes(t, 32)
	ct, err := SealX(key, []byte("secret-data"), []byte("aad-1"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := OpenX(key, ct, []byte("aad-2")); !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed with mismatched AAD, got %v", err)
	}
}

func TestOpenTruncation(t *testing.T) {
	key := randBytes(t, 32)
	ct, err := SealX(key, []byte("hello"), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := OpenX(key, ct[:xchacha.NonceSizeX], nil); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestSealUniqueNonce(t *testing.T) {
	key := randBytes(t, 32)
	ct1, err := SealX(key, []byte("data"), nil)
	if err != nil {
		t.Fatalf("seal1: %v", err)
	}
	ct2, err := SealX(key, []byte("data"), nil)
	if err != nil {
		t.Fatalf("seal2: %v", err)
	}
	if bytes.Equal(ct1[:xchacha.NonceSizeX], ct2[:xchacha.NonceSizeX]) {
		t.Fatal("expected distinct nonces")
	}
	if bytes.Equal(ct1, ct2) {
		t.Fatal("expected distinct ciphertexts for identical plaintexts")
	}
}

func TestWrapUnwrapDEK(t *testing.T) {
	dek, err := NewDEK()
	if err != nil {
		t.Fatalf("NewDEK: %v", err)
	}
	kdf := DefaultKDF()
	kek := DeriveKEK([]byte("correct-horse-1"), kdf)

	wrapped, err := WrapKey(dek, kek)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	got, err := UnwrapKey(wrapped, kek)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !bytes.Equal(dek, got) {
		t.Fatal("dek mismatch after round trip")
	}

	wrong := DeriveKEK([]byte("incorrect-horse-1"), kdf)
	if _, err := UnwrapKey(wrapped, wrong); !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed for wrong password, got %v", err)
	}

	// A wrapped DEK must not open as a field ciphertext.
	if _, err := DecryptField(kek[:], wrapped); err == nil {
		t.Fatal("expected cross-purpose AAD rejection")
	}
}

func FuzzOpenRejectMutations(f *testing.F) {
	f.Add([]byte("hello"), []byte("aad"))
	f.Add([]byte(""), []byte(""))
	f.Fuzz(func(t *testing.T, pt, aad []byte) {
		key := randBytes(t, 32)
		ct, err := SealX(key, pt, aad)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		if _, err := OpenX(key, ct, aad); err != nil {
			t.Fatalf("open baseline: %v", err)
		}
		mut := append([]byte(nil), ct...)
		idx := len(pt) % len(mut)
		mut[idx] ^= 0xFF
		if _, err := OpenX(key, mut, aad); err == nil {
			t.Fatalf("mutation at %d succeeded", idx)
		}
	})
}
