package backup

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("SQLite format 3\x00 ledger snapshot")

	sealed, err := Encrypt(plaintext, "correct horse")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("ciphertext contains plaintext")
	}
	if len(sealed) < saltSize+nonceSize+len(plaintext) {
		t.Errorf("sealed length = %d, too short", len(sealed))
	}

	got, err := Decrypt(sealed, "correct horse")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("decrypted = %q, want %q", got, plaintext)
	}
}

func TestEncryptUsesFreshSalt(t *testing.T) {
	a, err := Encrypt([]byte("same"), "pass")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt([]byte("same"), "pass")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a[:saltSize], b[:saltSize]) {
		t.Error("two encryptions share a salt")
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced identical output")
	}
}

func TestDecryptFailures(t *testing.T) {
	sealed, err := Encrypt([]byte("ledger"), "right")
	if err != nil {
		t.Fatal(err)
	}
	tampered := bytes.Clone(sealed)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name       string
		data       []byte
		passphrase string
	}{
		{"wrong passphrase", sealed, "wrong"},
		{"tampered", tampered, "right"},
		{"truncated", sealed[:saltSize+nonceSize-1], "right"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.data, tt.passphrase); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Decrypt(sealed[:4], "right"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("short input error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestEncryptRejectsEmptyPassphrase(t *testing.T) {
	if _, err := Encrypt([]byte("x"), ""); err == nil {
		t.Error("expected error for empty passphrase")
	}
}
