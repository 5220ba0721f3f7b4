package secretbox

import (
	"encoding/base64"
	"errors"
	"testing"
)

func testKey(seed byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i) + seed
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestEncryptDecrypt(t *testing.T) {
	box, err := New(testKey(1))
	if err != nil {
		t.Fatalf("failed to create box: %v", err)
	}
	ciphertext, err := box.Encrypt("identity-token")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if ciphertext == "identity-token" {
		t.Fatal("ciphertext must differ from plaintext")
	}
	plaintext, err := box.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if plaintext != "identity-token" {
		t.Fatalf("unexpected plaintext: %s", plaintext)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	a, _ := New(testKey(1))
	b, _ := New(testKey(2))
	ciphertext, err := a.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := b.Decrypt(ciphertext); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := New(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected error for short key")
	}
	if _, err := New("%%%"); err == nil {
		t.Fatal("expected error for non-base64 key")
	}
}
