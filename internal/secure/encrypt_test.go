package secure

import (
	"errors"
	"testing"
)

func TestEncryptRoundtrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	plaintexts := []string{"", "x", "api-key-1234567890", "значение с юникодом"}
	for _, plain := range plaintexts {
		sealed, err := enc.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		if sealed == plain && plain != "" {
			t.Errorf("Encrypt(%q) returned plaintext", plain)
		}

		opened, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if opened != plain {
			t.Errorf("roundtrip: got %q, want %q", opened, plain)
		}
	}
}

func TestEncryptNonceVaries(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	a, _ := enc.Encrypt("same value")
	b, _ := enc.Encrypt("same value")
	if a == b {
		t.Error("two encryptions of the same value must differ")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()
	enc1, _ := NewEncryptor(key1)
	enc2, _ := NewEncryptor(key2)

	sealed, _ := enc1.Encrypt("secret")
	if _, err := enc2.Decrypt(sealed); !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt, got %v", err)
	}
}

func TestDecryptGarbage(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	for _, input := range []string{"", "not base64 !!!", "YWJj"} {
		if _, err := enc.Decrypt(input); err == nil {
			t.Errorf("Decrypt(%q) succeeded unexpectedly", input)
		}
	}
}

func TestNewEncryptorBadKey(t *testing.T) {
	for _, key := range []string{"", "short", "!!!not-base64!!!"} {
		if _, err := NewEncryptor(key); err == nil {
			t.Errorf("NewEncryptor(%q) succeeded unexpectedly", key)
		}
	}
}

func TestHashSensitive(t *testing.T) {
	hashed, err := HashSensitive("my-password")
	if err != nil {
		t.Fatalf("HashSensitive: %v", err)
	}

	if !VerifyHash("my-password", hashed) {
		t.Error("VerifyHash rejected the correct value")
	}
	if VerifyHash("other-password", hashed) {
		t.Error("VerifyHash accepted a wrong value")
	}
	if VerifyHash("my-password", "malformed") {
		t.Error("VerifyHash accepted a malformed hash")
	}
}

func TestSign(t *testing.T) {
	sig := Sign("payload", "secret")
	if sig != Sign("payload", "secret") {
		t.Error("Sign must be deterministic")
	}
	if !VerifySignature("payload", sig, "secret") {
		t.Error("VerifySignature rejected a valid signature")
	}
	if VerifySignature("payload", sig, "other") {
		t.Error("VerifySignature accepted a wrong secret")
	}
	if VerifySignature("tampered", sig, "secret") {
		t.Error("VerifySignature accepted tampered data")
	}
}

func TestGenerateSessionToken(t *testing.T) {
	a, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}
	b, _ := GenerateSessionToken()
	if a == b {
		t.Error("tokens must be unique")
	}
}
