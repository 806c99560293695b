package secure

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

// ErrDecrypt is returned when a ciphertext cannot be opened.
var ErrDecrypt = errors.New("decryption failed")

const (
	keySize   = 32
	nonceSize = 24

	pbkdf2Iterations = 100_000
	saltSize         = 16
)

// Encryptor seals and opens sensitive values with a symmetric key.
// Values are stored as base64url(nonce || box).
type Encryptor struct {
	key [keySize]byte
}

// NewEncryptor creates an Encryptor from a base64url-encoded 32-byte key.
func NewEncryptor(encodedKey string) (*Encryptor, error) {
	raw, err := base64.URLEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(raw))
	}

	e := &Encryptor{}
	copy(e.key[:], raw)
	return e, nil
}

// GenerateKey returns a fresh base64url-encoded encryption key.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

// Encrypt seals a plaintext value.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &e.key)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed value.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(raw) < nonceSize {
		return "", ErrDecrypt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &e.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// HashSensitive derives a salted PBKDF2-SHA256 hash of a value.
// The result is "salt$hash" with both parts base64url-encoded.
func HashSensitive(value string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return hashWithSalt(value, salt), nil
}

// VerifyHash checks a value against a hash produced by HashSensitive.
func VerifyHash(value, hashed string) bool {
	parts := strings.SplitN(hashed, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	expected := hashWithSalt(value, salt)
	return hmac.Equal([]byte(expected), []byte(hashed))
}

func hashWithSalt(value string, salt []byte) string {
	sum := pbkdf2.Key([]byte(value), salt, pbkdf2Iterations, sha256.Size, sha256.New)
	return base64.URLEncoding.EncodeToString(salt) + "$" + base64.URLEncoding.EncodeToString(sum)
}

// Sign creates a hex HMAC-SHA256 signature over data.
func Sign(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return fmt.Sprintf("%x", mac.Sum(nil))
}

// VerifySignature checks an HMAC-SHA256 signature in constant time.
func VerifySignature(data, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(data, secret)), []byte(signature))
}

// GenerateSessionToken returns a URL-safe random token.
func GenerateSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
