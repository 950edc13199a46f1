package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EncryptionKeyEnvVar holds the run record encryption key.
	EncryptionKeyEnvVar = "REPORTCHAIN_RECORD_ENCRYPTION_KEY"

	encryptedHeader = "# REPORTCHAIN_ENCRYPTED_RECORD\n"
)

// EncryptRecord seals content with AES-256-GCM using the key from the environment.
// Without a key the content is returned unchanged.
func EncryptRecord(content []byte) ([]byte, error) {
	key := encryptionKey()
	if key == nil {
		return content, nil
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, content, nil)
	encoded := base64.StdEncoding.EncodeToString(ciphertext)

	return []byte(encryptedHeader + encoded + "\n"), nil
}

// DecryptRecord opens content sealed by EncryptRecord. Plain content is returned
// unchanged.
func DecryptRecord(content []byte) ([]byte, error) {
	if !IsEncrypted(content) {
		return content, nil
	}

	key := encryptionKey()
	if key == nil {
		return nil, fmt.Errorf("run record is encrypted but %s is not set", EncryptionKeyEnvVar)
	}

	encoded := strings.TrimSpace(strings.TrimPrefix(string(content), encryptedHeader))
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted record: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt run record (wrong key?): %w", err)
	}

	return plaintext, nil
}

// IsEncrypted reports whether content carries the encrypted record header.
func IsEncrypted(content []byte) bool {
	return strings.HasPrefix(string(content), encryptedHeader)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// encryptionKey derives the AES-256 key from the environment, or returns nil when
// encryption is off. A 64-character hex value is used as raw key bytes; anything
// else is hashed with SHA-256.
func encryptionKey() []byte {
	v := os.Getenv(EncryptionKeyEnvVar)
	if v == "" {
		return nil
	}
	if raw, err := hex.DecodeString(v); err == nil && len(raw) == 32 {
		return raw
	}
	sum := sha256.Sum256([]byte(v))
	return sum[:]
}
