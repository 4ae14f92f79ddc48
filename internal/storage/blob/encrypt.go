package blob

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	encryptionMetadataKey = "blob-encryption"
	encryptionMethod      = "aes-gcm"
)

// encryptor seals whole objects; export workbooks are small enough to
// buffer.
type encryptor struct {
	aead cipher.AEAD
}

func newEncryptor(raw string) (*encryptor, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("exports.encryption_key must be base64: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("exports.encryption_key must be 16/24/32 bytes after decoding")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &encryptor{aead: aead}, nil
}

// encrypt returns nonce||ciphertext, the plaintext size and the metadata
// marking the object as sealed.
func (e *encryptor) encrypt(r io.Reader) (io.Reader, int64, map[string]string, error) {
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, nil, err
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, 0, nil, err
	}
	payload := e.aead.Seal(nonce, nonce, plain, nil)
	meta := map[string]string{encryptionMetadataKey: encryptionMethod}
	return bytes.NewReader(payload), int64(len(plain)), meta, nil
}

func (e *encryptor) decrypt(r io.Reader) (io.ReadCloser, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, 0, errors.New("encrypted payload too short")
	}
	plain, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(plain)), int64(len(plain)), nil
}
