package db

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Sealer protects credential values at rest. The binding names where a value is stored,
// a sealed value only opens with the binding it was sealed with.
type Sealer interface {
	Seal(value, binding string) (string, error)
	Open(sealed, binding string) (string, error)
}

// GCMSealer seals values with AES-GCM. The binding is used as additional authenticated data
// so a credential copied to another device or field cannot be opened. The output is
// base64(nonce || ciphertext).
type GCMSealer struct {
	aead cipher.AEAD
}

func (g GCMSealer) Seal(value, binding string) (string, error) {
	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cannot generate a nonce: %w", err)
	}
	sealed := g.aead.Seal(nonce, nonce, []byte(value), []byte(binding))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (g GCMSealer) Open(sealed, binding string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("sealed value is not base64: %w", err)
	}
	if len(raw) < g.aead.NonceSize()+g.aead.Overhead() {
		return "", fmt.Errorf("sealed value is too short")
	}
	nonce, ciphertext := raw[:g.aead.NonceSize()], raw[g.aead.NonceSize():]
	opened, err := g.aead.Open(nil, nonce, ciphertext, []byte(binding))
	if err != nil {
		return "", err
	}
	return string(opened), nil
}

// NewGCMSealer needs a 32 byte key, which selects AES-256.
func NewGCMSealer(key string) (GCMSealer, error) {
	if len(key) != 32 {
		return GCMSealer{}, fmt.Errorf("the sealing key has to be 32 bytes long, got %d", len(key))
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return GCMSealer{}, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return GCMSealer{}, err
	}
	return GCMSealer{aead: aead}, nil
}
