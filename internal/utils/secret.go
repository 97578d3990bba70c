package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealedPrefix marks a value produced by SealSecret
const SealedPrefix = "enc:"

func parseKey(keyHex string) ([]byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, errors.New("invalid encryption key format")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("encryption key must be 32 bytes (64 hex chars)")
	}
	return key, nil
}

// SealSecret encrypts plaintext with XChaCha20-Poly1305 under keyHex.
// An empty key leaves the value as is.
func SealSecret(plaintext, keyHex string) (string, error) {
	if keyHex == "" || plaintext == "" || IsSealed(plaintext) {
		return plaintext, nil
	}
	key, err := parseKey(keyHex)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// OpenSecret reverses SealSecret. Unsealed values are returned unchanged.
func OpenSecret(value, keyHex string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if keyHex == "" {
		return "", errors.New("secret is sealed but no encryption key is configured")
	}
	key, err := parseKey(keyHex)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil || len(data) < aead.NonceSize() {
		return "", errors.New("sealed secret is corrupted")
	}
	plaintext, err := aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], nil)
	if err != nil {
		return "", errors.New("decryption failed: invalid auth tag or wrong key")
	}
	return string(plaintext), nil
}

// IsSealed reports whether value was produced by SealSecret
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}
