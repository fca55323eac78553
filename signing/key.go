package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

// KeyEnvVar optionally holds the base64 encoded ed25519 private key of a node.
const KeyEnvVar = "NONCEMINE_PRIVATE_KEY"

var ErrInvalidPrivateKeyLen = errors.New("private key has invalid length")

// DecodePrivateKey decodes a base64 encoded ed25519 private key.
func DecodePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPrivateKeyLen, ed25519.PrivateKeySize, len(key))
	}
	return key, nil
}

// PrivateKeyFromEnv returns the key held in KeyEnvVar, or nil if the variable is unset.
func PrivateKeyFromEnv() (ed25519.PrivateKey, error) {
	encoded := os.Getenv(KeyEnvVar)
	if encoded == "" {
		return nil, nil
	}
	key, err := DecodePrivateKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyEnvVar, err)
	}
	return key, nil
}
