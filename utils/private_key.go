package utils

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var ErrInvalidPrivateKey = errors.New("invalid private key")

// ParsePrivateKey accepts a base58 secret key or a solana-keygen JSON byte array.
func ParsePrivateKey(raw string) (solana.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPrivateKey)
	}

	var keyBytes []byte
	if strings.HasPrefix(raw, "[") {
		decoded, err := decodeKeypairJSON([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
		}
		keyBytes = decoded
	} else {
		decoded, err := base58.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
		}
		keyBytes = decoded
	}

	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPrivateKey, len(keyBytes), ed25519.PrivateKeySize)
	}

	key := solana.PrivateKey(keyBytes)
	// the trailing 32 bytes must be the public half of the seed
	derived := ed25519.NewKeyFromSeed(keyBytes[:ed25519.SeedSize])
	if !solana.PublicKeyFromBytes(derived[ed25519.SeedSize:]).Equals(key.PublicKey()) {
		return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidPrivateKey)
	}
	return key, nil
}

// EncodePrivateKey is the inverse of ParsePrivateKey for the base58 form.
func EncodePrivateKey(key solana.PrivateKey) string {
	return base58.Encode(key)
}

func decodeKeypairJSON(data []byte) ([]byte, error) {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("unmarshal keypair json: %w", err)
	}

	keyBytes := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("byte %d out of range: %d", i, v)
		}
		keyBytes[i] = byte(v)
	}
	return keyBytes, nil
}
