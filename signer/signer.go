package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignerProvider is the interface for the signer provider.
//
// Sign receives a 32-byte digest and returns a 65-byte [R || S || V]
// signature with V in {0, 1}.
type SignerProvider interface {
	Sign(payload []byte) ([]byte, error)
	GetAddress() string
}

// DefaultProvider signs with an in-memory private key.
type DefaultProvider struct {
	priv *ecdsa.PrivateKey
}

// NewDefaultProvider creates a new default signer provider.
//
// privHex is the private key in hex format, with or without "0x".
func NewDefaultProvider(privHex string) (*DefaultProvider, error) {
	priv, err := ParsePrivateKey(privHex)
	if err != nil {
		return nil, err
	}
	return &DefaultProvider{priv: priv}, nil
}

// NewProviderFromKey wraps an already parsed private key.
func NewProviderFromKey(priv *ecdsa.PrivateKey) *DefaultProvider {
	return &DefaultProvider{priv: priv}
}

// Sign signs the payload.
//
// hashPayload is the hash of the payload to sign.
func (s *DefaultProvider) Sign(hashPayload []byte) ([]byte, error) {
	signature, err := crypto.Sign(hashPayload, s.priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}

	if len(signature) != crypto.SignatureLength {
		return nil, fmt.Errorf("invalid signature length: expected %d bytes, got %d", crypto.SignatureLength, len(signature))
	}

	return signature, nil
}

// GetAddress returns the address of the signer.
func (s *DefaultProvider) GetAddress() string {
	return strings.ToLower(crypto.PubkeyToAddress(s.priv.PublicKey).Hex())
}

// ParsePrivateKey parses a hex private key, with or without "0x".
func ParsePrivateKey(key string) (*ecdsa.PrivateKey, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "0x")
	if len(key) == 0 || len(key)%2 != 0 {
		return nil, fmt.Errorf("invalid private key: empty or odd length")
	}
	privKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return privKey, nil
}
