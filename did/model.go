package did

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Identifier is a parsed DID.
type Identifier struct {
	Method  string
	Network string
	Address string
}

// String returns the canonical form of the identifier.
func (i Identifier) String() string {
	return ToDID(i.Method, i.Network, i.Address)
}

// DIDDocument is the DID document.
type DIDDocument struct {
	Context            []string             `json:"@context"`
	Id                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
}

// VerificationMethod is the verification method for the DID document.
type VerificationMethod struct {
	Id                  string `json:"id"`
	Type                string `json:"type"`
	Controller          string `json:"controller"`
	BlockchainAccountId string `json:"blockchainAccountId,omitempty"`
	PublicKeyHex        string `json:"publicKeyHex,omitempty"`
}

// KeyPair represents a generated account.
type KeyPair struct {
	PublicKey  *ecdsa.PublicKey
	PrivateKey *ecdsa.PrivateKey
}

// GetAddress returns the address of the key pair.
func (k *KeyPair) GetAddress() string {
	if k.PublicKey == nil {
		return ""
	}

	return AddressOf(k.PublicKey)
}

// GetDID returns the DID of the key pair.
func (k *KeyPair) GetDID(method, network string) string {
	if k.PublicKey == nil || method == "" {
		return ""
	}

	return ToDID(method, network, k.GetAddress())
}

// GetPublicKeyHex returns the compressed public key in hex format.
func (k *KeyPair) GetPublicKeyHex() string {
	if k.PublicKey == nil {
		return ""
	}

	return strings.ToLower("0x" + fmt.Sprintf("%x", crypto.CompressPubkey(k.PublicKey)))
}

// GetPrivateKeyHex returns the private key in hex format.
func (k *KeyPair) GetPrivateKeyHex() string {
	if k.PrivateKey == nil {
		return ""
	}

	return strings.ToLower("0x" + fmt.Sprintf("%x", crypto.FromECDSA(k.PrivateKey)))
}
