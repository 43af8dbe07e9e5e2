// Package did provides the local half of DID handling: key pair generation,
// DID identifier derivation and parsing, DID document construction, and
// public-key to address conversion.
//
// Nothing in this package talks to a chain. Registry lookups live in the
// chain package and are combined with these helpers by the identity service.
package did

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Prefix is the scheme every DID starts with.
const Prefix = "did"

// pubKeyBytesLenUncompressed is the length of a serialized uncompressed
// secp256k1 public key; btcec/v2 exports only the compressed length.
const pubKeyBytesLenUncompressed = 65

// ErrInvalidDID is returned for identifiers that are not did:<method>[:<network>]:<address>.
var ErrInvalidDID = errors.New("invalid DID")

// GenerateECDSAKeyPair generates a new secp256k1 key pair for a DID.
//
// The private key proves ownership of the DID and is returned to the caller
// exactly once; it is never stored.
func GenerateECDSAKeyPair() (*KeyPair, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	return &KeyPair{
		PublicKey:  &privateKey.PublicKey,
		PrivateKey: privateKey,
	}, nil
}

// ToDID builds a DID identifier from its parts.
//
// The network segment is omitted when network is empty. The result is
// lowercase, so the same inputs always produce the same identifier.
func ToDID(method, network, address string) string {
	parts := []string{Prefix, method}
	if network != "" {
		parts = append(parts, network)
	}
	parts = append(parts, address)

	return strings.ToLower(strings.Join(parts, ":"))
}

// ParseDID splits a DID identifier into its parts and validates the address.
func ParseDID(id string) (*Identifier, error) {
	parts := strings.Split(strings.TrimSpace(id), ":")
	if len(parts) < 3 || len(parts) > 4 || parts[0] != Prefix {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDID, id)
	}

	ident := &Identifier{Method: strings.ToLower(parts[1])}
	address := parts[len(parts)-1]
	if len(parts) == 4 {
		ident.Network = strings.ToLower(parts[2])
	}

	if ident.Method == "" || !common.IsHexAddress(address) || !strings.HasPrefix(address, "0x") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDID, id)
	}
	ident.Address = strings.ToLower(address)

	return ident, nil
}

// GenerateDIDDocument builds the W3C DID document of did controlled by the
// account owner.
//
// chainID is used for the CAIP-10 blockchain account id. The document always
// carries the owner's account as its controller verification method; when
// publicKeyHex is known it is published as a second key.
func GenerateDIDDocument(did, owner string, chainID int64, publicKeyHex string) *DIDDocument {
	controllerKey := did + "#controller"

	doc := &DIDDocument{
		Context: []string{
			"https://www.w3.org/ns/did/v1",
			"https://w3id.org/security/suites/secp256k1recovery-2020/v2",
		},
		Id: did,
		VerificationMethod: []VerificationMethod{{
			Id:                  controllerKey,
			Type:                "EcdsaSecp256k1RecoveryMethod2020",
			Controller:          did,
			BlockchainAccountId: fmt.Sprintf("eip155:%d:%s", chainID, common.HexToAddress(owner).Hex()),
		}},
		Authentication:  []string{controllerKey},
		AssertionMethod: []string{controllerKey},
	}

	if publicKeyHex != "" {
		keyID := did + "#controllerKey"
		doc.VerificationMethod = append(doc.VerificationMethod, VerificationMethod{
			Id:           keyID,
			Type:         "EcdsaSecp256k1VerificationKey2019",
			Controller:   did,
			PublicKeyHex: publicKeyHex,
		})
		doc.Authentication = append(doc.Authentication, keyID)
		doc.AssertionMethod = append(doc.AssertionMethod, keyID)
	}

	return doc
}

// AddressFromPublicKeyHex converts a hex-encoded secp256k1 public key to an
// account address.
//
// Compressed (33 bytes) and uncompressed (65 bytes) keys are accepted, with
// or without the "0x" prefix. The address is returned lowercase.
func AddressFromPublicKeyHex(publicKeyHex string) (string, error) {
	publicKeyBytes, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to decode public key hex: %w", err)
	}

	if len(publicKeyBytes) != btcec.PubKeyBytesLenCompressed && len(publicKeyBytes) != pubKeyBytesLenUncompressed {
		return "", fmt.Errorf("unsupported public key format: expected 33 bytes (compressed) or 65 bytes (uncompressed), got %d bytes", len(publicKeyBytes))
	}

	publicKey, err := btcec.ParsePubKey(publicKeyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse public key: %w", err)
	}

	return AddressOf(publicKey.ToECDSA()), nil
}

// AddressOf returns the lowercase account address of a public key.
func AddressOf(publicKey *ecdsa.PublicKey) string {
	return strings.ToLower(crypto.PubkeyToAddress(*publicKey).Hex())
}
