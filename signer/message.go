package signer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned when a signature cannot be decoded or no
// public key can be recovered from it.
var ErrInvalidSignature = errors.New("invalid signature")

// HashMessage returns the EIP-191 personal message digest of msg:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func HashMessage(msg []byte) []byte {
	return accounts.TextHash(msg)
}

// SignMessage signs msg as an EIP-191 personal message and returns the
// 0x-hex signature with V in {27, 28}.
func SignMessage(p SignerProvider, msg []byte) (string, error) {
	sig, err := p.Sign(HashMessage(msg))
	if err != nil {
		return "", err
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("invalid signature length: expected %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	out := make([]byte, crypto.SignatureLength)
	copy(out, sig)
	if out[crypto.RecoveryIDOffset] < 27 {
		out[crypto.RecoveryIDOffset] += 27
	}

	return hexutil.Encode(out), nil
}

// RecoverAddress returns the lowercase address that signed msg as an EIP-191
// personal message. V may be 0/1 or 27/28.
func RecoverAddress(msg []byte, signatureHex string) (string, error) {
	raw := strings.TrimSpace(signatureHex)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}

	sig, err := hexutil.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return "", fmt.Errorf("%w: bad recovery id %d", ErrInvalidSignature, sig[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(HashMessage(msg), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// VerifyMessage reports whether signatureHex over msg was produced by
// address. The comparison is case-insensitive.
func VerifyMessage(msg []byte, signatureHex, address string) (bool, string, error) {
	recovered, err := RecoverAddress(msg, signatureHex)
	if err != nil {
		return false, "", err
	}
	return strings.EqualFold(recovered, address), recovered, nil
}
