// Package identity implements the signing service: identity generation,
// message and feedback signing, signature verification, balance lookup and
// DID resolution against the registry.
package identity

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pilacorp/go-did-gateway/apperr"
	"github.com/pilacorp/go-did-gateway/chain"
	"github.com/pilacorp/go-did-gateway/did"
	"github.com/pilacorp/go-did-gateway/signer"
)

// BalanceReader reads account balances in wei.
type BalanceReader interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
}

// OwnerResolver returns the account currently controlling an identity.
type OwnerResolver interface {
	IdentityOwner(ctx context.Context, identity string) (string, error)
}

// Options configures DID derivation.
type Options struct {
	Method  string
	Network string
	ChainID int64
}

// Service is the signing service.
type Service struct {
	balances BalanceReader
	registry OwnerResolver
	opts     Options
	log      *slog.Logger
}

// NewService creates a Service.
func NewService(balances BalanceReader, registry OwnerResolver, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		balances: balances,
		registry: registry,
		opts:     opts,
		log:      log,
	}
}

// GenerateIdentity creates a random account and derives its DID.
func (s *Service) GenerateIdentity(_ context.Context) (*Identity, error) {
	keyPair, err := did.GenerateECDSAKeyPair()
	if err != nil {
		return nil, apperr.Internal(err, "failed to generate identity")
	}

	return &Identity{
		DID:        keyPair.GetDID(s.opts.Method, s.opts.Network),
		Address:    keyPair.GetAddress(),
		PublicKey:  keyPair.GetPublicKeyHex(),
		PrivateKey: keyPair.GetPrivateKeyHex(),
	}, nil
}

// Sign signs a plain message or a feedback payload with the caller's key.
func (s *Service) Sign(_ context.Context, req SignRequest) (*SignResult, error) {
	var payload string

	switch r := req.(type) {
	case MessageSignRequest:
		if r.Message == "" || r.PrivateKey == "" {
			return nil, apperr.Validation("Message and private key are required")
		}
		payload = r.Message
	case FeedbackSignRequest:
		if r.PrivateKey == "" {
			return nil, apperr.Validation("Private key is required")
		}
		if r.Feedback.Missing() {
			return nil, apperr.Validation("Feedback payload must include message, submitterDid, receiverDid, and rating")
		}
		if !r.Feedback.ValidUTF8() {
			return nil, apperr.Validation("feedback fields must be valid UTF-8")
		}
		canonical, err := r.Feedback.Canonical()
		if err != nil {
			return nil, apperr.Internal(err, "failed to build feedback payload")
		}
		payload = string(canonical)
	default:
		return nil, apperr.Validation("unsupported sign request %T", req)
	}

	key, err := signer.ParsePrivateKey(req.privateKey())
	if err != nil {
		return nil, apperr.InvalidInput(err, "invalid private key")
	}
	provider := signer.NewProviderFromKey(key)
	keyPair := &did.KeyPair{PublicKey: &key.PublicKey, PrivateKey: key}

	signature, err := signer.SignMessage(provider, []byte(payload))
	if err != nil {
		return nil, apperr.Internal(err, "failed to sign message")
	}

	address := provider.GetAddress()

	return &SignResult{
		SignedMessage: signature,
		DID:           did.ToDID(s.opts.Method, s.opts.Network, address),
		Address:       address,
		PublicKey:     keyPair.GetPublicKeyHex(),
		Payload:       payload,
	}, nil
}

// Verify recovers the signer of message and compares it with address.
// A mismatch is not an error.
func (s *Service) Verify(_ context.Context, message, signature, address string) (*Verification, error) {
	if message == "" || signature == "" || address == "" {
		return nil, apperr.Validation("Message, signature, and address are required")
	}

	isValid, recovered, err := signer.VerifyMessage([]byte(message), signature, strings.TrimSpace(address))
	if err != nil {
		return nil, apperr.InvalidInput(err, "invalid signature")
	}

	return &Verification{
		IsValid:          isValid,
		RecoveredAddress: recovered,
	}, nil
}

// Balance returns the balance of address.
func (s *Service) Balance(ctx context.Context, address string) (*Balance, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, apperr.Validation("Address is required")
	}
	if !common.IsHexAddress(address) {
		return nil, apperr.Validation("invalid address: %s", address)
	}

	wei, err := s.balances.Balance(ctx, address)
	if err != nil {
		return nil, err
	}

	return &Balance{
		Address:    strings.ToLower(address),
		Balance:    chain.FormatEther(wei),
		BalanceWei: wei.String(),
	}, nil
}

// Resolve builds the DID document of id from the registry's current owner.
//
// publicKeyHex is optional. When given, it is published as a second
// verification method, but only if it belongs to the current owner.
func (s *Service) Resolve(ctx context.Context, id, publicKeyHex string) (*did.DIDDocument, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("DID is required")
	}

	ident, err := did.ParseDID(id)
	if err != nil {
		return nil, apperr.InvalidInput(err, "invalid DID")
	}
	if ident.Method != s.opts.Method {
		return nil, apperr.Validation("unsupported DID method: %s", ident.Method)
	}
	if ident.Network != "" && ident.Network != s.opts.Network {
		return nil, apperr.Validation("unsupported DID network: %s", ident.Network)
	}

	owner, err := s.registry.IdentityOwner(ctx, ident.Address)
	if err != nil {
		return nil, err
	}

	publicKeyHex = strings.TrimSpace(publicKeyHex)
	if publicKeyHex != "" {
		keyAddress, err := did.AddressFromPublicKeyHex(publicKeyHex)
		if err != nil {
			return nil, apperr.InvalidInput(err, "invalid public key")
		}
		if !strings.EqualFold(keyAddress, owner) {
			return nil, apperr.Validation("public key does not belong to the owner of %s", ident.String())
		}
		publicKeyHex = strings.ToLower(publicKeyHex)
	}

	s.log.Debug("Resolved DID", "did", ident.String(), "owner", owner)

	return did.GenerateDIDDocument(ident.String(), owner, s.opts.ChainID, publicKeyHex), nil
}
