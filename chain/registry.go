package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pilacorp/go-did-gateway/apperr"
)

// Registry is a read-only client for an ERC-1056 DID registry.
type Registry struct {
	contract *bind.BoundContract
	address  common.Address
}

// NewRegistry binds the DID registry at address.
func NewRegistry(client *Client, address string) (*Registry, error) {
	if client == nil {
		return nil, errors.New("chain client is required")
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid registry address: %q", address)
	}

	registryABI, err := loadRegistryABI()
	if err != nil {
		return nil, err
	}

	addr := common.HexToAddress(address)
	backend := client.Backend()

	return &Registry{
		contract: bind.NewBoundContract(addr, registryABI, backend, backend, backend),
		address:  addr,
	}, nil
}

// IdentityOwner returns the lowercase address currently controlling identity.
// Identities never touched on-chain are owned by themselves.
func (r *Registry) IdentityOwner(ctx context.Context, identity string) (string, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "identityOwner", common.HexToAddress(identity)); err != nil {
		return "", apperr.External(err, "failed to resolve identity owner")
	}

	if len(out) == 0 {
		return "", apperr.External(errors.New("contract returned no data"), "failed to resolve identity owner")
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return "", apperr.External(fmt.Errorf("unexpected type %T", out[0]), "failed to resolve identity owner")
	}

	return strings.ToLower(owner.Hex()), nil
}
