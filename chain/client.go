// Package chain wraps the go-ethereum client for the gateway: balance reads,
// the feedback contract binding, the DID registry binding, and classification
// of chain failures into gateway error kinds.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pilacorp/go-did-gateway/apperr"
)

// Backend is everything the gateway needs from a chain node. Both
// *ethclient.Client and the simulated backend client satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client is a long-lived chain connection shared by all requests.
type Client struct {
	backend Backend
	chainID *big.Int
	closeFn func()
}

// Dial connects to the JSON-RPC endpoint at rpcURL.
//
// chainID may be nil, in which case it is taken from the node. Otherwise it
// must match the node's chain ID.
func Dial(ctx context.Context, rpcURL string, chainID *big.Int) (*Client, error) {
	if rpcURL == "" {
		return nil, errors.New("RPC URL is required")
	}

	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}

	client, err := NewClient(ctx, ec, chainID)
	if err != nil {
		ec.Close()
		return nil, err
	}
	client.closeFn = ec.Close

	return client, nil
}

// NewClient wraps an existing backend. A non-nil chainID is checked against
// the node so a misconfigured network fails at startup instead of on the
// first signed transaction.
func NewClient(ctx context.Context, backend Backend, chainID *big.Int) (*Client, error) {
	if backend == nil {
		return nil, errors.New("chain backend is required")
	}

	nodeID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID != nil && chainID.Cmp(nodeID) != 0 {
		return nil, fmt.Errorf("configured chain ID %s does not match node chain ID %s", chainID, nodeID)
	}
	chainID = nodeID

	return &Client{
		backend: backend,
		chainID: new(big.Int).Set(chainID),
	}, nil
}

// Backend returns the underlying backend.
func (c *Client) Backend() Backend {
	return c.backend
}

// ChainID returns the chain ID transactions are signed for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Balance returns the latest balance of address in wei.
func (c *Client) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, apperr.Validation("invalid address: %s", address)
	}

	balance, err := c.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, apperr.External(err, "failed to get balance")
	}

	return balance, nil
}

// Close releases the RPC connection, if the client owns one.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}
