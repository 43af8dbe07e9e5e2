package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pilacorp/go-did-gateway/apperr"
	"github.com/pilacorp/go-did-gateway/signer"
)

var errNotRelayer = errors.New("not authorized to sign for this account")

// FeedbackEntry is one feedback record as stored by the contract.
type FeedbackEntry struct {
	Submitter    common.Address
	SubmitterDID string
	ReceiverDID  string
	Message      string
	Rating       uint8
	Timestamp    time.Time
}

// ReputationEntry is the raw aggregate the contract keeps per DID.
type ReputationEntry struct {
	TotalRating   *big.Int
	FeedbackCount *big.Int
}

// FeedbackContract is a client for the pre-deployed feedback contract.
//
// Writes are signed by the relayer, which pays gas for every submission.
type FeedbackContract struct {
	contract *bind.BoundContract
	backend  Backend
	address  common.Address
	chainID  *big.Int
	relayer  signer.SignerProvider
	gasLimit uint64
}

// NewFeedbackContract binds the feedback contract at address.
//
// gasLimit of zero lets the client estimate gas per transaction.
func NewFeedbackContract(client *Client, address string, relayer signer.SignerProvider, gasLimit uint64) (*FeedbackContract, error) {
	if client == nil {
		return nil, errors.New("chain client is required")
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid feedback contract address: %q", address)
	}
	if relayer == nil {
		return nil, errors.New("relayer signer is required")
	}

	contractABI, err := loadFeedbackABI()
	if err != nil {
		return nil, err
	}

	addr := common.HexToAddress(address)
	backend := client.Backend()

	return &FeedbackContract{
		contract: bind.NewBoundContract(addr, contractABI, backend, backend, backend),
		backend:  backend,
		address:  addr,
		chainID:  client.ChainID(),
		relayer:  relayer,
		gasLimit: gasLimit,
	}, nil
}

// Address returns the contract address.
func (f *FeedbackContract) Address() common.Address {
	return f.address
}

// SubmitFeedback signs and broadcasts submitFeedback(submitterDid,
// receiverDid, message, rating). Nonce and fees are filled by the client.
func (f *FeedbackContract) SubmitFeedback(ctx context.Context, submitterDID, receiverDID, message string, rating uint8) (*types.Transaction, error) {
	auth := f.getTransactOpts(ctx)

	tx, err := f.contract.Transact(auth, "submitFeedback", submitterDID, receiverDID, message, rating)
	if err != nil {
		return nil, classifyTxError(err, "failed to submit feedback transaction")
	}

	return tx, nil
}

// WaitMined blocks until tx is included in a block and checks its status.
func (f *FeedbackContract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, f.backend, tx)
	if err != nil {
		return nil, apperr.External(err, "failed to wait for transaction %s", tx.Hash().Hex())
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, apperr.Rejected(ErrTxFailed, "transaction %s reverted in block %d", tx.Hash().Hex(), receipt.BlockNumber)
	}

	return receipt, nil
}

// FeedbackCount returns the number of feedback records stored.
func (f *FeedbackContract) FeedbackCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getFeedbackCount"); err != nil {
		return 0, apperr.External(err, "failed to get feedback count")
	}

	count, err := bigOutput(out, 0)
	if err != nil {
		return 0, apperr.External(err, "failed to decode feedback count")
	}
	if !count.IsUint64() {
		return 0, apperr.External(fmt.Errorf("value %s overflows uint64", count), "failed to decode feedback count")
	}

	return count.Uint64(), nil
}

// FeedbackAt returns the feedback record at index.
func (f *FeedbackContract) FeedbackAt(ctx context.Context, index uint64) (*FeedbackEntry, error) {
	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getFeedback", new(big.Int).SetUint64(index)); err != nil {
		return nil, apperr.External(err, "failed to get feedback %d", index)
	}

	if len(out) != 6 {
		return nil, apperr.External(fmt.Errorf("expected 6 values, got %d", len(out)), "failed to decode feedback %d", index)
	}

	submitter, ok1 := out[0].(common.Address)
	submitterDID, ok2 := out[1].(string)
	receiverDID, ok3 := out[2].(string)
	message, ok4 := out[3].(string)
	rating, ok5 := out[4].(uint8)
	timestamp, ok6 := out[5].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return nil, apperr.External(errors.New("unexpected output types"), "failed to decode feedback %d", index)
	}

	return &FeedbackEntry{
		Submitter:    submitter,
		SubmitterDID: submitterDID,
		ReceiverDID:  receiverDID,
		Message:      message,
		Rating:       rating,
		Timestamp:    time.Unix(timestamp.Int64(), 0).UTC(),
	}, nil
}

// Reputation returns the total rating and feedback count of did.
func (f *FeedbackContract) Reputation(ctx context.Context, did string) (*ReputationEntry, error) {
	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReputation", did); err != nil {
		return nil, apperr.External(err, "failed to get reputation")
	}

	total, err := bigOutput(out, 0)
	if err != nil {
		return nil, apperr.External(err, "failed to decode reputation")
	}
	count, err := bigOutput(out, 1)
	if err != nil {
		return nil, apperr.External(err, "failed to decode reputation")
	}

	return &ReputationEntry{TotalRating: total, FeedbackCount: count}, nil
}

// AverageRating returns the average rating of did scaled by 100.
// The contract divides by the feedback count, so callers must not ask for a
// DID without feedback.
func (f *FeedbackContract) AverageRating(ctx context.Context, did string) (*big.Int, error) {
	var out []interface{}
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAverageRating", did); err != nil {
		return nil, apperr.External(err, "failed to get average rating")
	}

	avg, err := bigOutput(out, 0)
	if err != nil {
		return nil, apperr.External(err, "failed to decode average rating")
	}

	return avg, nil
}

// getTransactOpts creates the auth options for a relayer transaction.
func (f *FeedbackContract) getTransactOpts(ctx context.Context) *bind.TransactOpts {
	fromAddress := common.HexToAddress(f.relayer.GetAddress())
	txSigner := types.LatestSignerForChainID(f.chainID)

	signerFn := func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
		if addr != fromAddress {
			return nil, errNotRelayer
		}
		h := txSigner.Hash(tx)
		sig, err := f.relayer.Sign(h.Bytes())
		if err != nil {
			return nil, err
		}
		return tx.WithSignature(txSigner, sig)
	}

	return &bind.TransactOpts{
		From:     fromAddress,
		GasLimit: f.gasLimit,
		Context:  ctx,
		Signer:   signerFn,
	}
}

func bigOutput(out []interface{}, i int) (*big.Int, error) {
	if len(out) <= i {
		return nil, fmt.Errorf("contract returned %d values, want at least %d", len(out), i+1)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T at output %d", out[i], i)
	}
	return v, nil
}
