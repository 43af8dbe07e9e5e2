package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilacorp/go-did-gateway/apperr"
	"github.com/pilacorp/go-did-gateway/signer"
)

const (
	testPrivateKey  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testContract    = "0x6ad11619f8912f800a6f5cf05bd63bb60e7ad160"
	testSubmitter   = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testSubmitterID = "did:ethr:sepolia:0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
)

// fakeBackend answers contract calls by ABI method name. Methods not
// overridden panic through the nil embedded interface.
type fakeBackend struct {
	Backend
	abi     abi.ABI
	chainID *big.Int
	respond func(method string, args []interface{}) ([]interface{}, error)
	calls   []string
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	if f.chainID == nil {
		return big.NewInt(11155111), nil
	}
	return f.chainID, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, method.Name)

	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	values, err := f.respond(method.Name, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(values...)
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func newFakeFeedbackContract(t *testing.T, respond func(string, []interface{}) ([]interface{}, error)) (*FeedbackContract, *fakeBackend) {
	t.Helper()

	contractABI, err := loadFeedbackABI()
	require.NoError(t, err)

	backend := &fakeBackend{abi: contractABI, respond: respond}
	client, err := NewClient(context.Background(), backend, big.NewInt(11155111))
	require.NoError(t, err)

	relayer, err := signer.NewDefaultProvider(testPrivateKey)
	require.NoError(t, err)

	fc, err := NewFeedbackContract(client, testContract, relayer, 0)
	require.NoError(t, err)
	return fc, backend
}

func TestLoadABIs(t *testing.T) {
	feedback, err := loadFeedbackABI()
	require.NoError(t, err)
	for _, name := range []string{"submitFeedback", "getFeedbackCount", "getFeedback", "getReputation", "getAverageRating"} {
		assert.Contains(t, feedback.Methods, name)
	}
	assert.Len(t, feedback.Methods["getFeedback"].Outputs, 6)

	registry, err := loadRegistryABI()
	require.NoError(t, err)
	assert.Contains(t, registry.Methods, "identityOwner")
	assert.Contains(t, registry.Methods, "changed")
}

func TestFeedbackContractReads(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	fc, backend := newFakeFeedbackContract(t, func(method string, args []interface{}) ([]interface{}, error) {
		switch method {
		case "getFeedbackCount":
			return []interface{}{big.NewInt(2)}, nil
		case "getFeedback":
			idx := args[0].(*big.Int).Int64()
			return []interface{}{
				common.HexToAddress(testSubmitter),
				testSubmitterID,
				"did:ethr:sepolia:0x0000000000000000000000000000000000000002",
				"message " + string(rune('a'+idx)),
				uint8(4),
				big.NewInt(ts.Unix() + idx),
			}, nil
		case "getReputation":
			assert.Equal(t, "did:ethr:sepolia:recv", args[0])
			return []interface{}{big.NewInt(9), big.NewInt(2)}, nil
		case "getAverageRating":
			return []interface{}{big.NewInt(450)}, nil
		}
		return nil, errors.New("unexpected method " + method)
	})

	ctx := context.Background()

	count, err := fc.FeedbackCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	entry, err := fc.FeedbackAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testSubmitter), entry.Submitter)
	assert.Equal(t, testSubmitterID, entry.SubmitterDID)
	assert.Equal(t, "message b", entry.Message)
	assert.Equal(t, uint8(4), entry.Rating)
	assert.Equal(t, ts.Add(time.Second), entry.Timestamp)

	rep, err := fc.Reputation(ctx, "did:ethr:sepolia:recv")
	require.NoError(t, err)
	assert.Equal(t, int64(9), rep.TotalRating.Int64())
	assert.Equal(t, int64(2), rep.FeedbackCount.Int64())

	avg, err := fc.AverageRating(ctx, "did:ethr:sepolia:recv")
	require.NoError(t, err)
	assert.Equal(t, int64(450), avg.Int64())

	assert.Equal(t, []string{"getFeedbackCount", "getFeedback", "getReputation", "getAverageRating"}, backend.calls)
}

func TestFeedbackContractReadFailureIsExternal(t *testing.T) {
	fc, _ := newFakeFeedbackContract(t, func(string, []interface{}) ([]interface{}, error) {
		return nil, errors.New("connection refused")
	})

	_, err := fc.FeedbackCount(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindExternalService, apperr.KindOf(err))

	_, err = fc.Reputation(context.Background(), "did:ethr:x")
	assert.Equal(t, apperr.KindExternalService, apperr.KindOf(err))
}

func TestNewFeedbackContractValidation(t *testing.T) {
	relayer, err := signer.NewDefaultProvider(testPrivateKey)
	require.NoError(t, err)
	client, err := NewClient(context.Background(), &fakeBackend{}, nil)
	require.NoError(t, err)

	_, err = NewFeedbackContract(nil, testContract, relayer, 0)
	assert.Error(t, err)
	_, err = NewFeedbackContract(client, "0x1234", relayer, 0)
	assert.Error(t, err)
	_, err = NewFeedbackContract(client, testContract, nil, 0)
	assert.Error(t, err)
}

func TestRegistryIdentityOwner(t *testing.T) {
	registryABI, err := loadRegistryABI()
	require.NoError(t, err)

	owner := common.HexToAddress(testSubmitter)
	backend := &fakeBackend{abi: registryABI, respond: func(method string, args []interface{}) ([]interface{}, error) {
		switch method {
		case "identityOwner":
			return []interface{}{owner}, nil
		}
		return nil, errors.New("unexpected method")
	}}

	client, err := NewClient(context.Background(), backend, big.NewInt(11155111))
	require.NoError(t, err)
	registry, err := NewRegistry(client, "0xdca7ef03e98e0dc2b855be647c39abe984fcf21b")
	require.NoError(t, err)

	got, err := registry.IdentityOwner(context.Background(), "0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", got)

	_, err = NewRegistry(client, "not-an-address")
	assert.Error(t, err)
}

func TestSimulatedBalanceAndSubmit(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	relayerAddr := crypto.PubkeyToAddress(key.PublicKey)

	funds := new(big.Int).Mul(big.NewInt(10), big.NewInt(params.Ether))
	sim := simulated.NewBackend(types.GenesisAlloc{
		relayerAddr: {Balance: funds},
	})
	defer sim.Close()

	ctx := context.Background()
	client, err := NewClient(ctx, sim.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), client.ChainID().Int64())

	balance, err := client.Balance(ctx, relayerAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, funds, balance)
	assert.Equal(t, "10.0", FormatEther(balance))

	empty, err := client.Balance(ctx, "0x0000000000000000000000000000000000000009")
	require.NoError(t, err)
	assert.Equal(t, "0.0", FormatEther(empty))

	_, err = client.Balance(ctx, "0x1234")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	// The target has no code, so the call succeeds as a plain transfer; an
	// explicit gas limit skips the code check done by estimation.
	fc, err := NewFeedbackContract(client, testContract, signer.NewProviderFromKey(key), 200_000)
	require.NoError(t, err)

	tx, err := fc.SubmitFeedback(ctx, testSubmitterID, "did:ethr:sepolia:recv", "great work", 5)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testContract), *tx.To())

	sim.Commit()

	receipt, err := fc.WaitMined(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, uint64(1), receipt.BlockNumber.Uint64())

	sender, err := types.Sender(types.LatestSignerForChainID(client.ChainID()), tx)
	require.NoError(t, err)
	assert.Equal(t, relayerAddr, sender)
}

func TestSubmitWithoutFundsIsRejected(t *testing.T) {
	sim := simulated.NewBackend(types.GenesisAlloc{})
	defer sim.Close()

	ctx := context.Background()
	client, err := NewClient(ctx, sim.Client(), nil)
	require.NoError(t, err)

	relayer, err := signer.NewDefaultProvider(testPrivateKey)
	require.NoError(t, err)
	fc, err := NewFeedbackContract(client, testContract, relayer, 200_000)
	require.NoError(t, err)

	_, err = fc.SubmitFeedback(ctx, testSubmitterID, "did:ethr:sepolia:recv", "great work", 5)
	require.Error(t, err)
	assert.Equal(t, apperr.KindChainRejection, apperr.KindOf(err))
}

type codedError struct{ code int }

func (e codedError) Error() string  { return "rpc error" }
func (e codedError) ErrorCode() int { return e.code }

func TestNewClientChainID(t *testing.T) {
	sim := simulated.NewBackend(types.GenesisAlloc{})
	defer sim.Close()
	ctx := context.Background()

	client, err := NewClient(ctx, sim.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), client.ChainID().Int64())

	client, err = NewClient(ctx, sim.Client(), big.NewInt(1337))
	require.NoError(t, err)
	assert.Equal(t, int64(1337), client.ChainID().Int64())

	// A Sepolia chain ID pointed at another network must not start.
	_, err = NewClient(ctx, sim.Client(), big.NewInt(11155111))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match node chain ID 1337")

	_, err = NewClient(ctx, &fakeBackend{chainID: big.NewInt(1)}, big.NewInt(11155111))
	assert.Error(t, err)
}

func TestIsRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "revert message", err: errors.New("execution reverted: rating out of range"), want: true},
		{name: "insufficient funds", err: errors.New("insufficient funds for gas * price + value"), want: true},
		{name: "revert code", err: codedError{code: 3}, want: true},
		{name: "other rpc code", err: codedError{code: -32000}, want: false},
		{name: "failed receipt", err: ErrTxFailed, want: true},
		{name: "dial failure", err: errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), want: false},
		{name: "timeout", err: context.DeadlineExceeded, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRejection(tt.err))
		})
	}

	assert.Equal(t, apperr.KindChainRejection, apperr.KindOf(classifyTxError(codedError{code: 3}, "submit")))
	assert.Equal(t, apperr.KindExternalService, apperr.KindOf(classifyTxError(errors.New("EOF"), "submit")))
}

func TestFormatEther(t *testing.T) {
	oneAndHalf, _ := new(big.Int).SetString("1500000000000000000", 10)
	large, _ := new(big.Int).SetString("123456789000000000000000", 10)

	tests := []struct {
		wei  *big.Int
		want string
	}{
		{wei: nil, want: "0.0"},
		{wei: big.NewInt(0), want: "0.0"},
		{wei: big.NewInt(params.Ether), want: "1.0"},
		{wei: oneAndHalf, want: "1.5"},
		{wei: big.NewInt(1), want: "0.000000000000000001"},
		{wei: large, want: "123456.789"},
		{wei: big.NewInt(-params.Ether / 2), want: "-0.5"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatEther(tt.wei))
	}
}
