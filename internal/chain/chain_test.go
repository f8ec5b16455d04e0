package chain_test

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/pairchain/internal/chain"
	"github.com/playperu/pairchain/internal/wallet"
)

var (
	chainID      = big.NewInt(1337)
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
)

// fakeBackend accepts every transaction and never mines. It is used where a
// node has to misbehave; real chain behaviour is tested against the
// simulated backend.
type fakeBackend struct {
	mu       sync.Mutex
	nonces   map[common.Address]uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	sendErr  error
	headErr  error
}

func (f *fakeBackend) setNonce(a common.Address, n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[a] = n
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account], nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 50_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[from]++
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

var _ chain.Backend = (*fakeBackend)(nil)

func testAccount(t *testing.T) wallet.Account {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	require.NoError(t, err)
	return wallet.Account{Address: opts.From, Signer: opts.Signer}
}

func gameABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(`[
		{"type":"function","name":"initializeGame","inputs":[{"name":"numPairs","type":"uint256"}]},
		{"type":"function","name":"revealCard","inputs":[{"name":"cardId","type":"uint256"}]}
	]`))
	require.NoError(t, err)
	return parsed
}

func newBridge(t *testing.T) (*chain.Bridge, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	b, err := chain.NewBridge(backend, contractAddr, chainID, slog.Default())
	require.NoError(t, err)
	return b, backend
}

func TestBridgeSendError(t *testing.T) {
	b, backend := newBridge(t)
	backend.sendErr = errors.New("insufficient funds")

	_, err := b.RevealCard(context.Background(), testAccount(t), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestBridgeResyncsNonceAfterFailure(t *testing.T) {
	b, backend := newBridge(t)
	acc := testAccount(t)
	ctx := context.Background()

	for want := range uint64(2) {
		r, err := b.RevealCard(ctx, acc, int(want))
		require.NoError(t, err)
		assert.Equal(t, want, r.Nonce)
	}

	// Someone else spent nonces with the same key; the node rejects ours.
	backend.setNonce(acc.Address, 5)
	backend.sendErr = errors.New("nonce too low")
	_, err := b.RevealCard(ctx, acc, 2)
	require.Error(t, err)

	backend.sendErr = nil
	r, err := b.RevealCard(ctx, acc, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), r.Nonce)
}

func TestBridgeWaitMinedTimeout(t *testing.T) {
	b, _ := newBridge(t)
	r, err := b.RevealCard(context.Background(), testAccount(t), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.WaitMined(ctx, r)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridgeCheck(t *testing.T) {
	b, backend := newBridge(t)
	assert.NoError(t, b.Check(context.Background()))

	backend.headErr = errors.New("connection refused")
	assert.Error(t, b.Check(context.Background()))
}

func TestDisabled(t *testing.T) {
	var d chain.Disabled
	_, err := d.InitializeGame(context.Background(), wallet.Account{}, 4)
	assert.ErrorIs(t, err, chain.ErrDisabled)
	_, err = d.RevealCard(context.Background(), wallet.Account{}, 1)
	assert.ErrorIs(t, err, chain.ErrDisabled)
	_, err = d.WaitMined(context.Background(), chain.Receipt{})
	assert.ErrorIs(t, err, chain.ErrDisabled)
}
