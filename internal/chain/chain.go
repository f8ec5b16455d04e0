// Package chain submits game transactions to the memory-game contract.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/playperu/pairchain/internal/wallet"
)

const contractABI = `[
	{"type":"function","name":"initializeGame","stateMutability":"nonpayable",
	 "inputs":[{"name":"numPairs","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"revealCard","stateMutability":"nonpayable",
	 "inputs":[{"name":"cardId","type":"uint256"}],"outputs":[]}
]`

const (
	MethodInitializeGame = "initializeGame"
	MethodRevealCard     = "revealCard"
)

var ErrDisabled = errors.New("chain sync disabled")

// Backend is what the bridge needs from a node connection.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Receipt identifies a submitted, not yet confirmed transaction.
type Receipt struct {
	TxHash common.Hash
	Method string
	From   common.Address
	Nonce  uint64

	tx *types.Transaction
}

type Confirmation struct {
	Status      uint64
	BlockNumber uint64
}

func (c Confirmation) Succeeded() bool {
	return c.Status == types.ReceiptStatusSuccessful
}

// Bridge holds one node connection and one bound contract handle for the
// lifetime of the process.
//
// All games sign with the same wallet, so submissions are serialized and
// nonces are handed out locally: reading the pending nonce per call would
// give concurrent calls the same nonce.
type Bridge struct {
	backend  Backend
	contract *bind.BoundContract
	address  common.Address
	chainID  *big.Int
	logger   *slog.Logger
	closeFn  func()

	sendMu sync.Mutex
	nonces map[common.Address]uint64
}

func NewBridge(backend Backend, address common.Address, chainID *big.Int, logger *slog.Logger) (*Bridge, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parsing contract abi: %w", err)
	}
	return &Bridge{
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		address:  address,
		chainID:  chainID,
		logger:   logger,
		closeFn:  func() {},
		nonces:   make(map[common.Address]uint64),
	}, nil
}

// Dial connects to rpcURL. A zero chainID is looked up from the node.
func Dial(ctx context.Context, rpcURL, contract string, chainID int64, logger *slog.Logger) (*Bridge, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", rpcURL, err)
	}

	id := big.NewInt(chainID)
	if chainID == 0 {
		id, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("fetching chain id: %w", err)
		}
	}

	b, err := NewBridge(client, common.HexToAddress(contract), id, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	b.closeFn = client.Close
	return b, nil
}

func (b *Bridge) ChainID() *big.Int { return new(big.Int).Set(b.chainID) }

func (b *Bridge) Close() { b.closeFn() }

func (b *Bridge) InitializeGame(ctx context.Context, from wallet.Account, pairs int) (Receipt, error) {
	return b.transact(ctx, from, MethodInitializeGame, big.NewInt(int64(pairs)))
}

func (b *Bridge) RevealCard(ctx context.Context, from wallet.Account, cardID int) (Receipt, error) {
	return b.transact(ctx, from, MethodRevealCard, big.NewInt(int64(cardID)))
}

func (b *Bridge) transact(ctx context.Context, from wallet.Account, method string, args ...any) (Receipt, error) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	nonce, ok := b.nonces[from.Address]
	if !ok {
		n, err := b.backend.PendingNonceAt(ctx, from.Address)
		if err != nil {
			return Receipt{}, fmt.Errorf("sending %s: fetching nonce: %w", method, err)
		}
		nonce = n
	}

	opts := &bind.TransactOpts{
		From:    from.Address,
		Signer:  from.Signer,
		Nonce:   new(big.Int).SetUint64(nonce),
		Context: ctx,
	}
	tx, err := b.contract.Transact(opts, method, args...)
	if err != nil {
		// The node may have seen the nonce or not; ask it again next time.
		delete(b.nonces, from.Address)
		return Receipt{}, fmt.Errorf("sending %s: %w", method, err)
	}
	b.nonces[from.Address] = nonce + 1

	b.logger.Info("transaction sent",
		"method", method,
		"tx", tx.Hash().Hex(),
		"from", from.Address.Hex(),
		"nonce", tx.Nonce(),
	)
	return Receipt{
		TxHash: tx.Hash(),
		Method: method,
		From:   from.Address,
		Nonce:  tx.Nonce(),
		tx:     tx,
	}, nil
}

// WaitMined blocks until the transaction is included or ctx ends.
func (b *Bridge) WaitMined(ctx context.Context, r Receipt) (Confirmation, error) {
	if r.tx == nil {
		return Confirmation{}, fmt.Errorf("no transaction for %s", r.TxHash.Hex())
	}
	rcpt, err := bind.WaitMined(ctx, b.backend, r.tx)
	if err != nil {
		return Confirmation{}, fmt.Errorf("waiting for %s: %w", r.TxHash.Hex(), err)
	}
	c := Confirmation{Status: rcpt.Status}
	if rcpt.BlockNumber != nil {
		c.BlockNumber = rcpt.BlockNumber.Uint64()
	}
	return c, nil
}

// Check reports whether the node answers.
func (b *Bridge) Check(ctx context.Context) error {
	_, err := b.backend.HeaderByNumber(ctx, nil)
	return err
}

// Disabled is used when no RPC endpoint is configured.
type Disabled struct{}

func (Disabled) InitializeGame(context.Context, wallet.Account, int) (Receipt, error) {
	return Receipt{}, ErrDisabled
}

func (Disabled) RevealCard(context.Context, wallet.Account, int) (Receipt, error) {
	return Receipt{}, ErrDisabled
}

func (Disabled) WaitMined(context.Context, Receipt) (Confirmation, error) {
	return Confirmation{}, ErrDisabled
}
