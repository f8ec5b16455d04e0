// Package wallet supplies the account that signs game transactions.
//
// A Connector stands in for a browser wallet's eth_requestAccounts: each
// Connect asks for access again and yields the first account.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrNoWallet = errors.New("no wallet configured")
	ErrRejected = errors.New("wallet access rejected")
)

// Account is a connected externally owned account.
type Account struct {
	Address common.Address
	Signer  bind.SignerFn
}

type Connector interface {
	Connect(ctx context.Context) (Account, error)
}

// Unavailable is the connector used when no wallet is configured.
type Unavailable struct{}

func (Unavailable) Connect(context.Context) (Account, error) {
	return Account{}, ErrNoWallet
}

// KeyWallet signs with a raw secp256k1 private key.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

func NewKeyWallet(hexKey string, chainID *big.Int) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &KeyWallet{key: key, chainID: chainID}, nil
}

func (w *KeyWallet) Connect(ctx context.Context) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.chainID)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return Account{Address: opts.From, Signer: opts.Signer}, nil
}

// KeystoreWallet signs with the first account of an encrypted keystore
// directory. The account is decrypted once, on the first Connect; later
// calls only check that it is still present and unlocked.
type KeystoreWallet struct {
	ks         *keystore.KeyStore
	passphrase string
	chainID    *big.Int

	// unlock is ks.Unlock, swapped out in tests.
	unlock func(a accounts.Account, passphrase string) error

	mu       sync.Mutex
	acc      *Account
	rejected map[common.Address]error
}

func NewKeystoreWallet(dir, passphrase string, chainID *big.Int) *KeystoreWallet {
	ks := keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
	return &KeystoreWallet{
		ks:         ks,
		passphrase: passphrase,
		chainID:    chainID,
		unlock:     ks.Unlock,
		rejected:   make(map[common.Address]error),
	}
}

func (w *KeystoreWallet) Connect(ctx context.Context) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	accs := w.ks.Accounts()
	if len(accs) == 0 {
		return Account{}, fmt.Errorf("%w: keystore is empty", ErrNoWallet)
	}
	acc := accs[0]

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.acc != nil && w.acc.Address == acc.Address && w.unlocked(acc) {
		return *w.acc, nil
	}
	// The passphrase is fixed, so a rejection is final for this account.
	if err, ok := w.rejected[acc.Address]; ok {
		return Account{}, err
	}

	if err := w.unlock(acc, w.passphrase); err != nil {
		err = fmt.Errorf("%w: %v", ErrRejected, err)
		w.rejected[acc.Address] = err
		return Account{}, err
	}
	a, err := w.account(acc)
	if err != nil {
		return Account{}, err
	}
	w.acc = &a
	return a, nil
}

// unlocked signs a dummy hash, which fails with keystore.ErrLocked once the
// key has been locked again.
func (w *KeystoreWallet) unlocked(acc accounts.Account) bool {
	_, err := w.ks.SignHash(acc, make([]byte, 32))
	return err == nil
}

func (w *KeystoreWallet) account(acc accounts.Account) (Account, error) {
	opts, err := bind.NewKeyStoreTransactorWithChainID(w.ks, acc, w.chainID)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return Account{Address: opts.From, Signer: opts.Signer}, nil
}
