package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/playperu/pairchain/internal/chain"
	"github.com/playperu/pairchain/internal/database"
	"github.com/playperu/pairchain/internal/gameboard"
	"github.com/playperu/pairchain/internal/handler/health"
	"github.com/playperu/pairchain/internal/leaderboard"
	"github.com/playperu/pairchain/internal/migrations"
	"github.com/playperu/pairchain/internal/wallet"
)

var testPlayer = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type testWallet struct{ err error }

func (w testWallet) Connect(context.Context) (wallet.Account, error) {
	if w.err != nil {
		return wallet.Account{}, w.err
	}
	return wallet.Account{Address: testPlayer}, nil
}

// testLedger hands out sequential hashes and never mines anything.
type testLedger struct {
	mu sync.Mutex
	n  int64
}

func (l *testLedger) send(method string) (chain.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n++
	return chain.Receipt{TxHash: common.BigToHash(big.NewInt(l.n)), Method: method, From: testPlayer}, nil
}

func (l *testLedger) InitializeGame(context.Context, wallet.Account, int) (chain.Receipt, error) {
	return l.send(chain.MethodInitializeGame)
}

func (l *testLedger) RevealCard(context.Context, wallet.Account, int) (chain.Receipt, error) {
	return l.send(chain.MethodRevealCard)
}

func (l *testLedger) WaitMined(ctx context.Context, _ chain.Receipt) (chain.Confirmation, error) {
	<-ctx.Done()
	return chain.Confirmation{}, ctx.Err()
}

type testRanking struct {
	entries []leaderboard.Entry
	err     error
	pairs   int
	n       int
}

func (r *testRanking) Top(_ context.Context, pairs, n int) ([]leaderboard.Entry, error) {
	r.pairs, r.n = pairs, n
	return r.entries, r.err
}

type testEnv struct {
	handler http.Handler
	store   *SQLiteStore
	games   *gameboard.Service
	broker  *Broker
}

type envOption func(*envConfig)

type envConfig struct {
	wallet  wallet.Connector
	ledger  gameboard.Ledger
	ranking Ranking
	origins []string
}

func withWallet(w wallet.Connector) envOption { return func(c *envConfig) { c.wallet = w } }
func withLedger(l gameboard.Ledger) envOption { return func(c *envConfig) { c.ledger = l } }
func withRanking(r Ranking) envOption         { return func(c *envConfig) { c.ranking = r } }
func withOrigins(o ...string) envOption       { return func(c *envConfig) { c.origins = o } }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{wallet: testWallet{}, ledger: chain.Disabled{}}
	for _, o := range opts {
		o(&cfg)
	}

	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewSQLiteStore(db)
	broker := NewBroker()
	games := gameboard.New(logger, cfg.wallet, cfg.ledger, store, gameboard.Options{
		Events: broker,
		Rand:   rand.New(rand.NewPCG(1, 2)),
	})

	srv := New(":0", logger, Deps{
		Games:   games,
		Broker:  broker,
		Ranking: cfg.ranking,
		Checks:  map[string]health.Checker{"sqlite": database.Checker{DB: db}},

		AllowedOrigins: cfg.origins,
	})
	return &testEnv{handler: srv.Handler(), store: store, games: games, broker: broker}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

// newGame starts a game over HTTP and returns its state.
func (e *testEnv) newGame(t *testing.T, pairs int) gameboard.State {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/games", NewGameRequest{Pairs: pairs})
	if rec.Code != http.StatusCreated {
		t.Fatalf("new game status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[gameboard.State](t, rec)
}

// pairsOf reads the dealt deck from the store and returns card ids
// grouped by image.
func (e *testEnv) pairsOf(t *testing.T, gameID string) [][2]int {
	t.Helper()
	sess, err := e.store.LoadSession(context.Background(), gameID)
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	seen := make(map[string]int)
	var out [][2]int
	for _, c := range sess.Cards {
		if first, ok := seen[c.Image]; ok {
			out = append(out, [2]int{first, c.ID})
			continue
		}
		seen[c.Image] = c.ID
	}
	return out
}

var errNoExtension = errors.New("no wallet extension")
