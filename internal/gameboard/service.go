package gameboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/pairchain/internal/chain"
	"github.com/playperu/pairchain/internal/leaderboard"
	"github.com/playperu/pairchain/internal/memory"
	"github.com/playperu/pairchain/internal/wallet"
)

const submitTimeout = 30 * time.Second

type Options struct {
	Images         []string
	DefaultPairs   int
	ConfirmTimeout time.Duration
	ConfirmWorkers int
	// IdleTimeout is how long an untouched game stays in memory. Evicted
	// games reload from the store on next use.
	IdleTimeout time.Duration

	Events      Publisher
	Leaderboard Recorder

	Now  func() time.Time
	Rand *rand.Rand
}

// liveGame is a cached session. A game is in the live table exactly while
// evicted is false; both change only with mu held.
type liveGame struct {
	mu      sync.Mutex
	sess    *memory.Session
	evicted bool

	lastUsed atomic.Int64
}

func (g *liveGame) touch(now time.Time) { g.lastUsed.Store(now.UnixNano()) }

type Service struct {
	logger *slog.Logger
	wallet wallet.Connector
	ledger Ledger
	store  Store
	opts   Options

	mu   sync.RWMutex
	live map[string]*liveGame

	rngMu sync.Mutex

	pending chan pendingTx
}

func New(logger *slog.Logger, w wallet.Connector, l Ledger, s Store, opts Options) *Service {
	if len(opts.Images) == 0 {
		opts.Images = memory.DefaultImages(12)
	}
	if opts.DefaultPairs <= 0 {
		opts.DefaultPairs = 4
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	if opts.ConfirmWorkers <= 0 {
		opts.ConfirmWorkers = 4
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Service{
		logger:  logger,
		wallet:  w,
		ledger:  l,
		store:   s,
		opts:    opts,
		live:    make(map[string]*liveGame),
		pending: make(chan pendingTx, 64),
	}
}

// MaxPairs is the largest deck the service can deal.
func (s *Service) MaxPairs() int { return len(s.opts.Images) }

// Connect asks the wallet for its account, as the "Connect Wallet" button.
func (s *Service) Connect(ctx context.Context) (string, error) {
	acc, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	return acc.Address.Hex(), nil
}

// NewGame deals a fresh board. pairs of 0 means the default deck size.
func (s *Service) NewGame(ctx context.Context, pairs int) (State, error) {
	return s.start(ctx, uuid.NewString(), false, pairs)
}

// Restart redeals an existing game with the same id.
func (s *Service) Restart(ctx context.Context, id string, pairs int) (State, error) {
	if _, err := s.game(ctx, id); err != nil {
		return State{}, err
	}
	return s.start(ctx, id, true, pairs)
}

func (s *Service) start(ctx context.Context, id string, restart bool, pairs int) (State, error) {
	if pairs == 0 {
		pairs = s.opts.DefaultPairs
	}
	if pairs < 0 || pairs > s.MaxPairs() {
		return State{}, fmt.Errorf("%w: %d (want 1..%d)", memory.ErrInvalidPairs, pairs, s.MaxPairs())
	}

	acc, err := s.connect(ctx)
	if err != nil {
		return State{}, err
	}

	s.rngMu.Lock()
	sess, err := memory.NewSession(id, acc.Address.Hex(), pairs, s.opts.Images, s.opts.Rand, s.opts.Now())
	s.rngMu.Unlock()
	if err != nil {
		return State{}, err
	}

	snap := sess.Clone()
	if restart {
		g, err := s.lock(ctx, id)
		if err != nil {
			return State{}, err
		}
		err = s.store.SaveSession(ctx, snap)
		if err == nil {
			g.sess = sess
		}
		g.mu.Unlock()
		if err != nil {
			return State{}, fmt.Errorf("saving game: %w", err)
		}
	} else {
		if err := s.store.SaveSession(ctx, snap); err != nil {
			return State{}, fmt.Errorf("saving game: %w", err)
		}
		g := &liveGame{sess: sess}
		g.touch(s.opts.Now())
		s.mu.Lock()
		s.live[id] = g
		s.mu.Unlock()
	}

	s.logger.Info("game started", "game", id, "pairs", pairs, "player", snap.Player)
	s.submit(ctx, id, acc, chain.MethodInitializeGame, pairs)
	s.publish(id, Event{Type: EventGameStarted})

	return s.state(snap), nil
}

// Click applies a card click for the connected player.
func (s *Service) Click(ctx context.Context, id string, cardID int) (ClickResult, error) {
	if _, err := s.game(ctx, id); err != nil {
		return ClickResult{}, err
	}

	acc, err := s.connect(ctx)
	if err != nil {
		return ClickResult{}, err
	}

	g, err := s.lock(ctx, id)
	if err != nil {
		return ClickResult{}, err
	}
	out, err := g.sess.Click(cardID, s.opts.Now())
	if err != nil {
		g.mu.Unlock()
		return ClickResult{}, err
	}
	snap := g.sess.Clone()
	err = s.store.SaveSession(ctx, snap)
	g.mu.Unlock()
	if err != nil {
		return ClickResult{}, fmt.Errorf("saving game: %w", err)
	}

	if out.Revealed() {
		s.submit(ctx, id, acc, chain.MethodRevealCard, cardID)
	}
	s.publish(id, Event{Type: eventFor(out), CardID: &cardID, Moves: snap.Moves})
	if snap.Won {
		s.finish(ctx, snap)
	}

	return ClickResult{Outcome: out, State: s.state(snap)}, nil
}

func (s *Service) State(ctx context.Context, id string) (State, error) {
	g, err := s.lock(ctx, id)
	if err != nil {
		return State{}, err
	}
	snap := g.sess.Clone()
	g.mu.Unlock()
	return s.state(snap), nil
}

func (s *Service) Transactions(ctx context.Context, id string) ([]Tx, error) {
	if _, err := s.game(ctx, id); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTxs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return txs, nil
}

func (s *Service) state(sess *memory.Session) State {
	return State{
		ID:     sess.ID,
		Player: sess.Player,
		Pairs:  sess.Pairs,
		Cards:  sess.Views(),
		Moves:  sess.Moves,
		Time:   int(sess.Elapsed(s.opts.Now()) / time.Second),
		Score:  sess.Score,
		Won:    sess.Won,
		Locked: sess.Locked(),
	}
}

// LiveGames is the number of sessions held in memory.
func (s *Service) LiveGames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// game returns the live session, loading it from the store on first use.
func (s *Service) game(ctx context.Context, id string) (*liveGame, error) {
	s.mu.RLock()
	g, ok := s.live[id]
	s.mu.RUnlock()
	if ok {
		g.touch(s.opts.Now())
		return g, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock.
	if g, ok := s.live[id]; ok {
		g.touch(s.opts.Now())
		return g, nil
	}

	sess, err := s.store.LoadSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("loading game %s: %w", id, err)
	}
	g = &liveGame{sess: sess}
	g.touch(s.opts.Now())
	s.live[id] = g
	return g, nil
}

// lock returns the live game with its mutex held. A game evicted while we
// waited is looked up again.
func (s *Service) lock(ctx context.Context, id string) (*liveGame, error) {
	for {
		g, err := s.game(ctx, id)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		if !g.evicted {
			return g, nil
		}
		g.mu.Unlock()
	}
}

// evict drops g from the live table. The caller holds g.mu.
func (s *Service) evict(id string, g *liveGame) {
	g.evicted = true
	s.mu.Lock()
	if s.live[id] == g {
		delete(s.live, id)
	}
	s.mu.Unlock()
}

// evictIdle drops games untouched for IdleTimeout. Games busy right now
// wait for the next sweep.
func (s *Service) evictIdle() int {
	cutoff := s.opts.Now().Add(-s.opts.IdleTimeout).UnixNano()

	s.mu.RLock()
	var idle []string
	for id, g := range s.live {
		if g.lastUsed.Load() <= cutoff {
			idle = append(idle, id)
		}
	}
	s.mu.RUnlock()

	n := 0
	for _, id := range idle {
		s.mu.RLock()
		g, ok := s.live[id]
		s.mu.RUnlock()
		if !ok || !g.mu.TryLock() {
			continue
		}
		if !g.evicted && g.lastUsed.Load() <= cutoff {
			s.evict(id, g)
			n++
		}
		g.mu.Unlock()
	}
	return n
}

func (s *Service) connect(ctx context.Context) (wallet.Account, error) {
	acc, err := s.wallet.Connect(ctx)
	if err != nil {
		s.logger.Warn("wallet connection failed", "error", err)
		return wallet.Account{}, fmt.Errorf("%w: %w", ErrWalletUnavailable, err)
	}
	s.logger.Debug("wallet connected", "account", acc.Address.Hex())
	return acc, nil
}

// submit sends one contract call. Failures leave the game unsynchronized
// and are only logged.
func (s *Service) submit(ctx context.Context, gameID string, acc wallet.Account, method string, arg int) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
	defer cancel()

	tx := Tx{
		GameID:    gameID,
		Method:    method,
		Sender:    acc.Address.Hex(),
		Status:    TxPending,
		CreatedAt: s.opts.Now().UTC(),
	}

	var (
		rcpt chain.Receipt
		err  error
	)
	switch method {
	case chain.MethodInitializeGame:
		rcpt, err = s.ledger.InitializeGame(ctx, acc, arg)
		tx.Pairs = &arg
	case chain.MethodRevealCard:
		rcpt, err = s.ledger.RevealCard(ctx, acc, arg)
		tx.CardID = &arg
	default:
		err = fmt.Errorf("unknown method %q", method)
	}
	if errors.Is(err, chain.ErrDisabled) {
		s.logger.Debug("chain sync disabled, skipping", "game", gameID, "method", method)
		return
	}
	if err != nil {
		s.logger.Error("chain submission failed", "game", gameID, "method", method, "error", err)
		tx.Status = TxFailed
		tx.Error = err.Error()
		if err := s.store.RecordTx(ctx, tx); err != nil {
			s.logger.Error("recording failed transaction", "game", gameID, "method", method, "error", err)
		}
		return
	}

	tx.Hash = rcpt.TxHash.Hex()
	if err := s.store.RecordTx(ctx, tx); err != nil {
		s.logger.Error("recording transaction", "game", gameID, "tx", tx.Hash, "error", err)
	}
	s.enqueue(pendingTx{gameID: gameID, receipt: rcpt})
}

func (s *Service) publish(gameID string, ev Event) {
	if s.opts.Events != nil {
		s.opts.Events.Publish(gameID, ev)
	}
}

// finish records a won game and drops it from the live table; later reads
// reload it from the store.
func (s *Service) finish(ctx context.Context, snap *memory.Session) {
	secs := int(snap.Elapsed(s.opts.Now()) / time.Second)
	s.logger.Info("game won", "game", snap.ID, "moves", snap.Moves, "seconds", secs)
	s.publish(snap.ID, Event{Type: EventGameWon, Moves: snap.Moves})

	if s.opts.Leaderboard != nil {
		err := s.opts.Leaderboard.Record(ctx, leaderboard.Entry{
			GameID:     snap.ID,
			Player:     snap.Player,
			Pairs:      snap.Pairs,
			Moves:      snap.Moves,
			Seconds:    secs,
			FinishedAt: *snap.WonAt,
		})
		if err != nil {
			s.logger.Error("recording leaderboard entry", "game", snap.ID, "error", err)
		}
	}

	g, err := s.lock(ctx, snap.ID)
	if err != nil {
		return
	}
	// A restart may have redealt the game in the meantime.
	if g.sess.Won {
		s.evict(snap.ID, g)
	}
	g.mu.Unlock()
}
