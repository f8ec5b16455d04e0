// Package gameboard runs memory-game sessions: it connects the wallet for
// every player action, applies the action to the session, persists it and
// mirrors it to the game contract.
package gameboard

import (
	"context"
	"errors"
	"time"

	"github.com/playperu/pairchain/internal/chain"
	"github.com/playperu/pairchain/internal/leaderboard"
	"github.com/playperu/pairchain/internal/memory"
	"github.com/playperu/pairchain/internal/wallet"
)

var (
	ErrNotFound          = errors.New("game not found")
	ErrWalletUnavailable = errors.New("wallet unavailable")
)

// Ledger mirrors game actions to the contract.
type Ledger interface {
	InitializeGame(ctx context.Context, from wallet.Account, pairs int) (chain.Receipt, error)
	RevealCard(ctx context.Context, from wallet.Account, cardID int) (chain.Receipt, error)
	WaitMined(ctx context.Context, r chain.Receipt) (chain.Confirmation, error)
}

type Store interface {
	SaveSession(ctx context.Context, s *memory.Session) error
	LoadSession(ctx context.Context, id string) (*memory.Session, error)
	RecordTx(ctx context.Context, tx Tx) error
	UpdateTxStatus(ctx context.Context, hash string, status TxStatus, block uint64) error
	ListTxs(ctx context.Context, gameID string) ([]Tx, error)
}

type Publisher interface {
	Publish(gameID string, ev Event)
}

type Recorder interface {
	Record(ctx context.Context, e leaderboard.Entry) error
}

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxReverted  TxStatus = "reverted"
	TxDropped   TxStatus = "dropped"
	// TxFailed is a call the node refused; it has no hash.
	TxFailed TxStatus = "failed"
)

// Tx is one contract call made for a game.
type Tx struct {
	Hash        string    `json:"hash,omitempty"`
	GameID      string    `json:"gameId"`
	Method      string    `json:"method"`
	CardID      *int      `json:"cardId,omitempty"`
	Pairs       *int      `json:"pairs,omitempty"`
	Sender      string    `json:"sender"`
	Status      TxStatus  `json:"status"`
	BlockNumber *uint64   `json:"blockNumber,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

const (
	EventGameStarted      = "game_started"
	EventCardFlipped      = "card_flipped"
	EventPairMatched      = "pair_matched"
	EventPairMissed       = "pair_missed"
	EventSelectionCleared = "selection_cleared"
	EventGameWon          = "game_won"
	EventTxConfirmed      = "tx_confirmed"
)

type Event struct {
	Type   string   `json:"type"`
	CardID *int     `json:"cardId,omitempty"`
	Moves  int      `json:"moves"`
	TxHash string   `json:"txHash,omitempty"`
	Status TxStatus `json:"status,omitempty"`
}

// State is the player-facing board.
type State struct {
	ID     string            `json:"id"`
	Player string            `json:"player"`
	Pairs  int               `json:"pairs"`
	Cards  []memory.CardView `json:"cards"`
	Moves  int               `json:"moves"`
	Time   int               `json:"time"`
	Score  int               `json:"score"`
	Won    bool              `json:"won"`
	Locked bool              `json:"locked"`
}

type ClickResult struct {
	Outcome memory.Outcome `json:"outcome"`
	State   State          `json:"state"`
}

func eventFor(o memory.Outcome) string {
	switch o {
	case memory.OutcomeFlipped:
		return EventCardFlipped
	case memory.OutcomeMatched:
		return EventPairMatched
	case memory.OutcomeMissed:
		return EventPairMissed
	default:
		return EventSelectionCleared
	}
}
