// Package memory defines the pair-matching game: cards, the two-slot
// selection and the session state machine.
package memory

import (
	"errors"
	"time"
)

var (
	ErrInvalidPairs = errors.New("invalid pair count")
	ErrUnknownCard  = errors.New("unknown card")
	ErrCardMatched  = errors.New("card already matched")
	ErrLocked       = errors.New("board is locked")
)

type Card struct {
	ID      int    `json:"id"`
	Image   string `json:"image"`
	Flipped bool   `json:"flipped"`
	Matched bool   `json:"matched"`
}

// Selection holds the ids of the face-up cards of the current move.
type Selection struct {
	First  *int `json:"first"`
	Second *int `json:"second"`
}

func (s Selection) Empty() bool {
	return s.First == nil && s.Second == nil
}

func (s Selection) Has(id int) bool {
	return (s.First != nil && *s.First == id) || (s.Second != nil && *s.Second == id)
}

type Session struct {
	ID           string     `json:"id"`
	Player       string     `json:"player"`
	Pairs        int        `json:"pairs"`
	Cards        []Card     `json:"cards"`
	Selection    Selection  `json:"selection"`
	Moves        int        `json:"moves"`
	MatchedPairs int        `json:"matchedPairs"`
	Score        int        `json:"score"`
	Won          bool       `json:"won"`
	StartedAt    time.Time  `json:"startedAt"`
	WonAt        *time.Time `json:"wonAt,omitempty"`
}

type Outcome string

const (
	OutcomeFlipped Outcome = "flipped"
	OutcomeMatched Outcome = "matched"
	OutcomeMissed  Outcome = "missed"
	OutcomeCleared Outcome = "cleared"
)

// Revealed reports whether the click turned a card face up.
func (o Outcome) Revealed() bool {
	return o == OutcomeFlipped || o == OutcomeMatched || o == OutcomeMissed
}
