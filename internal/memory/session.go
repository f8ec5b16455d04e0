package memory

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NewSession deals a shuffled deck of two cards per image for the first
// pairs entries of images. Card ids are the positions after shuffling.
func NewSession(id, player string, pairs int, images []string, rng *rand.Rand, now time.Time) (*Session, error) {
	if pairs <= 0 || pairs > len(images) {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidPairs, pairs, len(images))
	}

	deck := make([]string, 0, pairs*2)
	for _, img := range images[:pairs] {
		deck = append(deck, img, img)
	}
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	cards := make([]Card, len(deck))
	for i, img := range deck {
		cards[i] = Card{ID: i, Image: img}
	}

	return &Session{
		ID:        id,
		Player:    player,
		Pairs:     pairs,
		Cards:     cards,
		StartedAt: now,
	}, nil
}

// Locked reports whether the board accepts no more clicks.
func (s *Session) Locked() bool {
	return s.Won
}

// Elapsed is the play time, frozen once the game is won.
func (s *Session) Elapsed(now time.Time) time.Duration {
	end := now
	if s.WonAt != nil {
		end = *s.WonAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

func (s *Session) card(id int) (*Card, error) {
	if id < 0 || id >= len(s.Cards) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCard, id)
	}
	return &s.Cards[id], nil
}

// Click applies one card click.
//
//   - empty selection: the card becomes the first selection;
//   - second slot free and a different card: it becomes the second
//     selection, the move is counted and the pair is checked;
//   - anything else (same card again, or both slots taken): the selection
//     is cleared and unmatched cards turn face down.
//
// A match clears the selection at once; a miss leaves both cards face up
// until the next click clears them.
func (s *Session) Click(id int, now time.Time) (Outcome, error) {
	if s.Locked() {
		return "", ErrLocked
	}
	c, err := s.card(id)
	if err != nil {
		return "", err
	}

	switch {
	case s.Selection.First == nil:
		if c.Matched {
			return "", fmt.Errorf("%w: %d", ErrCardMatched, id)
		}
		c.Flipped = true
		s.Selection.First = &c.ID
		return OutcomeFlipped, nil

	case s.Selection.Second == nil && *s.Selection.First != id:
		if c.Matched {
			return "", fmt.Errorf("%w: %d", ErrCardMatched, id)
		}
		c.Flipped = true
		s.Selection.Second = &c.ID
		s.Moves++
		return s.checkPair(now), nil

	default:
		s.clearSelection()
		return OutcomeCleared, nil
	}
}

func (s *Session) checkPair(now time.Time) Outcome {
	first := &s.Cards[*s.Selection.First]
	second := &s.Cards[*s.Selection.Second]
	if first.Image != second.Image {
		return OutcomeMissed
	}

	first.Matched = true
	second.Matched = true
	s.MatchedPairs++
	s.Selection = Selection{}

	if s.MatchedPairs == s.Pairs {
		s.Won = true
		s.Score = s.Moves
		s.WonAt = &now
	}
	return OutcomeMatched
}

func (s *Session) clearSelection() {
	for _, id := range []*int{s.Selection.First, s.Selection.Second} {
		if id == nil {
			continue
		}
		if c := &s.Cards[*id]; !c.Matched {
			c.Flipped = false
		}
	}
	s.Selection = Selection{}
}

// Clone returns a deep copy safe to hand out while the original keeps
// changing.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Cards = append([]Card(nil), s.Cards...)
	if s.Selection.First != nil {
		v := *s.Selection.First
		cp.Selection.First = &v
	}
	if s.Selection.Second != nil {
		v := *s.Selection.Second
		cp.Selection.Second = &v
	}
	if s.WonAt != nil {
		v := *s.WonAt
		cp.WonAt = &v
	}
	return &cp
}
