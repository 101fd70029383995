package card

import (
	"errors"
	"math/rand"
)

// ErrEmpty is returned by Draw/Burn when the deck has no cards left.
// A multi-table hold'em hand with at most 10 players consumes at most
// 10*2 + 3 burns + 5 board = 28 cards, so this should never trigger in
// practice; it exists so the caller can fail the hand instead of panicking.
var ErrEmpty = errors.New("card: deck is empty")

// Deck is 52 distinct cards in draw order. Deck is not safe for concurrent
// use; callers own exclusive access (the table actor, in practice).
type Deck struct {
	cards []Card
}

// New returns a freshly shuffled 52-card deck using rng.
func New(rng *rand.Rand) *Deck {
	d := &Deck{cards: make([]Card, 0, 52)}
	for s := Clubs; s <= Spades; s++ {
		for v := Two; v <= Ace; v++ {
			d.cards = append(d.cards, Card{Value: v, Suit: s})
		}
	}
	d.Shuffle(rng)
	return d
}

// Shuffle re-permutes the remaining cards uniformly at random.
func (d *Deck) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns the top card.
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrEmpty
	}
	c := d.cards[0]
	d.cards = d.cards[1:]
	return c, nil
}

// Burn discards the top card without exposing it.
func (d *Deck) Burn() error {
	_, err := d.Draw()
	return err
}

// Remaining returns the number of undrawn cards.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Snapshot returns a copy of the remaining cards, for persistence.
func (d *Deck) Snapshot() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Restore replaces the remaining cards, for restoring a persisted deck.
func Restore(cards []Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}
