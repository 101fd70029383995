package bot

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holdencore/pokercore/pkg/card"
	"github.com/holdencore/pokercore/pkg/engine"
)

func TestDecideIsDeterministicForSameSeed(t *testing.T) {
	ctx := DecisionContext{
		Hole:         []card.Card{card.New(card.Ace, card.Spades), card.New(card.King, card.Spades)},
		Street:       engine.PreFlop,
		Pot:          30,
		ToCall:       20,
		CurrentBet:   20,
		MinRaiseSize: 20,
		Stack:        1000,
	}
	a := Decide(ctx, Presets[Standard], rand.New(rand.NewSource(7)))
	b := Decide(ctx, Presets[Standard], rand.New(rand.NewSource(7)))
	require.Equal(t, a, b)
}

func TestDecideFoldsWeakHandFacingBigBet(t *testing.T) {
	ctx := DecisionContext{
		Hole:         []card.Card{card.New(card.Seven, card.Hearts), card.New(card.Two, card.Clubs)},
		Street:       engine.PreFlop,
		Pot:          20,
		ToCall:       500,
		CurrentBet:   500,
		MinRaiseSize: 20,
		Stack:        1000,
	}
	action := Decide(ctx, Presets[TAG], rand.New(rand.NewSource(1)))
	require.Equal(t, engine.ActionFold, action.Kind)
}

func TestDecideChecksWithNothingToCall(t *testing.T) {
	ctx := DecisionContext{
		Hole:         []card.Card{card.New(card.Seven, card.Hearts), card.New(card.Two, card.Clubs)},
		Board:        []card.Card{card.New(card.King, card.Diamonds), card.New(card.Queen, card.Clubs), card.New(card.Four, card.Spades)},
		Street:       engine.Flop,
		Pot:          20,
		Stack:        1000,
		MinRaiseSize: 20,
	}
	rng := rand.New(rand.NewSource(3))
	action := Decide(ctx, Profile{VPIP: 0, PFR: 0, AggressionFactor: 0, BluffFrequency: 0}, rng)
	require.Equal(t, engine.ActionCheck, action.Kind)
}

func TestPresetsMatchSpecifiedTuples(t *testing.T) {
	cases := []struct {
		difficulty Difficulty
		want       Profile
	}{
		{Easy, Profile{VPIP: 0.45, PFR: 0.10, AggressionFactor: 0.5, BluffFrequency: 0.00, ThinkDelayMean: 1500 * time.Millisecond, ThinkDelayStdDev: 1000 * time.Millisecond}},
		{Standard, Profile{VPIP: 0.30, PFR: 0.20, AggressionFactor: 1.5, BluffFrequency: 0.15, ThinkDelayMean: 2000 * time.Millisecond, ThinkDelayStdDev: 1500 * time.Millisecond}},
		{TAG, Profile{VPIP: 0.20, PFR: 0.18, AggressionFactor: 2.5, BluffFrequency: 0.25, ThinkDelayMean: 2500 * time.Millisecond, ThinkDelayStdDev: 2000 * time.Millisecond}},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Presets[c.difficulty])
	}
}

func TestThinkDelayNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 100; i++ {
		d := ThinkDelay(Presets[Easy], rng)
		require.GreaterOrEqual(t, d.Nanoseconds(), int64(0))
	}
}
