// Package bot implements the scripted opponents: a pure decision
// function over a (context, profile, rng) triple, so a decision is
// reproducible given the same seed and never reaches back into the
// table actor's state on its own.
package bot

import (
	"math"
	"math/rand"
	"time"

	"github.com/holdencore/pokercore/pkg/card"
	"github.com/holdencore/pokercore/pkg/engine"
	"github.com/holdencore/pokercore/pkg/eval"
)

// Difficulty selects a preset Profile.
type Difficulty int

const (
	Easy Difficulty = iota
	Standard
	TAG // tight-aggressive
)

// Profile is the data tuple that drives a bot's play: how often it
// voluntarily enters a pot, how often it raises instead of calling, how
// aggressively it sizes bets, how often it bluffs, and how it is paced.
type Profile struct {
	VPIP             float64
	PFR              float64
	AggressionFactor float64
	BluffFrequency   float64
	ThinkDelayMean   time.Duration
	ThinkDelayStdDev time.Duration
}

// Presets holds the three fixed profiles verbatim: (VPIP%, PFR%,
// aggression_factor, bluff%, think_delay_ms_mean, think_delay_ms_stddev).
// Easy (45, 10, 0.5, 0, 1500, 1000); Standard (30, 20, 1.5, 15, 2000,
// 1500); TAG (20, 18, 2.5, 25, 2500, 2000).
var Presets = map[Difficulty]Profile{
	Easy: {
		VPIP: 0.45, PFR: 0.10, AggressionFactor: 0.5, BluffFrequency: 0.00,
		ThinkDelayMean: 1500 * time.Millisecond, ThinkDelayStdDev: 1000 * time.Millisecond,
	},
	Standard: {
		VPIP: 0.30, PFR: 0.20, AggressionFactor: 1.5, BluffFrequency: 0.15,
		ThinkDelayMean: 2000 * time.Millisecond, ThinkDelayStdDev: 1500 * time.Millisecond,
	},
	TAG: {
		VPIP: 0.20, PFR: 0.18, AggressionFactor: 2.5, BluffFrequency: 0.25,
		ThinkDelayMean: 2500 * time.Millisecond, ThinkDelayStdDev: 2000 * time.Millisecond,
	},
}

// Position is a coarse seat classification relative to the button, used
// to loosen or tighten the strength threshold a profile plays.
type Position int

const (
	Early Position = iota
	Middle
	Late
	Button
	SmallBlind
	BigBlind
)

// DecisionContext is everything a bot needs to decide, gathered by the
// table actor from the current Hand (never from raw player state it
// shouldn't see, like other players' hole cards).
type DecisionContext struct {
	Hole                []card.Card
	Board               []card.Card
	Street              engine.Street
	Pot                 int64
	ToCall              int64
	CurrentBet          int64
	MinRaiseSize        int64
	Stack               int64
	CommittedThisStreet int64
	Position            Position
	ActivePlayers       int
}

// ThinkDelay samples a non-negative delay from the profile's think-delay
// distribution, so a bot's replies feel paced rather than instant.
func ThinkDelay(p Profile, rng *rand.Rand) time.Duration {
	d := time.Duration(float64(p.ThinkDelayMean) + rng.NormFloat64()*float64(p.ThinkDelayStdDev))
	if d < 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	return d
}

// chenScore is a simplified Chen Formula preflop hand-strength estimate,
// roughly on a 0-20 scale (pocket aces scores 20).
func chenScore(hole []card.Card) float64 {
	if len(hole) != 2 {
		return 0
	}
	a, b := hole[0], hole[1]
	if a.Value < b.Value {
		a, b = b, a
	}
	var score float64
	switch a.Value {
	case card.Ace:
		score = 10
	case card.King:
		score = 8
	case card.Queen:
		score = 7
	case card.Jack:
		score = 6
	default:
		score = float64(a.Value) / 2
	}
	if a.Value == b.Value {
		score *= 2
		if score < 5 {
			score = 5
		}
	}
	if a.Suit == b.Suit {
		score += 2
	}
	gap := int(a.Value) - int(b.Value)
	switch {
	case gap == 0:
	case gap == 1:
	case gap == 2:
		score -= 1
	case gap == 3:
		score -= 2
	case gap == 4:
		score -= 4
	default:
		score -= 5
	}
	if gap <= 1 && a.Value < card.Queen {
		score += 1 // two low/mid connected cards play above their gap alone
	}
	if score < 0 {
		score = 0
	}
	return score
}

func postflopStrength(hole, board []card.Card) float64 {
	cards := append(append([]card.Card{}, hole...), board...)
	hv, err := eval.Eval(cards)
	if err != nil {
		return 0
	}
	strength := float64(hv.Category) / float64(eval.StraightFlush)
	if len(hv.Tiebreak) > 0 {
		strength += float64(hv.Tiebreak[0]) / float64(card.Ace) / 50
	}
	if strength > 1 {
		strength = 1
	}
	return strength
}

func positionLooseness(pos Position) float64 {
	switch pos {
	case Late, Button:
		return 0.08
	case SmallBlind, BigBlind:
		return 0.04
	default:
		return 0
	}
}

// Decide is the bot's entire decision function: pure, deterministic given
// rng's state, and ignorant of anything but ctx and profile.
func Decide(ctx DecisionContext, profile Profile, rng *rand.Rand) engine.Action {
	var strength float64
	if ctx.Street == engine.PreFlop {
		strength = math.Min(chenScore(ctx.Hole)/20, 1)
	} else {
		strength = postflopStrength(ctx.Hole, ctx.Board)
	}
	strength += positionLooseness(ctx.Position)
	bluffing := rng.Float64() < profile.BluffFrequency

	if ctx.ToCall <= 0 {
		wantsToBet := strength > (0.65-profile.AggressionFactor*0.05) || bluffing
		enters := ctx.Street != engine.PreFlop || rng.Float64() < profile.VPIP || strength > 0.45
		if wantsToBet && enters && ctx.Stack > 0 {
			size := betSize(ctx, profile, strength)
			if size >= ctx.Stack {
				return engine.Action{Kind: engine.ActionAllIn}
			}
			return engine.Action{Kind: engine.ActionRaise, RaiseMode: engine.RaiseBy, Amount: size}
		}
		return engine.Action{Kind: engine.ActionCheck}
	}

	potOdds := 0.0
	if ctx.Pot+ctx.ToCall > 0 {
		potOdds = float64(ctx.ToCall) / float64(ctx.Pot+ctx.ToCall)
	}
	effectiveStrength := strength
	if bluffing {
		effectiveStrength = 1
	}

	preflopCallGate := profile.VPIP
	if ctx.Street != engine.PreFlop {
		preflopCallGate = 1 // postflop continuation is governed by pot odds alone
	}

	switch {
	case effectiveStrength < potOdds*0.8 || (ctx.Street == engine.PreFlop && rng.Float64() > preflopCallGate && strength < 0.35):
		return engine.Action{Kind: engine.ActionFold}
	case effectiveStrength > 0.78 && rng.Float64() < profile.PFR+profile.AggressionFactor*0.1:
		fullStackTo := ctx.CommittedThisStreet + ctx.Stack
		raiseTo := ctx.CurrentBet + betSize(ctx, profile, strength)
		if raiseTo >= fullStackTo {
			return engine.Action{Kind: engine.ActionAllIn}
		}
		return engine.Action{Kind: engine.ActionRaise, RaiseMode: engine.RaiseTo, Amount: raiseTo}
	default:
		if ctx.ToCall >= ctx.Stack {
			return engine.Action{Kind: engine.ActionAllIn}
		}
		return engine.Action{Kind: engine.ActionCall}
	}
}

func betSize(ctx DecisionContext, profile Profile, strength float64) int64 {
	base := ctx.Pot/2 + 1
	sized := int64(float64(base) * (0.6 + profile.AggressionFactor*0.3) * (0.5 + strength))
	if sized < ctx.MinRaiseSize {
		sized = ctx.MinRaiseSize
	}
	if sized > ctx.Stack {
		sized = ctx.Stack
	}
	return sized
}
