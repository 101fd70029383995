// Package engine implements the one-table, one-hand game state machine:
// dealing, blinds, betting rounds, side pots, and showdown. A Hand owns
// its players and deck exclusively; callers (the table actor) serialize
// all access to it, so nothing here takes its own lock.
package engine

import (
	"github.com/holdencore/pokercore/pkg/card"
	"github.com/holdencore/pokercore/pkg/eval"
)

// PlayerState is a seated player's role with respect to the current (or
// next) hand.
type PlayerState int

const (
	Waiting PlayerState = iota
	Playing
	Folded
	AllIn
	SittingOut
	Leaving
)

func (s PlayerState) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Playing:
		return "playing"
	case Folded:
		return "folded"
	case AllIn:
		return "all_in"
	case SittingOut:
		return "sitting_out"
	case Leaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// Player is a seated participant as the GSM sees it: a seat index, a chip
// stack, and per-hand betting state. Presence in a spectator set or
// waitlist is tracked by the table actor via user_id, never here.
type Player struct {
	UserID               string
	Username             string
	SeatIndex            int
	ChipsAtSeat          int64
	CommittedThisStreet  int64
	CommittedTotal       int64
	HoleCards            []card.Card
	State                PlayerState
	HasActedThisStreet   bool
	ForfeitedReraise     bool // set when a short all-in since this player's last action didn't reopen betting
	RevealedAtShowdown   bool
	HandValue            *eval.HandValue
}

func (p *Player) resetForStreet() {
	p.CommittedThisStreet = 0
	p.HasActedThisStreet = false
	p.ForfeitedReraise = false
}

func (p *Player) resetForHand() {
	p.CommittedThisStreet = 0
	p.CommittedTotal = 0
	p.HoleCards = nil
	p.HasActedThisStreet = false
	p.ForfeitedReraise = false
	p.RevealedAtShowdown = false
	p.HandValue = nil
	if p.State != SittingOut && p.State != Leaving {
		p.State = Waiting
	}
}

func (p *Player) active() bool {
	return p.State == Playing || p.State == AllIn
}

// Street is a betting round.
type Street int

const (
	PreFlop Street = iota
	Flop
	Turn
	River
)

func (s Street) String() string {
	switch s {
	case PreFlop:
		return "preflop"
	case Flop:
		return "flop"
	case Turn:
		return "turn"
	case River:
		return "river"
	default:
		return "unknown"
	}
}

// ActionKind is the kind of a betting action.
type ActionKind int

const (
	ActionFold ActionKind = iota
	ActionCheck
	ActionCall
	ActionRaise
	ActionAllIn
)

// RaiseMode disambiguates spec §9 open question 3: whether Action.Amount
// for a raise is the increment above the current bet, or the new total.
type RaiseMode int

const (
	RaiseBy RaiseMode = iota
	RaiseTo
)

// Action is one betting decision submitted by (or on behalf of) a player.
type Action struct {
	Kind      ActionKind
	RaiseMode RaiseMode
	Amount    int64
}

// LegalAction describes one action a player may currently take, with the
// chip bounds that apply to it (used both for client-facing TurnSignal and
// for validating an incoming Action).
type LegalAction struct {
	Kind      ActionKind
	MinAmount int64
	MaxAmount int64
}

// Pot is an amount plus the set of seated players eligible to win it.
type Pot struct {
	Amount    int64
	Eligible  map[string]bool
}

func newPot() *Pot {
	return &Pot{Eligible: make(map[string]bool)}
}
