package engine

import (
	"github.com/holdencore/pokercore/pkg/card"
	"github.com/holdencore/pokercore/pkg/eval"
	"github.com/holdencore/pokercore/pkg/statemachine"
)

// The fourteen states below implement spec module B's game state machine
// as state-functions-as-states: Lobby -> SeatPlayers -> MoveButton ->
// CollectBlinds -> Deal -> TakeAction(PreFlop) -> Flop ->
// TakeAction(Flop) -> Turn -> TakeAction(Turn) -> River ->
// TakeAction(River) -> ShowHands -> DistributePot -> RemovePlayers ->
// UpdateBlinds -> BootPlayers -> Lobby. TakeAction is a single function
// re-entered once per street and once per action within a street; it is
// the only state that can leave the machine parked awaiting input other
// than Lobby.

func eligibleForDeal(players []*Player) []*Player {
	var out []*Player
	for _, p := range players {
		if (p.State == Waiting || p.State == Playing) && p.ChipsAtSeat > 0 {
			out = append(out, p)
		}
	}
	return out
}

func stateLobby(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "lobby"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	if len(eligibleForDeal(h.players)) < 2 {
		h.awaitingInput = true
		return stateLobby
	}
	h.awaitingInput = false
	return stateSeatPlayers
}

func stateSeatPlayers(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "seat_players"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	h.players = eligibleForDeal(h.players)
	h.number++
	for _, p := range h.players {
		p.resetForHand()
		p.State = Playing
	}
	h.indexSeats()
	return stateMoveButton
}

func stateMoveButton(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "move_button"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	n := len(h.players)
	if h.buttonSeat < 0 {
		h.buttonSeat = 0
	} else {
		h.buttonSeat = (h.buttonSeat + 1) % n
	}
	return stateCollectBlinds
}

func stateCollectBlinds(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "collect_blinds"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	n := len(h.players)
	var sbIdx, bbIdx int
	if n == 2 {
		sbIdx = h.buttonSeat
		bbIdx = (h.buttonSeat + 1) % n
	} else {
		sbIdx = (h.buttonSeat + 1) % n
		bbIdx = (h.buttonSeat + 2) % n
	}
	h.commit(h.players[sbIdx], h.cfg.SmallBlind)
	h.commit(h.players[bbIdx], h.cfg.BigBlind)
	h.players[sbIdx].HasActedThisStreet = false
	h.players[bbIdx].HasActedThisStreet = false
	h.bbIndex = bbIdx
	h.currentBet = h.cfg.BigBlind
	h.minRaiseSize = h.cfg.BigBlind
	h.lastAggressor = -1
	return stateDeal
}

func stateDeal(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "deal"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	h.deck = card.New(h.rng)
	h.board = nil
	for _, p := range h.players {
		if p.State == Playing || p.State == AllIn {
			c1, _ := h.deck.Draw()
			c2, _ := h.deck.Draw()
			p.HoleCards = []card.Card{c1, c2}
		}
	}
	h.street = PreFlop

	n := len(h.players)
	var first int
	if n == 2 {
		first = h.buttonSeat
	} else {
		first = (h.bbIndex + 1) % n
	}
	return enterBettingRound(h, first)
}

// enterBettingRound either parks the machine on stateTakeAction awaiting
// the given first actor, or, if fewer than two players can still act,
// skips betting and falls through to however TakeAction would have
// resolved it (i.e. runs the street out automatically).
func enterBettingRound(h *Hand, first int) statemachine.Fn[Hand] {
	if h.countCanAct() < 2 {
		h.awaitingInput = false
		return stateTakeAction
	}
	h.actingIndex = first
	h.awaitingInput = true
	return stateTakeAction
}

func stateTakeAction(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "take_action"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}

	if h.countContenders() <= 1 {
		return stateShowHands
	}
	if !h.roundComplete() {
		next, ok := h.nextActorFrom(h.actingIndex + 1)
		if !ok {
			// Nobody left who can act but the round isn't flagged
			// complete (e.g. everyone remaining is all-in); fall
			// through to the next street.
			return advanceStreet(h)
		}
		h.actingIndex = next
		h.awaitingInput = true
		return stateTakeAction
	}
	return advanceStreet(h)
}

func advanceStreet(h *Hand) statemachine.Fn[Hand] {
	switch h.street {
	case PreFlop:
		return stateFlop
	case Flop:
		return stateTurn
	case Turn:
		return stateRiver
	default:
		return stateShowHands
	}
}

func stateFlop(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "flop"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	h.deck.Burn()
	for i := 0; i < 3; i++ {
		c, _ := h.deck.Draw()
		h.board = append(h.board, c)
	}
	h.street = Flop
	h.resetStreet()
	first, _ := h.nextActorFrom(h.buttonSeat + 1)
	return enterBettingRound(h, first)
}

func stateTurn(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "turn"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	h.deck.Burn()
	c, _ := h.deck.Draw()
	h.board = append(h.board, c)
	h.street = Turn
	h.resetStreet()
	first, _ := h.nextActorFrom(h.buttonSeat + 1)
	return enterBettingRound(h, first)
}

func stateRiver(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "river"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	h.deck.Burn()
	c, _ := h.deck.Draw()
	h.board = append(h.board, c)
	h.street = River
	h.resetStreet()
	first, _ := h.nextActorFrom(h.buttonSeat + 1)
	return enterBettingRound(h, first)
}

func stateShowHands(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "show_hands"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	if h.countContenders() > 1 {
		for _, p := range h.players {
			if p.State != Playing && p.State != AllIn {
				continue
			}
			cards := append(append([]card.Card{}, p.HoleCards...), h.board...)
			hv, err := eval.Eval(cards)
			if err != nil {
				continue
			}
			p.HandValue = &hv
			p.RevealedAtShowdown = true
		}
	}
	return stateDistributePot
}

func stateDistributePot(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "distribute_pot"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	h.buildPots()
	showdown := h.countContenders() > 1

	var awards []PotAward
	for _, pot := range h.pots {
		awards = append(awards, h.awardPot(pot))
	}
	for _, a := range awards {
		for uid, amt := range a.Payouts {
			p, _, err := h.playerByID(uid)
			if err == nil {
				p.ChipsAtSeat += amt
			}
		}
	}
	h.result = &Result{Board: h.Board(), PotAwards: awards, Showdown: showdown}
	if h.onComplete != nil {
		h.onComplete(h.result)
	}
	return stateRemovePlayers
}

func stateRemovePlayers(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "remove_players"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	return stateUpdateBlinds
}

func stateUpdateBlinds(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "update_blinds"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	// Blind escalation is owned by the table actor, which mutates h.cfg
	// between hands according to its own schedule/timer; this state only
	// marks the point in the cycle where that mutation is expected to
	// have already landed.
	return stateBootPlayers
}

func stateBootPlayers(h *Hand, observe func(string, statemachine.Event)) statemachine.Fn[Hand] {
	h.stateName = "boot_players"
	if observe != nil {
		observe(h.stateName, statemachine.Entered)
	}
	for _, p := range h.players {
		if p.ChipsAtSeat <= 0 && p.State != Leaving {
			p.State = Leaving
		}
	}
	h.awaitingInput = false
	return stateLobby
}
